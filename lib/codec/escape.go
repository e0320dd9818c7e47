package codec

import "strings"

// --------------------------------------------------------------------------
// Escaping
// --------------------------------------------------------------------------

// escapeTable lists every reserved character together with its escape
// sequence. The backslash comes first so an escaped sequence is never escaped again.
var escapeTable = [][2]string{
	{`\`, `\\`},
	{`/`, `\/`},
	{` `, `\s`},
	{`|`, `\p`},
	{"\r", `\r`},
	{"\n", `\n`},
	{"\t", `\t`},
	{"\f", `\f`},
}

var (
	escaper   = newReplacer(false)
	unescaper = newReplacer(true)
)

func newReplacer(reverse bool) *strings.Replacer {
	pairs := make([]string, 0, len(escapeTable)*2)
	for _, e := range escapeTable {
		if reverse {
			pairs = append(pairs, e[1], e[0])
		} else {
			pairs = append(pairs, e[0], e[1])
		}
	}
	return strings.NewReplacer(pairs...)
}

// Escape replaces every reserved character in text with its two character
// escape sequence, so the result can be used as a single value token.
func Escape(text string) string {
	return escaper.Replace(text)
}

// Unescape is the exact inverse of Escape. Unknown escape sequences are left untouched.
func Unescape(text string) string {
	if !strings.Contains(text, `\`) {
		return text
	}
	return unescaper.Replace(text)
}
