package codec

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/sqc/lib/sqerr"
)

const (
	// ErrorKeyword starts every terminator line.
	ErrorKeyword = "error"

	// NotifyPrefix starts every unsolicited event line.
	NotifyPrefix = "notify"

	// TokenSeparator separates the verb, options and flags of a line. It is
	// the only whitespace the protocol escapes.
	TokenSeparator = " "
)

// --------------------------------------------------------------------------
// Line Decoding
// --------------------------------------------------------------------------

// DecodeLine decodes a data line into its records. Records are separated by
// "|" and decode independently: no key is inherited from a previous record.
// Empty segments are skipped, an empty line yields no records.
func DecodeLine(line string) []Record {
	if strings.Trim(line, TokenSeparator) == "" {
		return nil
	}

	segments := strings.Split(line, "|")
	records := make([]Record, 0, len(segments))
	for _, segment := range segments {
		r, ok := decodeRecord(segment)
		if ok {
			records = append(records, r)
		}
	}
	return records
}

// decodeRecord decodes one pipe separated segment. ok is false for segments
// that carry no token at all.
func decodeRecord(segment string) (Record, bool) {
	tokens := splitTokens(segment)
	if len(tokens) == 0 {
		return Record{}, false
	}

	r := NewRecord()
	for _, token := range tokens {
		key, value, hasValue := strings.Cut(token, "=")
		if !hasValue {
			r.Set(key, AbsentValue())
			continue
		}
		r.Set(key, ParseValue(Unescape(value)))
	}
	return r, true
}

// splitTokens splits a segment on the ASCII space only. Other whitespace
// (no-break or ideographic spaces in nicknames) is sent unescaped and belongs
// to the value. Runs of spaces yield no empty tokens.
func splitTokens(segment string) []string {
	parts := strings.Split(segment, TokenSeparator)
	tokens := parts[:0]
	for _, part := range parts {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// IsErrorLine reports whether line is a terminator line.
func IsErrorLine(line string) bool {
	return line == ErrorKeyword || strings.HasPrefix(line, ErrorKeyword+" ")
}

// IsNotifyLine reports whether line is an unsolicited event line.
func IsNotifyLine(line string) bool {
	return strings.HasPrefix(line, NotifyPrefix)
}

// DecodeErrorLine decodes a terminator line:
//
//	error id=<int> msg=<text>[ extra_msg=<text>][ failed_permid=<int>]
//
// Only the four documented keys are read. A line without the keyword or
// without a numeric id is rejected. A terminator with id 0 is still returned
// as a ProtocolError, callers check IsOK.
func DecodeErrorLine(line string) (*sqerr.ProtocolError, error) {
	if !IsErrorLine(line) {
		return nil, fmt.Errorf("%w: not a terminator: %q", sqerr.ErrUnexpectedLine, line)
	}

	r, _ := decodeRecord(strings.TrimPrefix(line, ErrorKeyword))
	id, ok := r.Int("id")
	if !ok {
		return nil, fmt.Errorf("%w: terminator without numeric id: %q", sqerr.ErrUnexpectedLine, line)
	}

	pe := &sqerr.ProtocolError{
		ID:           sqerr.ID(id),
		Message:      r.Str("msg"),
		ExtraMessage: r.Str("extra_msg"),
	}
	if perm, ok := r.Int("failed_permid"); ok {
		pe.FailedPermID = &perm
	}
	return pe, nil
}

// DecodeNotifyLine splits an event line into its name (without the "notify"
// prefix) and its records.
func DecodeNotifyLine(line string) (string, []Record) {
	head, rest, _ := strings.Cut(line, " ")
	return strings.TrimPrefix(head, NotifyPrefix), DecodeLine(rest)
}
