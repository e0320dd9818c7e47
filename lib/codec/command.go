package codec

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Command is a single protocol command: a verb, scalar options, repeated
// option groups and flags. A command is built incrementally and becomes
// immutable once it has been encoded; later mutation panics.
type Command struct {
	verb    string
	options Record
	groups  []Record
	flags   []string

	line    string
	encoded bool
}

// NewCommand creates a command for the given verb.
func NewCommand(verb string) *Command {
	return &Command{verb: verb, options: NewRecord()}
}

// ParseCommand turns a raw command line (as typed by a user) into a Command.
// Further pipe segments become option groups. Tokens of the first segment
// whose keys repeat in the second segment form the first group, the rest are
// scalar options. Tokens starting with "-" become flags.
func ParseCommand(line string) (*Command, error) {
	line = strings.Trim(line, TokenSeparator)
	if line == "" {
		return nil, fmt.Errorf("empty command")
	}
	verb, rest, _ := strings.Cut(line, TokenSeparator)
	cmd := NewCommand(verb)

	segments := strings.Split(rest, "|")
	parsed := make([]Record, len(segments))
	for i, segment := range segments {
		parsed[i] = NewRecord()
		for _, token := range splitTokens(segment) {
			if strings.HasPrefix(token, "-") && !strings.Contains(token, "=") && len(token) > 1 {
				cmd.Flag(token[1:])
				continue
			}
			key, value, hasValue := strings.Cut(token, "=")
			if !hasValue {
				parsed[i].Set(key, AbsentValue())
				continue
			}
			parsed[i].Set(key, ParseValue(Unescape(value)))
		}
	}

	if len(parsed) == 1 {
		cmd.options = parsed[0]
		return cmd, nil
	}

	first := NewRecord()
	for _, key := range parsed[0].Keys() {
		v, _ := parsed[0].Get(key)
		if parsed[1].Has(key) {
			first.Set(key, v)
		} else {
			cmd.options.Set(key, v)
		}
	}
	cmd.AddGroup(first)
	for _, group := range parsed[1:] {
		cmd.AddGroup(group)
	}
	return cmd, nil
}

// --------------------------------------------------------------------------
// Builder
// --------------------------------------------------------------------------

// Set adds a scalar option. Supported values are strings, all integer and
// float types, bools (encoded as 0/1), integer slices, Value and fmt.Stringer.
// A nil value encodes as a bare key, a nil pointer omits the option and a
// non-nil pointer is dereferenced.
func (c *Command) Set(key string, value any) *Command {
	c.mustBeMutable()
	if v, keep := ValueOf(value); keep {
		c.options.Set(key, v)
	}
	return c
}

// AddGroup appends a repeated option group (e.g. one entry per client id).
func (c *Command) AddGroup(group Record) *Command {
	c.mustBeMutable()
	if group.Len() > 0 {
		c.groups = append(c.groups, group.Clone())
	}
	return c
}

// Flag appends a flag. Empty names are dropped.
func (c *Command) Flag(names ...string) *Command {
	c.mustBeMutable()
	for _, name := range names {
		name = strings.TrimPrefix(name, "-")
		if name != "" {
			c.flags = append(c.flags, name)
		}
	}
	return c
}

func (c *Command) mustBeMutable() {
	if c.encoded {
		panic(fmt.Sprintf("codec: command %q modified after encoding", c.verb))
	}
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Verb returns the command verb.
func (c *Command) Verb() string {
	return c.verb
}

// Options returns a copy of the scalar options.
func (c *Command) Options() Record {
	return c.options.Clone()
}

// Flags returns a copy of the flags.
func (c *Command) Flags() []string {
	out := make([]string, len(c.flags))
	copy(out, c.flags)
	return out
}

// String returns the encoded line.
func (c *Command) String() string {
	return c.Encode()
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// Encode serializes the command into one protocol line (without terminator):
//
//	verb[ key=value]*[ key=value[ key=value]*|key=value...][ -flag]*
//
// The line is computed once and cached.
func (c *Command) Encode() string {
	if c.encoded {
		return c.line
	}

	parts := []string{c.verb}
	if c.options.Len() > 0 {
		parts = append(parts, encodeRecord(c.options))
	}
	if len(c.groups) > 0 {
		groups := make([]string, len(c.groups))
		for i, g := range c.groups {
			groups[i] = encodeRecord(g)
		}
		parts = append(parts, strings.Join(groups, "|"))
	}
	for _, f := range c.flags {
		parts = append(parts, "-"+f)
	}

	c.line = strings.Join(parts, " ")
	c.encoded = true
	return c.line
}

func encodeOption(key string, v Value) string {
	if v.IsAbsent() {
		return key
	}
	return key + "=" + Escape(v.Str())
}

// --------------------------------------------------------------------------
// Value Conversion
// --------------------------------------------------------------------------

// ValueOf converts a Go value into a Value. The boolean is false when the
// value should be omitted (nil pointers).
func ValueOf(value any) (Value, bool) {
	switch v := value.(type) {
	case nil:
		return AbsentValue(), true
	case Value:
		return v, true
	case string:
		return StringValue(v), true
	case bool:
		if v {
			return IntValue(1), true
		}
		return IntValue(0), true
	case int:
		return IntValue(int64(v)), true
	case int8:
		return IntValue(int64(v)), true
	case int16:
		return IntValue(int64(v)), true
	case int32:
		return IntValue(int64(v)), true
	case int64:
		return IntValue(v), true
	case uint:
		return uintValue(uint64(v)), true
	case uint8:
		return IntValue(int64(v)), true
	case uint16:
		return IntValue(int64(v)), true
	case uint32:
		return IntValue(int64(v)), true
	case uint64:
		return uintValue(v), true
	case float32:
		return FloatValue(float64(v)), true
	case float64:
		return FloatValue(v), true
	case []int64:
		return IntListValue(v...), true
	case []int:
		list := make([]int64, len(v))
		for i, n := range v {
			list[i] = int64(n)
		}
		return IntListValue(list...), true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Value{}, false
		}
		return ValueOf(rv.Elem().Interface())
	}
	if s, ok := value.(fmt.Stringer); ok {
		return StringValue(s.String()), true
	}
	return StringValue(fmt.Sprint(value)), true
}

func uintValue(u uint64) Value {
	s := strconv.FormatUint(u, 10)
	if u > 1<<63-1 {
		return StringValue(s)
	}
	return IntValue(int64(u))
}
