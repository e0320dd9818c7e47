package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is an insertion ordered mapping from key to Value. It is the decoded
// form of one pipe separated segment of a protocol line.
//
// Read methods use value receivers so records can be inspected straight out
// of slices and function results. Mutating methods need an addressable record.
type Record struct {
	keys []string
	vals map[string]Value
}

// NewRecord creates an empty record.
func NewRecord() Record {
	return Record{vals: make(map[string]Value)}
}

// RecordOf builds a record from alternating key/value pairs, where each value
// is converted like Command.Set does. It panics on an odd number of arguments.
func RecordOf(kv ...any) Record {
	if len(kv)%2 != 0 {
		panic("codec: RecordOf needs key/value pairs")
	}
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("codec: RecordOf key %v is not a string", kv[i]))
		}
		if v, keep := ValueOf(kv[i+1]); keep {
			r.Set(key, v)
		}
	}
	return r
}

// --------------------------------------------------------------------------
// Read Methods
// --------------------------------------------------------------------------

// Get returns the value stored under key.
func (r Record) Get(key string) (Value, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Has reports whether key is present (absent markers count as present).
func (r Record) Has(key string) bool {
	_, ok := r.vals[key]
	return ok
}

// Str returns the wire text stored under key, or "" if the key is missing.
func (r Record) Str(key string) string {
	return r.vals[key].Str()
}

// Int returns the integer stored under key.
func (r Record) Int(key string) (int64, bool) {
	v, ok := r.vals[key]
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Keys returns the keys in insertion order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys.
func (r Record) Len() int {
	return len(r.keys)
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := Record{
		keys: make([]string, len(r.keys)),
		vals: make(map[string]Value, len(r.vals)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.vals {
		c.vals[k] = v
	}
	return c
}

// Without returns a copy of the record lacking the given keys.
func (r Record) Without(keys ...string) Record {
	c := r.Clone()
	for _, k := range keys {
		c.Delete(k)
	}
	return c
}

// String renders the record in its wire form (escaped key=value pairs).
func (r Record) String() string {
	return encodeRecord(r)
}

// MarshalJSON renders the record as a JSON object preserving key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := r.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// --------------------------------------------------------------------------
// Mutating Methods
// --------------------------------------------------------------------------

// Set stores v under key. Existing keys keep their position.
func (r *Record) Set(key string, v Value) {
	if r.vals == nil {
		r.vals = make(map[string]Value)
	}
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Delete removes key from the record.
func (r *Record) Delete(key string) {
	if _, ok := r.vals[key]; !ok {
		return
	}
	delete(r.vals, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Merge performs a shallow merge: keys of other overwrite keys of r,
// keys only present in r are left untouched.
func (r *Record) Merge(other Record) {
	for _, k := range other.keys {
		r.Set(k, other.vals[k])
	}
}

func encodeRecord(r Record) string {
	tokens := make([]string, 0, len(r.keys))
	for _, k := range r.keys {
		tokens = append(tokens, encodeOption(k, r.vals[k]))
	}
	return strings.Join(tokens, " ")
}
