package object

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref uniquely identifies an indirect PDF object by number and generation.
// The zero Ref is not a valid identity; object numbers start at 1.
type Ref struct {
	Num int
	Gen int
}

func (r Ref) IsZero() bool   { return r.Num == 0 }
func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all PDF values.
type Object interface {
	Type() string
}

// Null is the PDF null object.
type Null struct{}

func (Null) Type() string { return "null" }

// Boolean is a PDF boolean.
type Boolean bool

func (Boolean) Type() string { return "boolean" }

// Integer is a PDF integer number.
type Integer int64

func (Integer) Type() string { return "integer" }

// Real is a PDF real number.
type Real float64

func (Real) Type() string { return "real" }

// Name is a PDF name object, stored without the leading slash.
type Name string

func (Name) Type() string { return "name" }

// String is a PDF string. Data holds the raw, unescaped bytes. Hex
// records whether the string was (or should be) written in hexadecimal
// form; it does not affect the value.
type String struct {
	Data []byte
	Hex  bool
}

func (String) Type() string { return "string" }

// Array is an ordered sequence of objects.
type Array []Object

func (Array) Type() string { return "array" }

// Dict is a PDF dictionary. Insertion order of keys is preserved so
// that serialization is deterministic.
type Dict struct {
	keys []Name
	m    map[Name]Object
}

func (*Dict) Type() string { return "dict" }

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{m: make(map[Name]Object)}
}

func (d *Dict) Get(key Name) (Object, bool) {
	if d == nil || d.m == nil {
		return nil, false
	}
	v, ok := d.m[key]
	return v, ok
}

// Set stores value under key, keeping the first-insertion position for
// keys that are overwritten.
func (d *Dict) Set(key Name, value Object) {
	if d.m == nil {
		d.m = make(map[Name]Object)
	}
	if _, ok := d.m[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.m[key] = value
}

func (d *Dict) Delete(key Name) {
	if d == nil || d.m == nil {
		return
	}
	if _, ok := d.m[key]; !ok {
		return
	}
	delete(d.m, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the dictionary keys in insertion order.
func (d *Dict) Keys() []Name {
	if d == nil {
		return nil
	}
	out := make([]Name, len(d.keys))
	copy(out, d.keys)
	return out
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.m)
}

// Clone returns a shallow copy of the dictionary.
func (d *Dict) Clone() *Dict {
	out := NewDict()
	if d == nil {
		return out
	}
	for _, k := range d.keys {
		out.Set(k, d.m[k])
	}
	return out
}

// Convenience accessors used throughout the parser and writer.

func (d *Dict) GetInt(key Name) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case Integer:
		return int64(n), true
	case Real:
		return int64(n), true
	}
	return 0, false
}

func (d *Dict) GetName(key Name) (Name, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	n, ok := v.(Name)
	return n, ok
}

func (d *Dict) GetString(key Name) (String, bool) {
	v, ok := d.Get(key)
	if !ok {
		return String{}, false
	}
	s, ok := v.(String)
	return s, ok
}

func (d *Dict) GetDict(key Name) (*Dict, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Dict)
	return sub, ok
}

func (d *Dict) GetArray(key Name) (Array, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := v.(Array)
	return a, ok
}

func (d *Dict) GetRef(key Name) (Ref, bool) {
	v, ok := d.Get(key)
	if !ok {
		return Ref{}, false
	}
	r, ok := v.(Ref)
	return r, ok
}

func (d *Dict) GetBool(key Name) (bool, bool) {
	v, ok := d.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(Boolean)
	return bool(b), ok
}

// Stream is a dictionary plus a raw byte payload. Data holds the bytes
// exactly as they will appear between the stream and endstream
// keywords; any filters named in the dictionary have already been
// applied.
type Stream struct {
	Dict *Dict
	Data []byte
}

func (*Stream) Type() string { return "stream" }

// NewStream builds a stream whose Length entry matches the payload.
func NewStream(dict *Dict, data []byte) *Stream {
	if dict == nil {
		dict = NewDict()
	}
	dict.Set("Length", Integer(len(data)))
	return &Stream{Dict: dict, Data: data}
}

func (Ref) Type() string { return "ref" }

// FormatNumber renders a numeric operand with a locale-independent
// fixed-point format. Trailing zeros and a trailing decimal point are
// trimmed so output is compact and deterministic; precision is capped
// at six decimal places.
func FormatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
