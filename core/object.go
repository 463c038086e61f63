package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Object is the closed set of PDF object types. Every value in a parsed
// document is one of Null, Bool, Int, Real, String, Name, Array, Dict,
// *Stream or IndirectRef. References are plain values and are never
// resolved implicitly; resolution is always an explicit lookup against the
// document's object index.
type Object interface {
	Type() ObjectType
	String() string
}

// ObjectType identifies the concrete type of an Object.
type ObjectType int

const (
	ObjNull ObjectType = iota
	ObjBool
	ObjInt
	ObjReal
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjStream
	ObjIndirect
)

func (t ObjectType) String() string {
	switch t {
	case ObjNull:
		return "Null"
	case ObjBool:
		return "Bool"
	case ObjInt:
		return "Int"
	case ObjReal:
		return "Real"
	case ObjString:
		return "String"
	case ObjName:
		return "Name"
	case ObjArray:
		return "Array"
	case ObjDict:
		return "Dict"
	case ObjStream:
		return "Stream"
	case ObjIndirect:
		return "IndirectRef"
	default:
		return "Unknown"
	}
}

// Null is the PDF null object.
type Null struct{}

func (n Null) Type() ObjectType { return ObjNull }
func (n Null) String() string   { return "null" }

// Bool is a PDF boolean.
type Bool bool

func (b Bool) Type() ObjectType { return ObjBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int is a PDF integer.
type Int int64

func (i Int) Type() ObjectType { return ObjInt }
func (i Int) String() string   { return strconv.FormatInt(int64(i), 10) }

// Real is a PDF real number.
type Real float64

func (r Real) Type() ObjectType { return ObjReal }
func (r Real) String() string   { return strconv.FormatFloat(float64(r), 'f', -1, 64) }

// String is a PDF string. The value holds raw bytes exactly as parsed; in
// an encrypted document it stays ciphertext until the loader decrypts it.
type String string

func (s String) Type() ObjectType { return ObjString }

// String renders the value as a literal string. Delimiters and
// backslashes are escaped and bytes outside printable ASCII use octal
// escapes, so the output parses back to the same bytes.
func (s String) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&b, `\%03o`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte(')')
	return b.String()
}

// Name is a PDF name object with any #xx escapes already decoded.
type Name string

func (n Name) Type() ObjectType { return ObjName }

// String renders the name with a leading slash, re-escaping delimiters,
// whitespace and '#' as #xx so the output parses back to the same name.
func (n Name) String() string {
	var b strings.Builder
	b.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c <= 0x20 || c >= 0x7f || strings.IndexByte("()<>[]{}/%#", c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Array is an ordered sequence of objects.
type Array []Object

func (a Array) Type() ObjectType { return ObjArray }
func (a Array) String() string {
	parts := make([]string, len(a))
	for i, obj := range a {
		parts[i] = obj.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Len returns the number of elements.
func (a Array) Len() int { return len(a) }

// Get returns the element at index, or nil when out of range.
func (a Array) Get(index int) Object {
	if index < 0 || index >= len(a) {
		return nil
	}
	return a[index]
}

// GetInt returns the integer at index.
func (a Array) GetInt(index int) (Int, bool) {
	i, ok := a.Get(index).(Int)
	return i, ok
}

// GetReal returns the real number at index.
func (a Array) GetReal(index int) (Real, bool) {
	r, ok := a.Get(index).(Real)
	return r, ok
}

// GetNumber returns the element at index as a float64, accepting either
// Int or Real. Media boxes mix both freely.
func (a Array) GetNumber(index int) (float64, bool) {
	switch v := a.Get(index).(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	default:
		return 0, false
	}
}

// GetName returns the name at index.
func (a Array) GetName(index int) (Name, bool) {
	n, ok := a.Get(index).(Name)
	return n, ok
}

// Dict is a mapping of name keys (without the leading slash) to objects.
type Dict map[string]Object

func (d Dict) Type() ObjectType { return ObjDict }
func (d Dict) String() string {
	keys := d.Keys()
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = Name(k).String() + " " + d[k].String()
	}
	return "<<" + strings.Join(parts, " ") + ">>"
}

// Get returns the value for key, or nil when absent.
func (d Dict) Get(key string) Object { return d[key] }

// GetName returns the name value for key.
func (d Dict) GetName(key string) (Name, bool) {
	n, ok := d[key].(Name)
	return n, ok
}

// GetInt returns the integer value for key.
func (d Dict) GetInt(key string) (Int, bool) {
	i, ok := d[key].(Int)
	return i, ok
}

// GetReal returns the real value for key.
func (d Dict) GetReal(key string) (Real, bool) {
	r, ok := d[key].(Real)
	return r, ok
}

// GetNumber returns the value for key as a float64, accepting Int or Real.
func (d Dict) GetNumber(key string) (float64, bool) {
	switch v := d[key].(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	default:
		return 0, false
	}
}

// GetBool returns the boolean value for key.
func (d Dict) GetBool(key string) (Bool, bool) {
	b, ok := d[key].(Bool)
	return b, ok
}

// GetString returns the string value for key.
func (d Dict) GetString(key string) (String, bool) {
	s, ok := d[key].(String)
	return s, ok
}

// GetDict returns the dictionary value for key.
func (d Dict) GetDict(key string) (Dict, bool) {
	dict, ok := d[key].(Dict)
	return dict, ok
}

// GetArray returns the array value for key.
func (d Dict) GetArray(key string) (Array, bool) {
	arr, ok := d[key].(Array)
	return arr, ok
}

// GetStream returns the stream value for key.
func (d Dict) GetStream(key string) (*Stream, bool) {
	s, ok := d[key].(*Stream)
	return s, ok
}

// GetIndirectRef returns the indirect reference value for key.
func (d Dict) GetIndirectRef(key string) (IndirectRef, bool) {
	ref, ok := d[key].(IndirectRef)
	return ref, ok
}

// Has reports whether key is present.
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Set stores value under key.
func (d Dict) Set(key string, value Object) { d[key] = value }

// Delete removes key.
func (d Dict) Delete(key string) { delete(d, key) }

// Keys returns all keys in unspecified order.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	return keys
}

// Stream is a PDF stream: a dictionary plus its raw byte payload. Data
// holds exactly the /Length bytes as they appear in the file; filter
// decoding happens in Decode and decryption in the loader.
type Stream struct {
	Dict Dict
	Data []byte
}

func (s *Stream) Type() ObjectType { return ObjStream }
func (s *Stream) String() string {
	return fmt.Sprintf("stream %s (%d bytes)", s.Dict.String(), len(s.Data))
}

// IndirectRef is an unresolved reference to an indirect object.
type IndirectRef struct {
	Number     int
	Generation int
}

func (r IndirectRef) Type() ObjectType { return ObjIndirect }
func (r IndirectRef) String() string {
	return fmt.Sprintf("%d %d R", r.Number, r.Generation)
}

// IndirectObject is a parsed "N G obj ... endobj" definition.
type IndirectObject struct {
	Ref    IndirectRef
	Object Object
}
