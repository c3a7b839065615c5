// Package schema infers and represents the shape of structured example data.
// A Schema is built from decoded JSON/YAML values (maps, slices and scalars)
// and is shared by the pattern parser, the filter and the code generator.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/transmute/pkg/extractor"
)

// Kind is the structural kind of a Schema node.
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindArray
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ScalarType is the inferred primitive type of a scalar node.
type ScalarType string

const (
	TypeString   ScalarType = "string"
	TypeNumber   ScalarType = "number"
	TypeBoolean  ScalarType = "boolean"
	TypeNull     ScalarType = "null"
	TypeDatetime ScalarType = "datetime"
	// TypeMixed is the widened type of conflicting scalars. Consumers treat
	// it as a string.
	TypeMixed ScalarType = "mixed"
)

// Schema is the inferred shape of a set of values.
type Schema struct {
	Kind Kind `json:"kind"`

	// Type is set for scalars only.
	Type ScalarType `json:"type,omitempty"`

	// Nullable records that null was observed alongside a non-null type.
	Nullable bool `json:"nullable,omitempty"`

	// Optional is set on object fields missing from at least one example.
	Optional bool `json:"optional,omitempty"`

	// Fields is set for objects only.
	Fields map[string]*Schema `json:"fields,omitempty"`

	// Elem is the merged element schema of an array. Nil when every
	// observed array was empty.
	Elem *Schema `json:"elem,omitempty"`
}

// Scalar returns a scalar schema of the given type.
func Scalar(t ScalarType) *Schema {
	return &Schema{Kind: KindScalar, Type: t}
}

// Object returns an object schema with the given fields.
func Object(fields map[string]*Schema) *Schema {
	if fields == nil {
		fields = make(map[string]*Schema)
	}
	return &Schema{Kind: KindObject, Fields: fields}
}

// Array returns an array schema with the given element schema.
func Array(elem *Schema) *Schema {
	return &Schema{Kind: KindArray, Elem: elem}
}

// FieldNames returns the object's field names in sorted order.
func (s *Schema) FieldNames() []string {
	if s == nil || s.Kind != KindObject {
		return nil
	}
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := *s
	if s.Fields != nil {
		c.Fields = make(map[string]*Schema, len(s.Fields))
		for name, f := range s.Fields {
			c.Fields[name] = f.Clone()
		}
	}
	c.Elem = s.Elem.Clone()
	return &c
}

// Equal reports whether two schemas are identical field for field.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Kind != other.Kind || s.Type != other.Type ||
		s.Nullable != other.Nullable || s.Optional != other.Optional {
		return false
	}
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for name, f := range s.Fields {
		o, ok := other.Fields[name]
		if !ok || !f.Equal(o) {
			return false
		}
	}
	return s.Elem.Equal(other.Elem)
}

// Lookup resolves a dotted path such as "main.temp" or "items[].name".
// Array elements are addressed with "[]" or any index.
func (s *Schema) Lookup(path string) (*Schema, bool) {
	cur := s
	for _, seg := range extractor.ParsePath(path) {
		if cur == nil {
			return nil, false
		}
		if seg.IsIndex {
			if cur.Kind != KindArray {
				return nil, false
			}
			cur = cur.Elem
			continue
		}
		if cur.Kind != KindObject {
			return nil, false
		}
		next, ok := cur.Fields[seg.Key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// Leaf is a terminal node of an object schema together with its dotted path.
// Keys containing path syntax are escaped as by extractor.EscapeKey.
type Leaf struct {
	Path   string
	Schema *Schema
}

// Leaves returns the leaf paths of the schema in sorted order. Scalars and
// arrays are leaves; objects are descended into. A root scalar or array
// yields a single leaf with an empty path.
func (s *Schema) Leaves() []Leaf {
	var leaves []Leaf
	collectLeaves(s, "", &leaves)
	return leaves
}

func collectLeaves(s *Schema, prefix string, out *[]Leaf) {
	if s == nil {
		return
	}
	if s.Kind != KindObject {
		*out = append(*out, Leaf{Path: prefix, Schema: s})
		return
	}
	for _, name := range s.FieldNames() {
		path := extractor.EscapeKey(name)
		if prefix != "" {
			path = prefix + "." + path
		}
		collectLeaves(s.Fields[name], path, out)
	}
}

// String renders the schema deterministically, e.g.
// {main: {temp: number}, tags?: [string]}.
func (s *Schema) String() string {
	var b strings.Builder
	writeSchema(&b, s)
	return b.String()
}

func writeSchema(b *strings.Builder, s *Schema) {
	if s == nil {
		b.WriteString("unknown")
		return
	}
	switch s.Kind {
	case KindObject:
		b.WriteString("{")
		for i, name := range s.FieldNames() {
			if i > 0 {
				b.WriteString(", ")
			}
			f := s.Fields[name]
			b.WriteString(name)
			if f.Optional {
				b.WriteString("?")
			}
			b.WriteString(": ")
			writeSchema(b, f)
		}
		b.WriteString("}")
	case KindArray:
		b.WriteString("[")
		writeSchema(b, s.Elem)
		b.WriteString("]")
	default:
		b.WriteString(string(s.Type))
	}
	if s.Nullable {
		b.WriteString("|null")
	}
}

// GoString implements fmt.GoStringer for readable test failures.
func (s *Schema) GoString() string {
	return fmt.Sprintf("schema.Schema(%s)", s.String())
}
