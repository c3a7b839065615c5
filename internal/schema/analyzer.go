package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyInput is returned when schema inference is given no values.
var ErrEmptyInput = errors.New("empty input: at least one example value is required")

// DefaultMaxArrayElements is how many leading elements of an array are
// inspected when inferring its element schema.
const DefaultMaxArrayElements = 10

// temporalLayouts are tried in order when sniffing a string for a datetime.
var temporalLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05",
}

// Analyzer infers schemas from example values.
type Analyzer struct {
	maxArrayElements int
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMaxArrayElements limits how many elements of each array are inspected.
func WithMaxArrayElements(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxArrayElements = n
		}
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{maxArrayElements: DefaultMaxArrayElements}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Infer infers a schema with the default analyzer.
func Infer(values []any) (*Schema, error) {
	return NewAnalyzer().Infer(values)
}

// Infer merges the local schema of every value into a single schema.
// The result depends only on the values and their order.
func (a *Analyzer) Infer(values []any) (*Schema, error) {
	if len(values) == 0 {
		return nil, ErrEmptyInput
	}

	var acc *Schema
	for _, v := range values {
		acc = Merge(acc, a.local(Normalize(v)))
	}
	return acc, nil
}

// local computes the schema of a single normalized value.
func (a *Analyzer) local(v any) *Schema {
	switch val := v.(type) {
	case map[string]any:
		fields := make(map[string]*Schema, len(val))
		for k, child := range val {
			fields[k] = a.local(child)
		}
		return Object(fields)
	case []any:
		var elem *Schema
		for i, child := range val {
			if i >= a.maxArrayElements {
				break
			}
			elem = Merge(elem, a.local(child))
		}
		return Array(elem)
	default:
		return Scalar(SniffType(val))
	}
}

// Merge combines two schemas symmetrically. Merge(a, b) equals Merge(b, a)
// and Merge(a, a) equals a. Neither argument is modified.
func Merge(a, b *Schema) *Schema {
	switch {
	case a == nil:
		return b.Clone()
	case b == nil:
		return a.Clone()
	}

	if isNull(a) && !isNull(b) {
		out := b.Clone()
		out.Nullable = true
		out.Optional = a.Optional || b.Optional
		return out
	}
	if isNull(b) && !isNull(a) {
		out := a.Clone()
		out.Nullable = true
		out.Optional = a.Optional || b.Optional
		return out
	}

	if a.Kind != b.Kind {
		return &Schema{
			Kind:     KindScalar,
			Type:     TypeMixed,
			Nullable: a.Nullable || b.Nullable,
			Optional: a.Optional || b.Optional,
		}
	}

	out := &Schema{
		Kind:     a.Kind,
		Nullable: a.Nullable || b.Nullable,
		Optional: a.Optional || b.Optional,
	}

	switch a.Kind {
	case KindScalar:
		out.Type = widen(a.Type, b.Type)
	case KindArray:
		out.Elem = Merge(a.Elem, b.Elem)
	case KindObject:
		out.Fields = make(map[string]*Schema, len(a.Fields)+len(b.Fields))
		for name, fa := range a.Fields {
			fb, ok := b.Fields[name]
			if !ok {
				f := fa.Clone()
				f.Optional = true
				out.Fields[name] = f
				continue
			}
			out.Fields[name] = Merge(fa, fb)
		}
		for name, fb := range b.Fields {
			if _, ok := a.Fields[name]; ok {
				continue
			}
			f := fb.Clone()
			f.Optional = true
			out.Fields[name] = f
		}
	}
	return out
}

func isNull(s *Schema) bool {
	return s.Kind == KindScalar && s.Type == TypeNull
}

// widen returns the narrowest scalar type covering both a and b.
func widen(a, b ScalarType) ScalarType {
	switch {
	case a == b:
		return a
	case a == TypeNull:
		return b
	case b == TypeNull:
		return a
	case (a == TypeDatetime && b == TypeString) || (a == TypeString && b == TypeDatetime):
		return TypeString
	default:
		return TypeMixed
	}
}

// SniffType infers the scalar type of a normalized value. Strings are
// sniffed in priority order: numeric, temporal, boolean, then string.
func SniffType(v any) ScalarType {
	switch val := v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case float64:
		return TypeNumber
	case string:
		switch {
		case isNumeric(val):
			return TypeNumber
		case isTemporal(val):
			return TypeDatetime
		case isBoolean(val):
			return TypeBoolean
		default:
			return TypeString
		}
	default:
		return TypeMixed
	}
}

// RawType reports the scalar type of a normalized value from its Go type
// alone, without sniffing string contents.
func RawType(v any) ScalarType {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case float64:
		return TypeNumber
	case string:
		return TypeString
	default:
		return TypeMixed
	}
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isTemporal(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range temporalLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isBoolean(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "false":
		return true
	}
	return false
}

// Normalize converts decoded values into the canonical representation used
// throughout the engine: map[string]any, []any, float64, string, bool and
// nil. Other numeric types become float64, time.Time becomes an RFC 3339
// string and YAML-style map[any]any becomes map[string]any.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float64:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = Normalize(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = Normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Normalize(child)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Normalize(child)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = child
		}
		return out
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return fmt.Sprint(val)
	}
}
