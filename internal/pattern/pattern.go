// Package pattern detects, per output field, how example outputs derive from
// example inputs. Each detected rule is a Pattern carrying a confidence score
// and the example pairs that support it.
package pattern

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/transmute/internal/schema"
)

var (
	// ErrInsufficientExamples is returned when Parse is called without examples.
	ErrInsufficientExamples = errors.New("insufficient examples: at least one example pair is required")

	// ErrMalformedExample is returned when an example lacks an input or output.
	ErrMalformedExample = errors.New("malformed example")
)

// Type classifies how an output field derives from the input.
type Type string

const (
	DirectCopy        Type = "direct-copy"
	FieldMapping      Type = "field-mapping"
	FieldExtraction   Type = "field-extraction"
	Constant          Type = "constant"
	ArrayFirstElement Type = "array-first-element"
	TypeConversion    Type = "type-conversion"
)

// Types lists every pattern type in detection priority order.
func Types() []Type {
	return []Type{FieldExtraction, FieldMapping, ArrayFirstElement, Constant, TypeConversion, DirectCopy}
}

// Example is one (input, output) pair supplied by the user.
type Example struct {
	Input       any    `json:"input" yaml:"input"`
	Output      any    `json:"output" yaml:"output"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Pair is an (input value, output value) pair supporting a pattern.
type Pair struct {
	Input  any `json:"input"`
	Output any `json:"output"`
}

// Pattern is one inferred transformation rule for a single output field.
// Patterns are created by the Parser and never modified afterwards.
type Pattern struct {
	Type       Type              `json:"type"`
	Confidence float64           `json:"confidence"`
	SourcePath string            `json:"source_path,omitempty"`
	TargetPath string            `json:"target_path"`
	SourceType schema.ScalarType `json:"source_type,omitempty"`
	TargetType schema.ScalarType `json:"target_type,omitempty"`
	Examples   []Pair            `json:"examples"`
	Notes      string            `json:"notes,omitempty"`
}

// String returns a one-line description of the pattern.
func (p Pattern) String() string {
	switch p.Type {
	case Constant:
		return fmt.Sprintf("%s = constant (%.2f)", p.TargetPath, p.Confidence)
	default:
		return fmt.Sprintf("%s <- %s [%s] (%.2f)", p.TargetPath, p.SourcePath, p.Type, p.Confidence)
	}
}

// ParsedExamples is the result of parsing an example set.
type ParsedExamples struct {
	InputSchema  *schema.Schema `json:"input_schema"`
	OutputSchema *schema.Schema `json:"output_schema"`
	Patterns     []Pattern      `json:"patterns"`
	ExampleCount int            `json:"example_count"`
}
