package pattern

import (
	"context"
	"fmt"

	"github.com/conduit-lang/transmute/internal/batch"
	"github.com/conduit-lang/transmute/internal/schema"
)

// Options controls pattern detection.
type Options struct {
	// MaxExamples limits the supporting pairs stored per pattern (default: 5)
	MaxExamples int

	// MaxDepth limits how deep input structures are searched (default: 8)
	MaxDepth int

	// MaxArrayIndex limits how many leading array elements are searched (default: 5)
	MaxArrayIndex int

	// MaxArrayElements limits array elements inspected by schema inference (default: 10)
	MaxArrayElements int
}

// DefaultOptions returns the default detection options.
func DefaultOptions() Options {
	return Options{
		MaxExamples:      5,
		MaxDepth:         8,
		MaxArrayIndex:    5,
		MaxArrayElements: schema.DefaultMaxArrayElements,
	}
}

// Parser turns example pairs into schemas and patterns.
type Parser struct {
	opts     Options
	analyzer *schema.Analyzer
}

// NewParser creates a parser with default options.
func NewParser() *Parser {
	return NewParserWithOptions(DefaultOptions())
}

// NewParserWithOptions creates a parser with custom options. Non-positive
// values fall back to the defaults.
func NewParserWithOptions(opts Options) *Parser {
	def := DefaultOptions()
	if opts.MaxExamples <= 0 {
		opts.MaxExamples = def.MaxExamples
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.MaxArrayIndex <= 0 {
		opts.MaxArrayIndex = def.MaxArrayIndex
	}
	if opts.MaxArrayElements <= 0 {
		opts.MaxArrayElements = def.MaxArrayElements
	}
	return &Parser{
		opts:     opts,
		analyzer: schema.NewAnalyzer(schema.WithMaxArrayElements(opts.MaxArrayElements)),
	}
}

// Options returns the parser's options.
func (p *Parser) Options() Options {
	return p.opts
}

// Parse infers input and output schemas and detects one pattern per output
// leaf field. Patterns are ordered by target path.
func (p *Parser) Parse(examples []Example) (*ParsedExamples, error) {
	if len(examples) == 0 {
		return nil, ErrInsufficientExamples
	}

	inputs := make([]any, len(examples))
	outputs := make([]any, len(examples))
	for i, ex := range examples {
		if ex.Input == nil {
			return nil, fmt.Errorf("%w: example %d has no input", ErrMalformedExample, i)
		}
		if ex.Output == nil {
			return nil, fmt.Errorf("%w: example %d has no output", ErrMalformedExample, i)
		}
		inputs[i] = schema.Normalize(ex.Input)
		outputs[i] = schema.Normalize(ex.Output)
	}

	inSchema, err := p.analyzer.Infer(inputs)
	if err != nil {
		return nil, fmt.Errorf("inferring input schema: %w", err)
	}
	outSchema, err := p.analyzer.Infer(outputs)
	if err != nil {
		return nil, fmt.Errorf("inferring output schema: %w", err)
	}

	flats := make([]map[string]node, len(inputs))
	for i, in := range inputs {
		flats[i] = flatten(in, p.opts.MaxDepth, p.opts.MaxArrayIndex)
	}

	leaves := outSchema.Leaves()
	patterns := make([]Pattern, 0, len(leaves))
	for _, leaf := range leaves {
		obs := make([]observation, 0, len(outputs))
		for i, out := range outputs {
			v, ok := lookupDotted(out, leaf.Path)
			if !ok {
				continue
			}
			obs = append(obs, observation{example: i, flat: flats[i], output: v})
		}
		patterns = append(patterns, p.detect(leaf.Path, obs))
	}

	return &ParsedExamples{
		InputSchema:  inSchema,
		OutputSchema: outSchema,
		Patterns:     patterns,
		ExampleCount: len(examples),
	}, nil
}

// ParseBatch parses independent example sets concurrently. Results are
// returned in the order of sets; the first error cancels the remaining work.
func (p *Parser) ParseBatch(ctx context.Context, sets [][]Example, concurrency int) ([]*ParsedExamples, error) {
	return batch.Map(ctx, sets, concurrency, func(_ context.Context, i int, set []Example) (*ParsedExamples, error) {
		parsed, err := p.Parse(set)
		if err != nil {
			return nil, fmt.Errorf("example set %d: %w", i, err)
		}
		return parsed, nil
	})
}
