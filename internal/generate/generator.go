// Package generate drives code generation for filtered patterns: it asks a
// Generator for candidate source, validates it with the constraint enforcer
// and retries with the violations as feedback.
package generate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/constraint"
	"github.com/conduit-lang/transmute/internal/pattern"
	"github.com/conduit-lang/transmute/internal/schema"
)

// Request is everything a generator needs for one attempt.
type Request struct {
	PackageName  string
	TypeName     string
	InputSchema  *schema.Schema
	OutputSchema *schema.Schema
	Patterns     []pattern.Pattern
	Excluded     []pattern.Pattern

	// Attempt is 1-based.
	Attempt int

	// Feedback holds the error violations of the previous attempt.
	Feedback []constraint.Violation
}

// Generator produces candidate source for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// LLMGenerator generates source by prompting an LLM.
type LLMGenerator struct {
	client Client
	cfg    constraint.Config
	logger *zap.Logger
}

// NewLLMGenerator creates a generator. cfg is used to describe the rules the
// code must satisfy.
func NewLLMGenerator(client Client, cfg constraint.Config, logger *zap.Logger) *LLMGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGenerator{client: client, cfg: cfg, logger: logger}
}

func (g *LLMGenerator) Generate(ctx context.Context, req Request) (string, error) {
	prompt := BuildPrompt(req, g.cfg)
	g.logger.Debug("requesting code",
		zap.Int("attempt", req.Attempt),
		zap.Int("prompt_bytes", len(prompt)),
		zap.String("provider", g.client.Provider().String()),
	)

	resp, err := g.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	return ExtractCode(resp), nil
}
