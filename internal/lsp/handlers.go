package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/constraint"
)

func (s *Server) handleTextDocumentDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didOpen params")
	}

	doc := params.TextDocument
	s.update(doc.URI, doc.Text, doc.Version)
	s.publishDiagnostics(ctx, doc.URI)
	return reply(ctx, nil, nil)
}

func (s *Server) handleTextDocumentDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didChange params")
	}
	if len(params.ContentChanges) == 0 {
		return reply(ctx, nil, nil)
	}

	// Full sync: the last change holds the whole document.
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	s.update(params.TextDocument.URI, text, params.TextDocument.Version)
	s.publishDiagnostics(ctx, params.TextDocument.URI)
	return reply(ctx, nil, nil)
}

func (s *Server) handleTextDocumentDidClose(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didClose params")
	}

	s.mu.Lock()
	delete(s.documents, params.TextDocument.URI)
	s.mu.Unlock()

	// Clear what was published for the closed document.
	if err := s.client.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	}); err != nil {
		s.logger.Warn("clear diagnostics", zap.Error(err))
	}
	return reply(ctx, nil, nil)
}

func (s *Server) handleTextDocumentDidSave(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidSaveTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didSave params")
	}

	s.publishDiagnostics(ctx, params.TextDocument.URI)
	return reply(ctx, nil, nil)
}

// handleTextDocumentHover explains the violations reported on the hovered
// line.
func (s *Server) handleTextDocumentHover(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.HoverParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse hover params")
	}

	s.mu.Lock()
	doc, ok := s.documents[params.TextDocument.URI]
	s.mu.Unlock()
	if !ok {
		return reply(ctx, nil, nil)
	}

	line := int(params.Position.Line)
	var matched []constraint.Violation
	for _, v := range doc.result.Violations {
		if diagnosticLine(v) == line {
			matched = append(matched, v)
		}
	}
	if len(matched) == 0 {
		return reply(ctx, nil, nil)
	}

	rng := lineRange(doc.text, line)
	return reply(ctx, protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: hoverMarkdown(matched),
		},
		Range: &rng,
	}, nil)
}

// update stores the document text and validates it.
func (s *Server) update(u protocol.DocumentURI, text string, version int32) {
	result := s.enforcer.ValidateFile(uri.URI(u).Filename(), text)

	s.mu.Lock()
	s.documents[u] = &document{text: text, version: version, result: result}
	s.mu.Unlock()

	s.logger.Debug("validated",
		zap.String("uri", string(u)),
		zap.Int32("version", version),
		zap.Int("errors", result.ErrorsCount),
		zap.Int("warnings", result.WarningsCount),
	)
}

func (s *Server) publishDiagnostics(ctx context.Context, u protocol.DocumentURI) {
	s.mu.Lock()
	doc, ok := s.documents[u]
	s.mu.Unlock()
	if !ok {
		return
	}

	params := protocol.PublishDiagnosticsParams{
		URI:         u,
		Version:     uint32(doc.version),
		Diagnostics: toDiagnostics(doc.text, doc.result),
	}
	if err := s.client.PublishDiagnostics(ctx, &params); err != nil {
		s.logger.Warn("publish diagnostics", zap.String("uri", string(u)), zap.Error(err))
	}
}

// toDiagnostics converts violations into LSP diagnostics spanning their line.
// Violations without a line are reported on the first line.
func toDiagnostics(text string, result *constraint.ValidationResult) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(result.Violations))
	for _, v := range result.Violations {
		msg := v.Message
		if v.Suggestion != "" {
			msg += "\n" + v.Suggestion
		}
		out = append(out, protocol.Diagnostic{
			Range:    lineRange(text, diagnosticLine(v)),
			Severity: convertSeverity(v.Severity),
			Code:     v.RuleID,
			Source:   DiagnosticSource,
			Message:  msg,
		})
	}
	return out
}

// diagnosticLine returns the zero-based line of v.
func diagnosticLine(v constraint.Violation) int {
	if v.Line <= 0 {
		return 0
	}
	return v.Line - 1
}

// lineRange spans the whole of line in text. Lines past the end collapse to
// an empty range.
func lineRange(text string, line int) protocol.Range {
	lines := strings.Split(text, "\n")
	width := 0
	if line < len(lines) {
		width = len(strings.TrimSuffix(lines[line], "\r"))
	}
	return protocol.Range{
		Start: protocol.Position{Line: uint32(line)},
		End:   protocol.Position{Line: uint32(line), Character: uint32(width)},
	}
}

func hoverMarkdown(vs []constraint.Violation) string {
	var b strings.Builder
	for i, v := range vs {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "**%s** (%s)\n\n%s", v.RuleID, v.Severity, v.Message)
		if v.Suggestion != "" {
			fmt.Fprintf(&b, "\n\n_Suggestion:_ %s", v.Suggestion)
		}
	}
	return b.String()
}

// convertSeverity converts a violation severity to an LSP severity
func convertSeverity(severity constraint.Severity) protocol.DiagnosticSeverity {
	switch severity {
	case constraint.Error:
		return protocol.DiagnosticSeverityError
	case constraint.Warning:
		return protocol.DiagnosticSeverityWarning
	default:
		return protocol.DiagnosticSeverityInformation
	}
}
