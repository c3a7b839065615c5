package lsp

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/constraint"
)

const execSource = `package transform

import "os/exec"

func Run() { _ = exec.Command("true").Run() }
`

// harness runs a Server on one end of a pipe and a JSON-RPC client on the
// other, collecting published diagnostics.
type harness struct {
	server *Server
	conn   jsonrpc2.Conn
	diags  chan protocol.PublishDiagnosticsParams
	done   chan struct{}
	err    error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	h := &harness{
		server: NewServer(constraint.NewEnforcer(constraint.DefaultConfig()), zap.NewNop()),
		diags:  make(chan protocol.PublishDiagnosticsParams, 16),
		done:   make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		h.err = h.server.Serve(ctx, serverSide)
		close(h.done)
	}()

	h.conn = jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	h.conn.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		if req.Method() == protocol.MethodTextDocumentPublishDiagnostics {
			var p protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(req.Params(), &p); err != nil {
				return err
			}
			h.diags <- p
		}
		return reply(ctx, nil, nil)
	})

	t.Cleanup(func() {
		cancel()
		_ = h.conn.Close()
		<-h.done
	})
	return h
}

func (h *harness) call(t *testing.T, method string, params, result any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.conn.Call(ctx, method, params, result)
	require.NoError(t, err)
}

func (h *harness) notify(t *testing.T, method string, params any) {
	t.Helper()
	require.NoError(t, h.conn.Notify(context.Background(), method, params))
}

func (h *harness) nextDiagnostics(t *testing.T) protocol.PublishDiagnosticsParams {
	t.Helper()
	select {
	case p := <-h.diags:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no diagnostics published")
		return protocol.PublishDiagnosticsParams{}
	}
}

func TestServerInitialization(t *testing.T) {
	server := NewServer(constraint.NewEnforcer(constraint.DefaultConfig()), nil)
	require.NotNil(t, server)
	assert.NotNil(t, server.logger)
	assert.Equal(t, true, server.capabilities.HoverProvider)
}

func TestInitialize(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()

	var result protocol.InitializeResult
	h.call(t, protocol.MethodInitialize, protocol.InitializeParams{
		RootURI: protocol.DocumentURI(uri.File(root)),
	}, &result)

	require.NotNil(t, result.ServerInfo)
	assert.Equal(t, "transmute-lsp", result.ServerInfo.Name)
	assert.Equal(t, true, result.Capabilities.HoverProvider)
	assert.Equal(t, root, h.server.workspaceRoot)
}

func TestDiagnosticsLifecycle(t *testing.T) {
	h := newHarness(t)
	docURI := protocol.DocumentURI(uri.File(filepath.Join(t.TempDir(), "extractor.go")))

	h.notify(t, protocol.MethodTextDocumentDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: docURI, LanguageID: "go", Version: 1, Text: execSource},
	})
	opened := h.nextDiagnostics(t)
	assert.Equal(t, docURI, opened.URI)
	assert.Equal(t, uint32(1), opened.Version)

	var importDiag *protocol.Diagnostic
	for i, d := range opened.Diagnostics {
		if d.Code == constraint.RuleImportAllowlist {
			importDiag = &opened.Diagnostics[i]
		}
	}
	require.NotNil(t, importDiag, "expected an import diagnostic in %+v", opened.Diagnostics)
	assert.Equal(t, protocol.DiagnosticSeverityError, importDiag.Severity)
	assert.Equal(t, uint32(2), importDiag.Range.Start.Line)
	assert.Equal(t, DiagnosticSource, importDiag.Source)

	var hover protocol.Hover
	h.call(t, protocol.MethodTextDocumentHover, protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
			Position:     protocol.Position{Line: 2, Character: 3},
		},
	}, &hover)
	assert.Equal(t, protocol.Markdown, hover.Contents.Kind)
	assert.Contains(t, hover.Contents.Value, constraint.RuleImportAllowlist)

	h.notify(t, protocol.MethodTextDocumentDidChange, protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: docURI},
			Version:                2,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: "package transform\n"}},
	})
	changed := h.nextDiagnostics(t)
	assert.Equal(t, uint32(2), changed.Version)
	for _, d := range changed.Diagnostics {
		assert.NotEqual(t, constraint.RuleImportAllowlist, d.Code)
	}

	h.notify(t, protocol.MethodTextDocumentDidClose, protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
	})
	closed := h.nextDiagnostics(t)
	assert.Empty(t, closed.Diagnostics)
}

func TestHover_UnknownDocument(t *testing.T) {
	h := newHarness(t)

	var hover *protocol.Hover
	h.call(t, protocol.MethodTextDocumentHover, protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: "file:///nowhere.go"},
		},
	}, &hover)
	assert.Nil(t, hover)
}

func TestUnknownMethod(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.conn.Call(ctx, "textDocument/completion", map[string]any{}, nil)
	assert.Error(t, err)
}

func TestExit(t *testing.T) {
	h := newHarness(t)

	h.call(t, protocol.MethodShutdown, nil, nil)
	h.notify(t, protocol.MethodExit, nil)

	select {
	case <-h.done:
		assert.NoError(t, h.err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit")
	}
}
