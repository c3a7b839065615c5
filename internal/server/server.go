// Package server exposes schema inference, pattern analysis, code validation
// and generation over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/cache"
	"github.com/conduit-lang/transmute/internal/filter"
	"github.com/conduit-lang/transmute/internal/generate"
	"github.com/conduit-lang/transmute/internal/pattern"
	"github.com/conduit-lang/transmute/internal/store"
)

// RunStore records and reads run history.
type RunStore interface {
	Save(ctx context.Context, run *store.Run) error
	Get(ctx context.Context, id string) (*store.Run, error)
	List(ctx context.Context, opts store.ListOptions) ([]*store.Run, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes limits request bodies (default: 4 MiB)
	MaxBodyBytes int64

	// Auth protects /v1 routes when non-nil and enabled.
	Auth *Authenticator
}

// Deps are the components the handlers call.
type Deps struct {
	Parser    *pattern.Parser
	Validator *cache.Validator

	// Store is optional; without it runs are not recorded and the history
	// routes answer 404.
	Store RunStore

	// Generator is optional; without it the generate routes answer 503.
	Generator   generate.Generator
	MaxAttempts int
	PackageName string
	TypeName    string

	Warnings filter.WarningOptions
	Logger   *zap.Logger
}

// Server is the transmute HTTP API.
type Server struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	router chi.Router
}

// New builds a server and its routes.
func New(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Parser == nil {
		deps.Parser = pattern.NewParser()
	}
	if deps.Warnings.MaxExcludedFraction == 0 {
		deps.Warnings = filter.DefaultWarningOptions()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}

	s := &Server{deps: deps, opts: opts, logger: deps.Logger}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", s.opts.Addr, err)
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "the requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("method %s is not allowed for this resource", r.Method))
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if s.opts.Auth.Enabled() {
			r.Use(s.opts.Auth.Middleware)
		}
		r.Get("/presets", s.handlePresets)

		r.Group(func(r chi.Router) {
			r.Use(s.limitBody)
			r.Post("/schema", s.handleSchema)
			r.Post("/analyze", s.handleAnalyze)
			r.Post("/validate", s.handleValidate)
			r.Post("/generate", s.handleGenerate)
		})
		r.Get("/generate/stream", s.handleGenerateStream)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}
