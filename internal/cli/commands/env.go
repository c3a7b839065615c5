package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/cache"
	"github.com/conduit-lang/transmute/internal/cli/config"
	"github.com/conduit-lang/transmute/internal/cli/ui"
	"github.com/conduit-lang/transmute/internal/constraint"
	"github.com/conduit-lang/transmute/internal/filter"
	"github.com/conduit-lang/transmute/internal/generate"
	"github.com/conduit-lang/transmute/internal/logging"
	"github.com/conduit-lang/transmute/internal/pattern"
	"github.com/conduit-lang/transmute/internal/store"
)

// env is the configuration and logger shared by one command run.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	noColor bool
}

// loadEnv reads the persistent flags, the config file and the environment.
func loadEnv(cmd *cobra.Command) (*env, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	noColor, _ := flags.GetBool("no-color")

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), noColor))
		return nil, err
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return &env{cfg: cfg, logger: logger, noColor: noColor}, nil
}

func (e *env) close() {
	_ = e.logger.Sync()
}

func (e *env) parser() *pattern.Parser {
	return pattern.NewParserWithOptions(e.cfg.ParserOptions())
}

func (e *env) enforcer() (*constraint.Enforcer, error) {
	cc, err := e.cfg.ConstraintConfig()
	if err != nil {
		return nil, err
	}
	return constraint.NewEnforcer(cc, constraint.WithLogger(e.logger.Named("constraint"))), nil
}

// openCache returns nil when caching is disabled.
func (e *env) openCache(ctx context.Context) (cache.Cache, error) {
	c := e.cfg.Cache
	cc := cache.Config{DefaultTTL: c.TTL, Prefix: c.Prefix}
	switch c.Backend {
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Cache:    cc,
		})
	case "none":
		return nil, nil
	default:
		return cache.NewMemoryCache(cc), nil
	}
}

// validator builds a caching validator. The returned func releases the cache.
func (e *env) validator(ctx context.Context) (*cache.Validator, func(), error) {
	enforcer, err := e.enforcer()
	if err != nil {
		return nil, nil, err
	}
	c, err := e.openCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	release := func() {}
	if c != nil {
		release = func() { _ = c.Close() }
	}
	return cache.NewValidator(enforcer, c, e.cfg.Cache.TTL, e.logger.Named("cache")), release, nil
}

// openStore returns nil when no store DSN is configured.
func (e *env) openStore(ctx context.Context) (*store.Store, error) {
	if e.cfg.Store.DSN == "" {
		return nil, nil
	}
	return store.Open(ctx, e.cfg.Store.Driver, e.cfg.Store.DSN)
}

func (e *env) generator() (generate.Generator, error) {
	client, err := generate.NewClient(e.cfg.ProviderConfig(), e.logger.Named("llm"))
	if err != nil {
		return nil, err
	}
	cc, err := e.cfg.ConstraintConfig()
	if err != nil {
		return nil, err
	}
	return generate.NewLLMGenerator(client, cc, e.logger.Named("generate")), nil
}

// record saves a run when history is enabled. Failures are logged only.
func (e *env) record(ctx context.Context, st *store.Store, run *store.Run, result any) {
	if st == nil {
		return
	}
	data, err := json.Marshal(result)
	if err == nil {
		run.Result = data
		err = st.Save(ctx, run)
	}
	if err != nil {
		e.logger.Warn("record run", zap.String("kind", string(run.Kind)), zap.Error(err))
	}
}

// threshold resolves the confidence threshold: --threshold, then --preset,
// then the configuration.
func (e *env) threshold(cmd *cobra.Command, threshold float64, preset string) (float64, error) {
	var (
		t   float64
		err error
	)
	switch {
	case cmd.Flags().Changed("threshold"):
		t, err = filter.Resolve(&threshold, "")
	case preset != "":
		t, err = filter.Resolve(nil, preset)
	default:
		t, err = e.cfg.Threshold()
	}
	if errors.Is(err, filter.ErrUnknownPreset) {
		name := preset
		if name == "" {
			name = e.cfg.Analysis.Preset
		}
		fmt.Fprint(cmd.ErrOrStderr(), ui.UnknownPresetError(name, filter.PresetNames(), e.noColor))
	}
	return t, err
}

// completePresets completes --preset values.
func completePresets(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return filter.PresetNames(), cobra.ShellCompDirectiveNoFileComp
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
