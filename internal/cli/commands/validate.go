package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/batch"
	"github.com/conduit-lang/transmute/internal/cache"
	"github.com/conduit-lang/transmute/internal/cli/ui"
	"github.com/conduit-lang/transmute/internal/constraint"
	"github.com/conduit-lang/transmute/internal/store"
	"github.com/conduit-lang/transmute/internal/watch"
)

// ErrValidationFailed is returned when at least one file has error violations.
var ErrValidationFailed = errors.New("validation failed")

type fileResult struct {
	File   string                       `json:"file"`
	Cached bool                         `json:"cached"`
	Result *constraint.ValidationResult `json:"result"`
}

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	var (
		jsonOutput bool
		severities []string
		disabled   []string
		watchMode  bool
	)

	cmd := &cobra.Command{
		Use:   "validate <file.go>...",
		Short: "Check extractor source against the code constraints",
		Long: `Check Go extractor source files against the structural, complexity,
security and logging constraints.

Rule severities can be overridden per run with --severity and rules can be
switched off with --disable; both accept a rule ID or a rule name. The
command exits non-zero when any file has an error violation. With --watch
the files are checked again on every save until interrupted.`,
		Example: `  transmute validate transform/extractor.go
  transmute validate gen/*.go --json
  transmute validate extractor.go --severity structured-logging=error --disable complexity
  transmute validate transform/*.go --watch`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			override, err := parseOverrides(severities, disabled)
			if err != nil {
				return err
			}

			v, release, err := e.validator(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			warnUnknownKeys(cmd, e, v.Enforcer(), override)

			st, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			c := &checker{cmd: cmd, env: e, validator: v, override: override, store: st, jsonOutput: jsonOutput}
			if !watchMode {
				return c.check(cmd.Context(), args)
			}
			return c.watchFiles(args)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&jsonOutput, "json", false, "print reports as JSON")
	flags.StringArrayVar(&severities, "severity", nil, "override a rule severity, e.g. structured-logging=error")
	flags.StringSliceVar(&disabled, "disable", nil, "rule IDs or names to skip")
	flags.BoolVarP(&watchMode, "watch", "w", false, "re-validate files whenever they change")
	return cmd
}

// checker validates files, records the runs and prints the reports.
type checker struct {
	cmd        *cobra.Command
	env        *env
	validator  *cache.Validator
	override   *constraint.Config
	store      *store.Store
	jsonOutput bool
}

// check returns ErrValidationFailed when any file has an error violation.
func (c *checker) check(ctx context.Context, paths []string) error {
	results, err := batch.Map(ctx, paths, c.env.cfg.Analysis.Concurrency,
		func(ctx context.Context, _ int, path string) (fileResult, error) {
			src, err := os.ReadFile(path)
			if err != nil {
				return fileResult{}, err
			}
			result, hit := c.validator.Validate(ctx, string(src), c.override)
			return fileResult{File: path, Cached: hit, Result: result}, nil
		})
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if !r.Result.Valid {
			failed++
		}
		c.env.record(ctx, c.store, &store.Run{
			Kind:       store.KindValidate,
			ExampleSet: r.File,
			Valid:      &r.Result.Valid,
		}, r.Result)
	}

	if c.jsonOutput {
		if err := writeJSON(c.cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		printResults(c.cmd, c.env.noColor, results)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d file(s)", ErrValidationFailed, failed, len(results))
	}
	return nil
}

// watchFiles checks paths once, then again for each batch of changed files until
// interrupted. Failures are reported and watching continues.
func (c *checker) watchFiles(paths []string) error {
	ctx, stop := signal.NotifyContext(c.cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	report := func(files []string) {
		mu.Lock()
		defer mu.Unlock()
		if err := c.check(ctx, files); err != nil {
			c.env.logger.Debug("check failed", zap.Error(err))
			if !errors.Is(err, ErrValidationFailed) {
				ui.WriteError(c.cmd.ErrOrStderr(), ui.ErrorOptions{Problem: err.Error(), NoColor: c.env.noColor})
			}
		}
	}

	report(paths)
	fw, err := watch.NewFileWatcher(paths, watch.DefaultDelay, report, c.env.logger.Named("watch"))
	if err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		_ = fw.Stop()
		return err
	}
	fmt.Fprintf(c.cmd.ErrOrStderr(), "watching %d file(s), press Ctrl+C to stop\n", len(paths))
	<-ctx.Done()
	return fw.Stop()
}

func printResults(cmd *cobra.Command, noColor bool, results []fileResult) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		for _, v := range r.Result.Violations {
			fmt.Fprintln(out, ui.FormatViolation(r.File, v, noColor))
		}
		summary := fmt.Sprintf("%s: %s", r.File, r.Result.Summary())
		if r.Result.Valid {
			ui.WriteSuccess(out, summary, noColor)
		} else {
			ui.WriteError(out, ui.ErrorOptions{Problem: summary, NoColor: noColor})
		}
	}
}

// parseOverrides turns key=severity pairs and disabled keys into a config
// override, or nil when there is nothing to override.
func parseOverrides(severities, disabled []string) (*constraint.Config, error) {
	if len(severities) == 0 && len(disabled) == 0 {
		return nil, nil
	}
	cfg := constraint.Config{Disabled: disabled}
	for _, pair := range severities {
		key, level, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--severity %q: want rule=level", pair)
		}
		sev, err := constraint.ParseSeverity(level)
		if err != nil {
			return nil, fmt.Errorf("--severity %q: %w", pair, err)
		}
		cfg = cfg.WithSeverity(key, sev)
	}
	return &cfg, nil
}

// warnUnknownKeys flags override keys that match no rule ID or name.
func warnUnknownKeys(cmd *cobra.Command, e *env, enforcer *constraint.Enforcer, override *constraint.Config) {
	if override == nil {
		return
	}
	known := constraint.RuleIDs()
	for _, r := range enforcer.Rules() {
		known = append(known, r.Name())
	}
	isKnown := make(map[string]bool, len(known))
	for _, k := range known {
		isKnown[k] = true
	}

	keys := append([]string(nil), override.Disabled...)
	for k := range override.Severities {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if isKnown[k] {
			continue
		}
		ui.WriteError(cmd.ErrOrStderr(), ui.ErrorOptions{
			Level:       ui.ErrorLevelWarning,
			Problem:     fmt.Sprintf("%q matches no rule and has no effect", k),
			Suggestions: ui.FindSimilar(k, known, nil),
			NoColor:     e.noColor,
		})
	}
}
