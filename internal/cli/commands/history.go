package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/transmute/internal/cli/ui"
	"github.com/conduit-lang/transmute/internal/store"
)

var errHistoryDisabled = errors.New("run history is disabled: set store.dsn in transmute.yaml or TRANSMUTE_STORE_DSN")

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	var (
		kind       string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded analyze, validate and generate runs",
		Example: `  transmute history
  transmute history --kind generate --limit 10
  transmute history show 3f6c...
  transmute history prune --older-than 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(e *env, st *store.Store) error {
				runs, err := st.List(cmd.Context(), store.ListOptions{Kind: store.Kind(kind), Limit: limit})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), runs)
				}

				table := ui.NewTable(cmd.OutOrStdout(), e.noColor, "ID", "KIND", "CREATED", "EXAMPLE SET", "PATTERNS", "VALID")
				for _, r := range runs {
					table.AddRow(
						r.ID,
						string(r.Kind),
						r.CreatedAt.Local().Format(time.DateTime),
						r.ExampleSet,
						fmt.Sprintf("%d/%d", r.Included, r.Patterns),
						formatValid(r.Valid),
					)
				}
				table.Render()
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&kind, "kind", "", "only runs of this kind: analyze, validate, generate")
	flags.IntVar(&limit, "limit", store.DefaultListLimit, "maximum number of runs")
	flags.BoolVar(&jsonOutput, "json", false, "print runs as JSON")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run and its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(e *env, st *store.Store) error {
				run, err := st.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				kv := ui.NewKeyValueTable(out, e.noColor)
				kv.AddRow("ID", run.ID)
				kv.AddRow("Kind", string(run.Kind))
				kv.AddRow("Created", run.CreatedAt.Local().Format(time.RFC3339))
				if run.ExampleSet != "" {
					kv.AddRow("Example set", run.ExampleSet)
				}
				if run.Threshold != nil {
					kv.AddRow("Threshold", strconv.FormatFloat(*run.Threshold, 'f', 2, 64))
				}
				if run.Kind != store.KindValidate {
					kv.AddRow("Patterns", fmt.Sprintf("%d included of %d", run.Included, run.Patterns))
				}
				kv.AddRow("Valid", formatValid(run.Valid))
				kv.Render()

				if len(run.Result) > 0 {
					var pretty bytes.Buffer
					if err := json.Indent(&pretty, run.Result, "", "  "); err != nil {
						return fmt.Errorf("stored result: %w", err)
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, pretty.String())
				}
				return nil
			})
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return withStore(cmd, func(e *env, st *store.Store) error {
				n, err := st.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("pruned %d run(s)", n), e.noColor)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the newest run to delete")
	return cmd
}

func withStore(cmd *cobra.Command, fn func(*env, *store.Store) error) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	st, err := e.openStore(cmd.Context())
	if err != nil {
		return err
	}
	if st == nil {
		return errHistoryDisabled
	}
	defer st.Close()
	return fn(e, st)
}

func formatValid(v *bool) string {
	switch {
	case v == nil:
		return "-"
	case *v:
		return "yes"
	default:
		return "no"
	}
}
