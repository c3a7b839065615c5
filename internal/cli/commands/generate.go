package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/transmute/internal/cli/ui"
	"github.com/conduit-lang/transmute/internal/examples"
	"github.com/conduit-lang/transmute/internal/filter"
	"github.com/conduit-lang/transmute/internal/generate"
	"github.com/conduit-lang/transmute/internal/store"
)

// NewGenerateCommand creates the generate command
func NewGenerateCommand() *cobra.Command {
	var (
		threshold   float64
		preset      string
		output      string
		packageName string
		typeName    string
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:     "generate <examples-file>",
		Aliases: []string{"g"},
		Short:   "Generate a validated extractor from an example set",
		Long: `Generate Go extractor code for the confident patterns of an example set.

Each candidate from the configured LLM provider is checked against the code
constraints. Error violations are fed back for another attempt until the
code is accepted or the attempt budget runs out.`,
		Example: `  transmute generate examples/weather.yaml -o transform/weather.go
  transmute generate pairs.json --preset strict --type PairExtractor
  transmute g examples/weather.yaml --max-attempts 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			t, err := e.threshold(cmd, threshold, preset)
			if err != nil {
				return err
			}
			set, err := examples.Load(args[0])
			if err != nil {
				return err
			}
			parsed, err := e.parser().Parse(set.Examples)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			filtered, err := filter.Apply(parsed, t)
			if err != nil {
				return err
			}

			gen, err := e.generator()
			if err != nil {
				return err
			}
			enforcer, err := e.enforcer()
			if err != nil {
				return err
			}

			loop := &generate.Loop{
				Generator:   gen,
				Enforcer:    enforcer,
				MaxAttempts: e.cfg.Generator.MaxAttempts,
				PackageName: e.cfg.Generator.PackageName,
				TypeName:    e.cfg.Generator.TypeName,
				Logger:      e.logger.Named("loop"),
			}
			if cmd.Flags().Changed("max-attempts") {
				loop.MaxAttempts = maxAttempts
			}
			if packageName != "" {
				loop.PackageName = packageName
			}
			if typeName != "" {
				loop.TypeName = typeName
			}

			outcome, runErr := runLoop(cmd, e.noColor, loop, filtered)
			if outcome == nil {
				return runErr
			}

			st, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}
			valid := outcome.State == generate.StateAccept
			e.record(cmd.Context(), st, &store.Run{
				Kind:       store.KindGenerate,
				ExampleSet: set.Name,
				Threshold:  &t,
				Patterns:   len(filtered.Patterns),
				Included:   len(filtered.Included),
				Valid:      &valid,
			}, outcome)

			if runErr != nil {
				if outcome.Result != nil {
					for _, v := range outcome.Result.Errors() {
						fmt.Fprintln(cmd.ErrOrStderr(), ui.FormatViolation("candidate", v, e.noColor))
					}
				}
				return runErr
			}

			if output == "" || output == "-" {
				fmt.Fprint(cmd.OutOrStdout(), outcome.Source)
				return nil
			}
			if err := os.WriteFile(output, []byte(outcome.Source), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			ui.WriteSuccess(cmd.ErrOrStderr(), fmt.Sprintf("wrote %s (%d attempt(s))", output, len(outcome.Attempts)), e.noColor)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&threshold, "threshold", 0, "minimum confidence in [0, 1]; overrides --preset")
	flags.StringVar(&preset, "preset", "", "threshold preset")
	flags.StringVarP(&output, "output", "o", "", "write the accepted source to this file (default: stdout)")
	flags.StringVar(&packageName, "package", "", "package name of the generated code")
	flags.StringVar(&typeName, "type", "", "name of the generated extractor type")
	flags.IntVar(&maxAttempts, "max-attempts", generate.DefaultMaxAttempts, "generation attempts before giving up")
	_ = cmd.RegisterFlagCompletionFunc("preset", completePresets)
	return cmd
}

// runLoop runs the generation loop behind a spinner on stderr that follows
// the loop's state transitions.
func runLoop(cmd *cobra.Command, noColor bool, loop *generate.Loop, filtered *filter.FilteredParsedExamples) (*generate.Outcome, error) {
	spinner := ui.NewSpinner(cmd.ErrOrStderr(), ui.SpinnerOptions{Message: "generating", NoColor: noColor})
	loop.Observer = func(ev generate.Event) {
		switch ev.State {
		case generate.StateGenerate:
			spinner.UpdateMessage(fmt.Sprintf("attempt %d: generating", ev.Attempt))
		case generate.StateValidate:
			spinner.UpdateMessage(fmt.Sprintf("attempt %d: validating", ev.Attempt))
		case generate.StateRetry:
			spinner.UpdateMessage(fmt.Sprintf("attempt %d rejected: %s", ev.Attempt, ev.Result.Summary()))
		}
	}

	spinner.Start()
	outcome, err := loop.Run(cmd.Context(), filtered)
	switch {
	case err == nil:
		spinner.Success(fmt.Sprintf("accepted after %d attempt(s)", len(outcome.Attempts)))
	case errors.Is(err, generate.ErrAttemptsExhausted):
		spinner.Error("no candidate satisfied the constraints")
	default:
		spinner.Error("generation failed")
	}
	return outcome, err
}
