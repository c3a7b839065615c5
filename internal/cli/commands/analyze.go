package commands

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/transmute/internal/cli/ui"
	"github.com/conduit-lang/transmute/internal/examples"
	"github.com/conduit-lang/transmute/internal/filter"
	"github.com/conduit-lang/transmute/internal/pattern"
	"github.com/conduit-lang/transmute/internal/store"
)

type analyzeResult struct {
	Name     string                         `json:"name"`
	File     string                         `json:"file"`
	Result   *filter.FilteredParsedExamples `json:"result"`
	Warnings []string                       `json:"warnings"`
}

// NewAnalyzeCommand creates the analyze command
func NewAnalyzeCommand() *cobra.Command {
	var (
		threshold   float64
		preset      string
		interactive bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <examples-file>...",
		Short: "Detect transformation patterns in example sets",
		Long: `Detect the transformation patterns that map example inputs to outputs,
then keep the patterns whose confidence reaches the threshold.

The threshold comes from --threshold, else --preset, else the analysis
section of the configuration. Example sets are analyzed concurrently.`,
		Example: `  transmute analyze examples/weather.yaml
  transmute analyze examples/*.json --preset strict
  transmute analyze examples/weather.yaml --threshold 0.8 --json
  transmute analyze examples/weather.yaml --interactive`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if interactive && !cmd.Flags().Changed("threshold") {
				prompt := &survey.Select{
					Message: "Confidence preset:",
					Options: filter.PresetNames(),
					Default: filter.DefaultPreset,
					Description: func(value string, _ int) string {
						t, _ := filter.Preset(value)
						return fmt.Sprintf("threshold %.2f", t)
					},
				}
				if err := survey.AskOne(prompt, &preset); err != nil {
					return err
				}
			}

			t, err := e.threshold(cmd, threshold, preset)
			if err != nil {
				return err
			}

			sets, err := examples.LoadAll(args)
			if err != nil {
				return err
			}
			batch := make([][]pattern.Example, len(sets))
			for i, s := range sets {
				batch[i] = s.Examples
			}
			parsed, err := e.parser().ParseBatch(cmd.Context(), batch, e.cfg.Analysis.Concurrency)
			if err != nil {
				return err
			}

			st, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			results := make([]analyzeResult, len(sets))
			for i, set := range sets {
				filtered, err := filter.Apply(parsed[i], t)
				if err != nil {
					return err
				}
				results[i] = analyzeResult{
					Name:     set.Name,
					File:     args[i],
					Result:   filtered,
					Warnings: filter.GenerateWarnings(filtered, e.cfg.WarningOptions()),
				}
				e.record(cmd.Context(), st, &store.Run{
					Kind:       store.KindAnalyze,
					ExampleSet: set.Name,
					Threshold:  &t,
					Patterns:   len(filtered.Patterns),
					Included:   len(filtered.Included),
				}, results[i])
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), results)
			}

			out := cmd.OutOrStdout()
			for i, r := range results {
				if i > 0 {
					fmt.Fprintln(out)
				}
				ui.Header(out, fmt.Sprintf("%s (%s)", r.Name, r.File), e.noColor)
				fmt.Fprint(out, filter.FormatSummary(r.Result))
				for _, w := range r.Warnings {
					fmt.Fprint(out, ui.Warning(w, e.noColor))
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&threshold, "threshold", 0, "minimum confidence in [0, 1]; overrides --preset")
	flags.StringVar(&preset, "preset", "", "threshold preset: aggressive, balanced, conservative, strict")
	flags.BoolVarP(&interactive, "interactive", "i", false, "choose the preset interactively")
	flags.BoolVar(&jsonOutput, "json", false, "print results as JSON")
	_ = cmd.RegisterFlagCompletionFunc("preset", completePresets)
	return cmd
}

// NewPresetsCommand creates the presets command
func NewPresetsCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List confidence threshold presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"presets": filter.Presets(),
					"default": filter.DefaultPreset,
				})
			}

			noColor, _ := cmd.Flags().GetBool("no-color")
			presets := filter.Presets()
			table := ui.NewTable(cmd.OutOrStdout(), noColor, "PRESET", "THRESHOLD", "DEFAULT")
			for _, name := range filter.PresetNames() {
				def := ""
				if name == filter.DefaultPreset {
					def = "yes"
				}
				table.AddRow(name, fmt.Sprintf("%.2f", presets[name]), def)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print presets as JSON")
	return cmd
}
