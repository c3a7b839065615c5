package commands

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/transmute/internal/cli/ui"
	"github.com/conduit-lang/transmute/internal/examples"
	"github.com/conduit-lang/transmute/internal/schema"
)

type inferredSchema struct {
	Schema     *schema.Schema     `json:"schema"`
	JSONSchema *jsonschema.Schema `json:"json_schema"`
}

type inferResult struct {
	Name   string         `json:"name"`
	Input  inferredSchema `json:"input"`
	Output inferredSchema `json:"output"`
}

// NewInferCommand creates the infer command
func NewInferCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "infer <examples-file>",
		Short: "Infer input and output schemas from an example set",
		Long: `Infer the schema of the inputs and of the outputs of an example set.

Fields missing from some examples are marked optional, nulls make a field
nullable, and strings that always hold numbers, booleans or dates are
typed accordingly.`,
		Example: `  transmute infer examples/weather.yaml
  transmute infer pairs.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			set, err := examples.Load(args[0])
			if err != nil {
				return err
			}
			parsed, err := e.parser().Parse(set.Examples)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), inferResult{
					Name:   set.Name,
					Input:  inferredSchema{Schema: parsed.InputSchema, JSONSchema: parsed.InputSchema.JSONSchema()},
					Output: inferredSchema{Schema: parsed.OutputSchema, JSONSchema: parsed.OutputSchema.JSONSchema()},
				})
			}

			out := cmd.OutOrStdout()
			ui.Header(out, fmt.Sprintf("Input schema (%s, %d examples)", set.Name, parsed.ExampleCount), e.noColor)
			fmt.Fprintln(out, parsed.InputSchema)
			fmt.Fprintln(out)
			ui.Header(out, "Output schema", e.noColor)
			fmt.Fprintln(out, parsed.OutputSchema)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print schemas and JSON Schema documents as JSON")
	return cmd
}
