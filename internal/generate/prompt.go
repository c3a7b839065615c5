package generate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/transmute/internal/constraint"
	"github.com/conduit-lang/transmute/internal/pattern"
)

// systemPrompt frames every generation request.
const systemPrompt = `You write Go data transformation code. Reply with one complete Go file in a single ` + "```go" + ` block and nothing else.`

// BuildPrompt renders the user prompt for one generation attempt.
func BuildPrompt(req Request, cfg constraint.Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write package %s with a struct type %s that implements %s.\n\n",
		req.PackageName, req.TypeName, cfg.RequiredInterface)

	b.WriteString("Requirements:\n")
	fmt.Fprintf(&b, "- embed %s and add `var _ %s = (*%s)(nil)`\n", cfg.BaseType, cfg.RequiredInterface, req.TypeName)
	fmt.Fprintf(&b, "- provide func New%s(logger *zap.Logger) *%s preceded by the line %s\n", req.TypeName, req.TypeName, cfg.InjectDirective)
	b.WriteString("- Extract(ctx context.Context, input map[string]any) (map[string]any, error)\n")
	b.WriteString("- use extractor.Lookup and extractor.Set for nested paths; paths below are in their syntax, with \\. escaping a dot inside a key\n")
	b.WriteString("- log with the zap logger from Base; never print to stdout\n")
	fmt.Fprintf(&b, "- keep functions under %d lines and cyclomatic complexity under %d\n", cfg.MaxFunctionLines, cfg.MaxCyclomatic)
	fmt.Fprintf(&b, "- imports allowed: %s\n", strings.Join(cfg.AllowedImports, ", "))

	if req.InputSchema != nil {
		fmt.Fprintf(&b, "\nInput shape: %s\n", req.InputSchema)
	}
	if req.OutputSchema != nil {
		fmt.Fprintf(&b, "Output shape: %s\n", req.OutputSchema)
	}

	b.WriteString("\nTransformation rules (one per output field):\n")
	for _, p := range req.Patterns {
		b.WriteString("- ")
		b.WriteString(describePattern(p))
		b.WriteByte('\n')
	}

	if len(req.Excluded) > 0 {
		targets := make([]string, 0, len(req.Excluded))
		for _, p := range req.Excluded {
			targets = append(targets, p.TargetPath)
		}
		sort.Strings(targets)
		fmt.Fprintf(&b, "\nDo not populate these low-confidence fields: %s\n", strings.Join(targets, ", "))
	}

	if len(req.Feedback) > 0 {
		fmt.Fprintf(&b, "\nAttempt %d was rejected. Fix every problem below:\n", req.Attempt-1)
		for _, v := range req.Feedback {
			fmt.Fprintf(&b, "- %s\n", v)
			if v.Suggestion != "" {
				fmt.Fprintf(&b, "  fix: %s\n", v.Suggestion)
			}
		}
	}
	return b.String()
}

func describePattern(p pattern.Pattern) string {
	var rule string
	switch p.Type {
	case pattern.Constant:
		rule = fmt.Sprintf("%s is always %s", p.TargetPath, exampleOutput(p))
	case pattern.TypeConversion:
		rule = fmt.Sprintf("%s = %s converted from %s to %s", p.TargetPath, p.SourcePath, p.SourceType, p.TargetType)
	case pattern.ArrayFirstElement:
		rule = fmt.Sprintf("%s = first element %s", p.TargetPath, p.SourcePath)
	case pattern.DirectCopy:
		if p.SourcePath == "" {
			rule = fmt.Sprintf("%s has no known source; leave it unset", p.TargetPath)
		} else {
			rule = fmt.Sprintf("%s = %s unchanged", p.TargetPath, p.SourcePath)
		}
	default:
		rule = fmt.Sprintf("%s = %s", p.TargetPath, p.SourcePath)
	}
	return fmt.Sprintf("%s (%s, confidence %.2f)", rule, p.Type, p.Confidence)
}

func exampleOutput(p pattern.Pattern) string {
	if len(p.Examples) == 0 {
		return "unknown"
	}
	data, err := json.Marshal(p.Examples[0].Output)
	if err != nil {
		return fmt.Sprint(p.Examples[0].Output)
	}
	return string(data)
}
