package filter

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/transmute/internal/pattern"
)

// Confidence band boundaries used by FormatSummary.
const (
	HighConfidence   = 0.9
	MediumConfidence = 0.7
)

// Band names a confidence bucket.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandOf buckets a confidence score.
func BandOf(confidence float64) Band {
	switch {
	case confidence >= HighConfidence:
		return BandHigh
	case confidence >= MediumConfidence:
		return BandMedium
	default:
		return BandLow
	}
}

// FormatSummary renders a deterministic breakdown of the filtered patterns by
// confidence band.
func FormatSummary(f *FilteredParsedExamples) string {
	var b strings.Builder

	total := len(f.Included) + len(f.Excluded)
	fmt.Fprintf(&b, "Confidence threshold: %.2f\n", f.Threshold)
	fmt.Fprintf(&b, "Patterns: %d total, %d included, %d excluded\n", total, len(f.Included), len(f.Excluded))

	counts := map[Band]int{}
	for _, p := range f.Included {
		counts[BandOf(p.Confidence)]++
	}
	for _, p := range f.Excluded {
		counts[BandOf(p.Confidence)]++
	}
	fmt.Fprintf(&b, "  high (>= 0.90):      %d\n", counts[BandHigh])
	fmt.Fprintf(&b, "  medium (0.70-0.89):  %d\n", counts[BandMedium])
	fmt.Fprintf(&b, "  low (< 0.70):        %d\n", counts[BandLow])

	if len(f.Included) > 0 {
		b.WriteString("Included:\n")
		writePatterns(&b, f.Included)
	}
	if len(f.Excluded) > 0 {
		b.WriteString("Excluded:\n")
		writePatterns(&b, f.Excluded)
	}
	return b.String()
}

func writePatterns(b *strings.Builder, patterns []pattern.Pattern) {
	for _, p := range patterns {
		fmt.Fprintf(b, "  [%-6s] %s\n", BandOf(p.Confidence), p)
	}
}

// WarningOptions tunes GenerateWarnings.
type WarningOptions struct {
	// MaxExcludedFraction warns when more than this share of patterns is
	// excluded (default: 0.5)
	MaxExcludedFraction float64
}

// DefaultWarningOptions returns the default warning options.
func DefaultWarningOptions() WarningOptions {
	return WarningOptions{MaxExcludedFraction: 0.5}
}

// GenerateWarnings returns advisory messages about what the threshold
// removed. Warnings are never fatal.
func GenerateWarnings(f *FilteredParsedExamples, opts WarningOptions) []string {
	if opts.MaxExcludedFraction <= 0 {
		opts.MaxExcludedFraction = DefaultWarningOptions().MaxExcludedFraction
	}

	warnings := []string{}
	total := len(f.Included) + len(f.Excluded)
	if total == 0 {
		return warnings
	}

	frac := float64(len(f.Excluded)) / float64(total)
	if frac > opts.MaxExcludedFraction {
		warnings = append(warnings, fmt.Sprintf(
			"%d of %d patterns (%.0f%%) were excluded at threshold %.2f; consider a lower threshold or more examples",
			len(f.Excluded), total, frac*100, f.Threshold))
	}

	for _, p := range f.Excluded {
		if p.Type == pattern.FieldMapping {
			warnings = append(warnings, fmt.Sprintf(
				"field mapping %s <- %s was excluded (confidence %.2f); generated code will not populate %s",
				p.TargetPath, p.SourcePath, p.Confidence, p.TargetPath))
		}
	}

	if f.Threshold >= presets[Strict] {
		var medium []string
		for _, p := range f.Excluded {
			if BandOf(p.Confidence) == BandMedium {
				medium = append(medium, p.TargetPath)
			}
		}
		if len(medium) > 0 {
			warnings = append(warnings, fmt.Sprintf(
				"strict threshold excluded %d medium-confidence patterns (%s); the balanced preset would keep them",
				len(medium), strings.Join(medium, ", ")))
		}
	}
	return warnings
}
