// Package filter partitions detected patterns by a confidence threshold and
// explains what the cut removed.
package filter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/conduit-lang/transmute/internal/pattern"
)

var (
	// ErrThresholdRange is returned when a threshold lies outside [0, 1].
	ErrThresholdRange = errors.New("confidence threshold must be between 0.0 and 1.0")

	// ErrUnknownPreset is returned by Preset for names that are not defined.
	ErrUnknownPreset = errors.New("unknown threshold preset")
)

// Preset names.
const (
	Conservative = "conservative"
	Balanced     = "balanced"
	Aggressive   = "aggressive"
	Strict       = "strict"
)

// DefaultPreset is used when no threshold or preset is configured.
const DefaultPreset = Balanced

var presets = map[string]float64{
	Conservative: 0.8,
	Balanced:     0.7,
	Aggressive:   0.6,
	Strict:       0.9,
}

// Presets returns a copy of the named threshold presets.
func Presets() map[string]float64 {
	out := make(map[string]float64, len(presets))
	for k, v := range presets {
		out[k] = v
	}
	return out
}

// PresetNames returns the preset names ordered by ascending threshold.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for k := range presets {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		return presets[names[i]] < presets[names[j]]
	})
	return names
}

// Preset returns the threshold for a named preset.
func Preset(name string) (float64, error) {
	t, ok := presets[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return t, nil
}

// Resolve picks the threshold to filter with: an explicit threshold wins,
// then a named preset, then DefaultPreset.
func Resolve(threshold *float64, preset string) (float64, error) {
	if threshold != nil {
		if !inRange(*threshold) {
			return 0, fmt.Errorf("%w: got %g", ErrThresholdRange, *threshold)
		}
		return *threshold, nil
	}
	if preset == "" {
		preset = DefaultPreset
	}
	return Preset(preset)
}

// inRange reports whether t lies in [0, 1]. NaN does not.
func inRange(t float64) bool {
	return t >= 0 && t <= 1
}

// FilteredParsedExamples is a ParsedExamples partitioned by threshold.
type FilteredParsedExamples struct {
	*pattern.ParsedExamples
	Threshold float64           `json:"confidence_threshold"`
	Included  []pattern.Pattern `json:"included_patterns"`
	Excluded  []pattern.Pattern `json:"excluded_patterns"`
}

// Apply partitions parsed patterns: a pattern is included iff its confidence
// is at least threshold. Relative order is preserved in both partitions.
func Apply(parsed *pattern.ParsedExamples, threshold float64) (*FilteredParsedExamples, error) {
	if !inRange(threshold) {
		return nil, fmt.Errorf("%w: got %g", ErrThresholdRange, threshold)
	}
	if parsed == nil {
		return nil, errors.New("filter: nil parsed examples")
	}

	f := &FilteredParsedExamples{
		ParsedExamples: parsed,
		Threshold:      threshold,
		Included:       []pattern.Pattern{},
		Excluded:       []pattern.Pattern{},
	}
	for _, p := range parsed.Patterns {
		if p.Confidence >= threshold {
			f.Included = append(f.Included, p)
		} else {
			f.Excluded = append(f.Excluded, p)
		}
	}
	return f, nil
}

// ApplyPreset is Apply with a named preset.
func ApplyPreset(parsed *pattern.ParsedExamples, name string) (*FilteredParsedExamples, error) {
	t, err := Preset(name)
	if err != nil {
		return nil, err
	}
	return Apply(parsed, t)
}
