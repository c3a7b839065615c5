// Package examples reads example sets from JSON or YAML files.
//
// A file holds either an object
//
//	name: weather
//	description: OpenWeatherMap to internal reading
//	examples:
//	  - input: {main: {temp: 15.5}}
//	    output: {temperature_c: 15.5}
//
// or a bare list of {input, output} pairs.
package examples

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/transmute/internal/pattern"
	"github.com/conduit-lang/transmute/internal/schema"
)

// ErrUnsupportedFormat is returned for files that are neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported example file format")

// Format is an example file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// ExampleSet is a named list of example pairs.
type ExampleSet struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Examples    []pattern.Example `json:"examples" yaml:"examples"`
}

// Load reads and validates the example set at path. The set is named after
// the file when it carries no name.
func Load(path string) (*ExampleSet, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read example file: %w", err)
	}

	set, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if set.Name == "" {
		base := filepath.Base(path)
		set.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return set, nil
}

// LoadAll loads every path in order, stopping at the first failure.
func LoadAll(paths []string) ([]*ExampleSet, error) {
	sets := make([]*ExampleSet, 0, len(paths))
	for _, p := range paths {
		set, err := Load(p)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// Parse decodes an example set and normalizes every value.
func Parse(data []byte, format Format) (*ExampleSet, error) {
	var set ExampleSet
	switch format {
	case FormatJSON:
		if err := decodeJSON(data, &set); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := decodeYAML(data, &set); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	for i := range set.Examples {
		set.Examples[i].Input = schema.Normalize(set.Examples[i].Input)
		set.Examples[i].Output = schema.Normalize(set.Examples[i].Output)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

func decodeJSON(data []byte, set *ExampleSet) error {
	trimmed := bytes.TrimSpace(data)
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var err error
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = dec.Decode(&set.Examples)
	} else {
		err = dec.Decode(set)
	}
	if err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, set *ExampleSet) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	if len(root.Content) == 0 {
		return nil
	}

	doc := root.Content[0]
	var err error
	if doc.Kind == yaml.SequenceNode {
		err = doc.Decode(&set.Examples)
	} else {
		err = doc.Decode(set)
	}
	if err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// Validate reports the first structural problem of the set.
func (s *ExampleSet) Validate() error {
	if len(s.Examples) == 0 {
		return pattern.ErrInsufficientExamples
	}
	for i, ex := range s.Examples {
		if ex.Input == nil || ex.Output == nil {
			return fmt.Errorf("%w: example %d needs both input and output", pattern.ErrMalformedExample, i)
		}
	}
	return nil
}
