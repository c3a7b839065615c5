package constraint

import "strings"

// Config holds every limit and list the rules consult. Treat it as a value:
// Merge and the With helpers return copies and never modify the receiver.
type Config struct {
	// AllowedImports lists import paths generated code may use. An entry
	// ending in "/..." allows every path below it.
	AllowedImports []string

	// DeniedImports maps import paths to the reason they are refused.
	DeniedImports map[string]string

	// ExtractorSuffix marks struct types that must implement the required
	// interface (default: "Extractor")
	ExtractorSuffix string

	// RequiredInterface is the interface extractors assert conformance to
	RequiredInterface string

	// BaseType may be embedded instead of asserting conformance
	BaseType string

	// InjectDirective must precede constructors of designated types
	InjectDirective string

	// InjectTypes names the designated types. Empty means every extractor.
	InjectTypes []string

	MaxCyclomatic    int
	MaxFunctionLines int
	MaxTypeLines     int

	// HardMultiple turns complexity warnings into errors past limit*HardMultiple
	HardMultiple float64

	// Severities overrides the severity of a rule ID or a rule name
	Severities map[string]Severity

	// Disabled lists rule IDs or rule names to skip
	Disabled []string
}

// DefaultConfig returns the default constraint configuration.
func DefaultConfig() Config {
	return Config{
		AllowedImports: []string{
			"bytes",
			"context",
			"database/sql",
			"encoding/json",
			"errors",
			"fmt",
			"math",
			"net/url",
			"os",
			"regexp",
			"sort",
			"strconv",
			"strings",
			"time",
			"unicode",
			"unicode/utf8",
			"go.uber.org/zap",
			"github.com/conduit-lang/transmute/pkg/...",
		},
		DeniedImports: map[string]string{
			"os/exec":  "spawns external processes",
			"syscall":  "performs raw system calls",
			"unsafe":   "bypasses memory safety",
			"plugin":   "loads code at runtime",
			"net/http": "performs network access",
			"os/user":  "reads host account data",
		},
		ExtractorSuffix:   "Extractor",
		RequiredInterface: "extractor.Extractor",
		BaseType:          "extractor.Base",
		InjectDirective:   "//transmute:inject",
		MaxCyclomatic:     10,
		MaxFunctionLines:  50,
		MaxTypeLines:      300,
		HardMultiple:      2,
	}
}

// Merge returns c with every non-zero field of o applied on top. Map entries
// are merged key by key.
func (c Config) Merge(o Config) Config {
	out := c.clone()
	if o.AllowedImports != nil {
		out.AllowedImports = append([]string(nil), o.AllowedImports...)
	}
	for k, v := range o.DeniedImports {
		if out.DeniedImports == nil {
			out.DeniedImports = map[string]string{}
		}
		out.DeniedImports[k] = v
	}
	if o.ExtractorSuffix != "" {
		out.ExtractorSuffix = o.ExtractorSuffix
	}
	if o.RequiredInterface != "" {
		out.RequiredInterface = o.RequiredInterface
	}
	if o.BaseType != "" {
		out.BaseType = o.BaseType
	}
	if o.InjectDirective != "" {
		out.InjectDirective = o.InjectDirective
	}
	if o.InjectTypes != nil {
		out.InjectTypes = append([]string(nil), o.InjectTypes...)
	}
	if o.MaxCyclomatic > 0 {
		out.MaxCyclomatic = o.MaxCyclomatic
	}
	if o.MaxFunctionLines > 0 {
		out.MaxFunctionLines = o.MaxFunctionLines
	}
	if o.MaxTypeLines > 0 {
		out.MaxTypeLines = o.MaxTypeLines
	}
	if o.HardMultiple > 0 {
		out.HardMultiple = o.HardMultiple
	}
	for k, v := range o.Severities {
		if out.Severities == nil {
			out.Severities = map[string]Severity{}
		}
		out.Severities[k] = v
	}
	if o.Disabled != nil {
		out.Disabled = append(out.Disabled, o.Disabled...)
	}
	return out
}

// WithSeverity returns a copy of c with a severity override.
func (c Config) WithSeverity(key string, s Severity) Config {
	return c.Merge(Config{Severities: map[string]Severity{key: s}})
}

// WithDisabled returns a copy of c with the given rules disabled.
func (c Config) WithDisabled(keys ...string) Config {
	return c.Merge(Config{Disabled: keys})
}

func (c Config) clone() Config {
	out := c
	out.AllowedImports = append([]string(nil), c.AllowedImports...)
	out.InjectTypes = append([]string(nil), c.InjectTypes...)
	out.Disabled = append([]string(nil), c.Disabled...)
	if c.DeniedImports != nil {
		out.DeniedImports = make(map[string]string, len(c.DeniedImports))
		for k, v := range c.DeniedImports {
			out.DeniedImports[k] = v
		}
	}
	if c.Severities != nil {
		out.Severities = make(map[string]Severity, len(c.Severities))
		for k, v := range c.Severities {
			out.Severities[k] = v
		}
	}
	return out
}

// importAllowed reports whether path is on the allow-list.
func (c Config) importAllowed(path string) bool {
	for _, allowed := range c.AllowedImports {
		if prefix, ok := strings.CutSuffix(allowed, "/..."); ok {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if path == allowed {
			return true
		}
	}
	return false
}

func (c Config) disabled(keys ...string) bool {
	for _, d := range c.Disabled {
		for _, k := range keys {
			if d == k {
				return true
			}
		}
	}
	return false
}

// severity resolves the configured severity for a violation, checking the
// rule ID before the rule name.
func (c Config) severity(ruleID, ruleName string, def Severity) Severity {
	if s, ok := c.Severities[ruleID]; ok {
		return s
	}
	if s, ok := c.Severities[ruleName]; ok {
		return s
	}
	return def
}

// isExtractor reports whether a type name is subject to the interface and
// injection rules.
func (c Config) isExtractor(name string) bool {
	return c.ExtractorSuffix != "" && name != c.ExtractorSuffix && strings.HasSuffix(name, c.ExtractorSuffix)
}

func (c Config) injectable(name string) bool {
	if len(c.InjectTypes) == 0 {
		return c.isExtractor(name)
	}
	for _, t := range c.InjectTypes {
		if t == name {
			return true
		}
	}
	return false
}
