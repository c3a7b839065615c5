// Package extractor defines the contract implemented by generated
// transformation code.
//
// A generated extractor looks like:
//
//	type WeatherExtractor struct {
//		extractor.Base
//	}
//
//	var _ extractor.Extractor = (*WeatherExtractor)(nil)
//
//	//transmute:inject
//	func NewWeatherExtractor(logger *zap.Logger) *WeatherExtractor {
//		return &WeatherExtractor{Base: extractor.NewBase("weather", logger)}
//	}
//
//	func (e *WeatherExtractor) Extract(ctx context.Context, input map[string]any) (map[string]any, error) {
//		...
//	}
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrMissingField is returned when a required input path is absent.
var ErrMissingField = errors.New("missing input field")

// Extractor transforms one input record into one output record.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Base carries the dependencies every extractor receives.
type Base struct {
	name   string
	logger *zap.Logger
}

// NewBase creates a Base. A nil logger is replaced by a no-op logger.
func NewBase(name string, logger *zap.Logger) Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Base{name: name, logger: logger.With(zap.String("extractor", name))}
}

// Name returns the extractor name.
func (b Base) Name() string {
	return b.name
}

// Logger returns the extractor's logger.
func (b Base) Logger() *zap.Logger {
	if b.logger == nil {
		return zap.NewNop()
	}
	return b.logger
}

// Lookup resolves a path such as "weather[0].main" in a decoded input. Keys
// containing path syntax are escaped with EscapeKey.
func Lookup(input map[string]any, path string) (any, error) {
	var cur any = input
	for _, seg := range ParsePath(path) {
		if seg.IsIndex {
			arr, ok := cur.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(arr) {
				return nil, fmt.Errorf("%w: %s", ErrMissingField, path)
			}
			cur = arr[seg.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, path)
		}
		v, ok := m[seg.Key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, path)
		}
		cur = v
	}
	return cur, nil
}

// Set writes value at a dotted path, creating intermediate objects. Index
// segments are ignored.
func Set(output map[string]any, path string, value any) {
	var keys []string
	for _, seg := range ParsePath(path) {
		if !seg.IsIndex {
			keys = append(keys, seg.Key)
		}
	}
	if len(keys) == 0 {
		return
	}
	cur := output
	for _, k := range keys[:len(keys)-1] {
		next, ok := cur[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[k] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

// PathSegment is one step of a parsed path. Index is -1 for "[]" or an index
// that is not a non-negative integer.
type PathSegment struct {
	Key     string
	Index   int
	IsIndex bool
}

// EscapeKey escapes ., [, ] and \ in an object key so it reads as a single
// path segment.
func EscapeKey(key string) string {
	if !strings.ContainsAny(key, `.[]\`) {
		return key
	}
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(key[i])
	}
	return b.String()
}

// ParsePath splits "a.b[0].c" into key and index segments. A backslash makes
// the next byte part of the key. Empty keys are skipped.
func ParsePath(path string) []PathSegment {
	var (
		segs  []PathSegment
		key   strings.Builder
		inKey bool
	)
	flush := func() {
		if inKey {
			segs = append(segs, PathSegment{Key: key.String()})
			key.Reset()
			inKey = false
		}
	}
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '\\':
			if i+1 < len(path) {
				i++
			}
			key.WriteByte(path[i])
			inKey = true
		case '.':
			flush()
		case '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				key.WriteString(path[i:])
				inKey = true
				i = len(path)
				continue
			}
			idx := -1
			if n, err := strconv.Atoi(path[i+1 : i+end]); err == nil && n >= 0 {
				idx = n
			}
			segs = append(segs, PathSegment{Index: idx, IsIndex: true})
			i += end
		default:
			key.WriteByte(c)
			inKey = true
		}
	}
	flush()
	return segs
}
