package pattern

import (
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/transmute/pkg/extractor"
)

// Segment is one step of a Path: either an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path addresses a value inside a structured input, e.g. weather[0].main.
type Path []Segment

// String renders the path in dotted/indexed form, escaping keys that contain
// path syntax.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(extractor.EscapeKey(seg.Key))
	}
	return b.String()
}

// Depth is the number of segments in the path.
func (p Path) Depth() int {
	return len(p)
}

// IsNested reports whether the path is anything other than a single
// top-level key.
func (p Path) IsNested() bool {
	return len(p) != 1 || p[0].IsIndex
}

// EndsInFirstIndex reports whether the final segment is the index 0.
func (p Path) EndsInFirstIndex() bool {
	return len(p) > 0 && p[len(p)-1].IsIndex && p[len(p)-1].Index == 0
}

func (p Path) child(seg Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// node is a value found at a path while walking an input.
type node struct {
	path  Path
	value any
}

// flatten walks a normalized value and returns every nested node (not the
// root) keyed by its path string. Object keys are visited in sorted order.
func flatten(v any, maxDepth, maxIndex int) map[string]node {
	out := make(map[string]node)
	walk(v, nil, maxDepth, maxIndex, out)
	return out
}

func walk(v any, prefix Path, maxDepth, maxIndex int, out map[string]node) {
	if len(prefix) >= maxDepth {
		return
	}
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := prefix.child(Segment{Key: k})
			out[p.String()] = node{path: p, value: val[k]}
			walk(val[k], p, maxDepth, maxIndex, out)
		}
	case []any:
		for i, child := range val {
			if i >= maxIndex {
				break
			}
			p := prefix.child(Segment{Index: i, IsIndex: true})
			out[p.String()] = node{path: p, value: child}
			walk(child, p, maxDepth, maxIndex, out)
		}
	}
}

// lookupDotted resolves a dotted object path (no indices) in a normalized
// value. The empty path resolves to the value itself.
func lookupDotted(v any, path string) (any, bool) {
	cur := v
	for _, seg := range extractor.ParsePath(path) {
		m, ok := cur.(map[string]any)
		if seg.IsIndex || !ok {
			return nil, false
		}
		cur, ok = m[seg.Key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
