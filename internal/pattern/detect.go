package pattern

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/transmute/internal/schema"
)

// ambiguityWeight scales the confidence penalty applied when several source
// paths explain an output field equally well.
const ambiguityWeight = 0.25

// singleExampleConstantConfidence caps the confidence of a constant inferred
// from one example, where constant and derived values are indistinguishable.
const singleExampleConstantConfidence = 0.5

// observation is one example in which the output field is present.
type observation struct {
	example int
	flat    map[string]node
	output  any
}

// match is the outcome of evaluating one detection step.
type match struct {
	typ      Type
	path     Path
	hits     []int // indexes into the observation slice
	fraction float64
	ties     []Path
	notes    string
}

func (m *match) holds() bool {
	return m != nil && m.fraction == 1
}

// detect classifies a single output field. Steps are evaluated in priority
// order: field mapping/extraction (with array-first-element folded in),
// constant, type conversion, direct copy. The first step holding for every
// observation wins; otherwise the best partial step wins.
func (p *Parser) detect(target string, obs []observation) Pattern {
	if len(obs) == 0 {
		return Pattern{
			Type:       DirectCopy,
			TargetPath: target,
			Notes:      "output field never observed",
		}
	}

	candidates := candidatePaths(target, obs)

	search := searchEqual(target, candidates, obs)
	constant := detectConstant(obs)
	conversion := searchConversion(target, candidates, obs)
	direct := detectDirectCopy(target, obs)

	ordered := []*match{search, constant, conversion, direct}
	if len(obs) == 1 {
		// One observation cannot distinguish a constant from a derived
		// value, so constant is only a last resort.
		ordered = []*match{search, conversion, direct}
	}

	var best *match
	for _, m := range ordered {
		if m.holds() {
			best = m
			break
		}
	}
	if best == nil {
		for _, m := range ordered {
			if m != nil && m.fraction > 0 && (best == nil || m.fraction > best.fraction) {
				best = m
			}
		}
	}

	if best == nil {
		if len(obs) == 1 {
			pat := p.build(target, constant, obs)
			pat.Confidence = singleExampleConstantConfidence
			pat.Notes = "single example; value treated as constant"
			return pat
		}
		return Pattern{
			Type:       DirectCopy,
			TargetPath: target,
			TargetType: schema.RawType(obs[0].output),
			Examples:   []Pair{},
			Notes:      "no derivation found in any example",
		}
	}

	return p.build(target, best, obs)
}

// build converts a winning match into an immutable Pattern.
func (p *Parser) build(target string, m *match, obs []observation) Pattern {
	pat := Pattern{
		Type:       m.typ,
		TargetPath: target,
		Confidence: confidence(m.fraction, len(m.ties)),
		Notes:      m.notes,
	}
	if m.path != nil {
		pat.SourcePath = m.path.String()
	}

	limit := p.opts.MaxExamples
	if limit > len(m.hits) {
		limit = len(m.hits)
	}
	pat.Examples = make([]Pair, 0, limit)
	for _, h := range m.hits[:limit] {
		o := obs[h]
		var in any
		if m.path != nil {
			in = o.flat[m.path.String()].value
		}
		pat.Examples = append(pat.Examples, Pair{Input: in, Output: o.output})
	}

	if len(m.hits) > 0 {
		first := obs[m.hits[0]]
		pat.TargetType = schema.RawType(first.output)
		if m.path != nil {
			pat.SourceType = schema.RawType(first.flat[m.path.String()].value)
		}
	}
	return pat
}

// confidence penalizes ambiguity: k equally good candidate paths divide the
// matched fraction by 1 + 0.25*(k-1).
func confidence(fraction float64, ties int) float64 {
	if ties < 1 {
		ties = 1
	}
	c := fraction / (1 + ambiguityWeight*float64(ties-1))
	return math.Round(c*1e4) / 1e4
}

// candidatePaths returns the union of input paths across observations,
// ordered shallowest first. At equal depth the path identical to the target
// sorts first, then paths sort lexically.
func candidatePaths(target string, obs []observation) []Path {
	seen := make(map[string]Path)
	for _, o := range obs {
		for key, n := range o.flat {
			if _, ok := seen[key]; !ok {
				seen[key] = n.path
			}
		}
	}

	paths := make([]Path, 0, len(seen))
	for _, p := range seen {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := paths[i].Depth(), paths[j].Depth()
		if di != dj {
			return di < dj
		}
		si, sj := paths[i].String(), paths[j].String()
		if (si == target) != (sj == target) {
			return si == target
		}
		return si < sj
	})
	return paths
}

// rankPaths scores every candidate with pred and returns the best path, the
// observations it satisfies and all paths tied with it.
func rankPaths(candidates []Path, obs []observation, pred func(in, out any) bool) (Path, []int, []Path) {
	var (
		best     Path
		bestHits []int
		ties     []Path
	)
	for _, c := range candidates {
		key := c.String()
		var hits []int
		for i, o := range obs {
			n, ok := o.flat[key]
			if ok && pred(n.value, o.output) {
				hits = append(hits, i)
			}
		}
		switch {
		case len(hits) == 0:
		case len(hits) > len(bestHits):
			best, bestHits, ties = c, hits, []Path{c}
		case len(hits) == len(bestHits):
			ties = append(ties, c)
		}
	}
	return best, bestHits, ties
}

// searchEqual is detection step 1: a consistent input path whose value equals
// the output. A winner identical to the target path is left for later steps.
func searchEqual(target string, candidates []Path, obs []observation) *match {
	best, hits, ties := rankPaths(candidates, obs, valuesEqual)
	if best == nil || best.String() == target {
		return nil
	}

	m := &match{
		path:     best,
		hits:     hits,
		fraction: float64(len(hits)) / float64(len(obs)),
		ties:     ties,
	}
	switch {
	case best.EndsInFirstIndex():
		m.typ = ArrayFirstElement
	case best.IsNested():
		m.typ = FieldExtraction
	default:
		m.typ = FieldMapping
	}
	m.notes = describe(fmt.Sprintf("value found at %s", best), len(hits), len(obs), ties)
	return m
}

// detectConstant is detection step 2: the same output value in every example.
func detectConstant(obs []observation) *match {
	counts := make([]int, len(obs))
	bestIdx, bestCount := 0, 0
	for i := range obs {
		for j := range obs {
			if valuesEqual(obs[i].output, obs[j].output) {
				counts[i]++
			}
		}
		if counts[i] > bestCount {
			bestIdx, bestCount = i, counts[i]
		}
	}
	if len(obs) > 1 && bestCount < 2 {
		return nil
	}

	var hits []int
	for i := range obs {
		if valuesEqual(obs[i].output, obs[bestIdx].output) {
			hits = append(hits, i)
		}
	}
	return &match{
		typ:      Constant,
		hits:     hits,
		fraction: float64(len(hits)) / float64(len(obs)),
		notes:    fmt.Sprintf("output is %v in %d/%d examples", obs[bestIdx].output, len(hits), len(obs)),
	}
}

// searchConversion is detection step 4: a consistent input path whose value
// converts to the output across primitive types.
func searchConversion(target string, candidates []Path, obs []observation) *match {
	best, hits, ties := rankPaths(candidates, obs, converts)
	if best == nil {
		return nil
	}
	first := obs[hits[0]]
	from := schema.RawType(first.flat[best.String()].value)
	to := schema.RawType(first.output)
	return &match{
		typ:      TypeConversion,
		path:     best,
		hits:     hits,
		fraction: float64(len(hits)) / float64(len(obs)),
		ties:     ties,
		notes:    describe(fmt.Sprintf("%s converted from %s to %s", best, from, to), len(hits), len(obs), ties),
	}
}

// detectDirectCopy is detection step 5: the identical path with a literally
// equal value.
func detectDirectCopy(target string, obs []observation) *match {
	if target == "" {
		return nil
	}
	var (
		hits []int
		path Path
	)
	for i, o := range obs {
		n, ok := o.flat[target]
		if ok && valuesEqual(n.value, o.output) {
			hits = append(hits, i)
			path = n.path
		}
	}
	if len(hits) == 0 {
		return nil
	}
	return &match{
		typ:      DirectCopy,
		path:     path,
		hits:     hits,
		fraction: float64(len(hits)) / float64(len(obs)),
		ties:     []Path{path},
		notes:    fmt.Sprintf("copied unchanged in %d/%d examples", len(hits), len(obs)),
	}
}

func describe(what string, hits, total int, ties []Path) string {
	note := fmt.Sprintf("%s in %d/%d examples", what, hits, total)
	if len(ties) > 1 {
		others := make([]string, 0, len(ties)-1)
		for _, t := range ties[1:] {
			others = append(others, t.String())
		}
		note += fmt.Sprintf("; %d paths matched equally, chose shallowest (also: %s)",
			len(ties), strings.Join(others, ", "))
	}
	return note
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// converts reports whether in and out have different primitive types and in
// converts to out.
func converts(in, out any) bool {
	switch i := in.(type) {
	case string:
		switch o := out.(type) {
		case float64:
			f, err := strconv.ParseFloat(strings.TrimSpace(i), 64)
			return err == nil && f == o
		case bool:
			b, ok := parseBool(i)
			return ok && b == o
		}
	case float64:
		switch o := out.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(o), 64)
			return err == nil && f == i
		case bool:
			return (i == 1 && o) || (i == 0 && !o)
		}
	case bool:
		switch o := out.(type) {
		case string:
			b, ok := parseBool(o)
			return ok && b == i
		case float64:
			return (i && o == 1) || (!i && o == 0)
		}
	}
	return false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	}
	return false, false
}
