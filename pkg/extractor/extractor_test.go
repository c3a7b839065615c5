package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type weatherExtractor struct {
	Base
}

var _ Extractor = (*weatherExtractor)(nil)

func (e *weatherExtractor) Extract(_ context.Context, input map[string]any) (map[string]any, error) {
	temp, err := Lookup(input, "main.temp")
	if err != nil {
		return nil, err
	}
	cond, err := Lookup(input, "weather[0].main")
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	Set(out, "temperature_c", temp)
	Set(out, "summary.condition", cond)
	return out, nil
}

func TestExtractorContract(t *testing.T) {
	e := &weatherExtractor{Base: NewBase("weather", zap.NewNop())}
	assert.Equal(t, "weather", e.Name())

	out, err := e.Extract(context.Background(), map[string]any{
		"main":    map[string]any{"temp": 15.5},
		"weather": []any{map[string]any{"main": "Rain"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"temperature_c": 15.5,
		"summary":       map[string]any{"condition": "Rain"},
	}, out)
}

func TestLookup(t *testing.T) {
	input := map[string]any{
		"grid": []any{[]any{1.0, 2.0}, []any{3.0}},
		"a":    map[string]any{"b": "c"},
	}

	v, err := Lookup(input, "grid[0][1]")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	v, err = Lookup(input, "a.b")
	require.NoError(t, err)
	assert.Equal(t, "c", v)

	_, err = Lookup(input, "grid[5]")
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = Lookup(input, "a.missing")
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = Lookup(input, "grid[]")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestLookup_EscapedKeys(t *testing.T) {
	input := map[string]any{
		"a.b":  1.0,
		"a":    map[string]any{"b": 2.0},
		"x[0]": "literal",
	}

	v, err := Lookup(input, EscapeKey("a.b"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = Lookup(input, "a.b")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	v, err = Lookup(input, EscapeKey("x[0]"))
	require.NoError(t, err)
	assert.Equal(t, "literal", v)
}

func TestEscapeKey(t *testing.T) {
	assert.Equal(t, "plain", EscapeKey("plain"))
	assert.Equal(t, `a\.b`, EscapeKey("a.b"))
	assert.Equal(t, `x\[0\]`, EscapeKey("x[0]"))
	assert.Equal(t, `c:\\tmp`, EscapeKey(`c:\tmp`))
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path string
		want []PathSegment
	}{
		{"", nil},
		{"a.b", []PathSegment{{Key: "a"}, {Key: "b"}}},
		{"w[0].main", []PathSegment{{Key: "w"}, {Index: 0, IsIndex: true}, {Key: "main"}}},
		{"list[].name", []PathSegment{{Key: "list"}, {Index: -1, IsIndex: true}, {Key: "name"}}},
		{`a\.b.c`, []PathSegment{{Key: "a.b"}, {Key: "c"}}},
		{`x\[0\]`, []PathSegment{{Key: "x[0]"}}},
		{`c:\\tmp`, []PathSegment{{Key: `c:\tmp`}}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePath(tt.path))
		})
	}

	for _, key := range []string{"a.b", "x[0]", `c:\tmp`, "plain", "]["} {
		assert.Equal(t, []PathSegment{{Key: key}}, ParsePath(EscapeKey(key)), "key %q", key)
	}
}

func TestSet_EscapedKey(t *testing.T) {
	out := map[string]any{}
	Set(out, `summary.full\.name`, "Ada")
	assert.Equal(t, map[string]any{"summary": map[string]any{"full.name": "Ada"}}, out)
}

func TestBase_NilLogger(t *testing.T) {
	var b Base
	assert.NotNil(t, b.Logger())
	assert.NotNil(t, NewBase("x", nil).Logger())
}
