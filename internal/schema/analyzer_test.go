package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestInfer_EmptyInput(t *testing.T) {
	_, err := Infer(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Infer([]any{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestInfer_NestedObject(t *testing.T) {
	v := decode(t, `{"main": {"temp": 15.5, "humidity": 80}, "name": "London", "ok": true}`)

	s, err := Infer([]any{v})
	require.NoError(t, err)

	assert.Equal(t, KindObject, s.Kind)
	assert.Equal(t, []string{"main", "name", "ok"}, s.FieldNames())

	temp, ok := s.Lookup("main.temp")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, temp.Type)

	name, ok := s.Lookup("name")
	require.True(t, ok)
	assert.Equal(t, TypeString, name.Type)

	okField, _ := s.Lookup("ok")
	assert.Equal(t, TypeBoolean, okField.Type)
}

func TestInfer_StringSniffing(t *testing.T) {
	tests := []struct {
		value string
		want  ScalarType
	}{
		{"42", TypeNumber},
		{"-3.5", TypeNumber},
		{"2024-01-15T10:30:00Z", TypeDatetime},
		{"2024-01-15", TypeDatetime},
		{"true", TypeBoolean},
		{"FALSE", TypeBoolean},
		{"London", TypeString},
		{"", TypeString},
		{"NaN", TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffType(tt.value))
		})
	}
}

func TestInfer_OptionalFields(t *testing.T) {
	a := decode(t, `{"id": 1, "email": "a@example.com"}`)
	b := decode(t, `{"id": 2}`)

	s, err := Infer([]any{a, b})
	require.NoError(t, err)

	assert.False(t, s.Fields["id"].Optional)
	assert.True(t, s.Fields["email"].Optional)
}

func TestInfer_ConflictingScalarsWiden(t *testing.T) {
	a := decode(t, `{"v": 1}`)
	b := decode(t, `{"v": "abc"}`)

	s, err := Infer([]any{a, b})
	require.NoError(t, err)
	assert.Equal(t, TypeMixed, s.Fields["v"].Type)
}

func TestInfer_NullMakesNullable(t *testing.T) {
	a := decode(t, `{"v": null}`)
	b := decode(t, `{"v": "abc"}`)

	s, err := Infer([]any{a, b})
	require.NoError(t, err)
	assert.Equal(t, TypeString, s.Fields["v"].Type)
	assert.True(t, s.Fields["v"].Nullable)
}

func TestInfer_KindConflict(t *testing.T) {
	a := decode(t, `{"v": {"x": 1}}`)
	b := decode(t, `{"v": [1, 2]}`)

	s, err := Infer([]any{a, b})
	require.NoError(t, err)
	assert.Equal(t, KindScalar, s.Fields["v"].Kind)
	assert.Equal(t, TypeMixed, s.Fields["v"].Type)
}

func TestInfer_ArrayElementsMerged(t *testing.T) {
	v := decode(t, `{"weather": [{"id": 500, "main": "Rain"}, {"id": 501}]}`)

	s, err := Infer([]any{v})
	require.NoError(t, err)

	weather := s.Fields["weather"]
	require.Equal(t, KindArray, weather.Kind)
	require.NotNil(t, weather.Elem)
	assert.False(t, weather.Elem.Fields["id"].Optional)
	assert.True(t, weather.Elem.Fields["main"].Optional)

	elem, ok := s.Lookup("weather[0].id")
	require.True(t, ok)
	assert.Equal(t, TypeNumber, elem.Type)
}

func TestInfer_MaxArrayElements(t *testing.T) {
	v := decode(t, `[1, 2, "three"]`)

	s, err := NewAnalyzer(WithMaxArrayElements(2)).Infer([]any{v})
	require.NoError(t, err)
	assert.Equal(t, TypeNumber, s.Elem.Type)

	s, err = NewAnalyzer().Infer([]any{v})
	require.NoError(t, err)
	assert.Equal(t, TypeMixed, s.Elem.Type)
}

func TestInfer_EmptyArrayHasNoElem(t *testing.T) {
	s, err := Infer([]any{decode(t, `{"tags": []}`), decode(t, `{"tags": ["a"]}`)})
	require.NoError(t, err)
	require.NotNil(t, s.Fields["tags"].Elem)
	assert.Equal(t, TypeString, s.Fields["tags"].Elem.Type)
}

func TestInfer_Idempotent(t *testing.T) {
	values := []any{
		decode(t, `{"main": {"temp": 15.5}, "tags": ["a", "b"], "at": "2024-01-01"}`),
		decode(t, `{"main": {"temp": "n/a"}, "extra": null}`),
	}

	first, err := Infer(values)
	require.NoError(t, err)
	second, err := Infer(values)
	require.NoError(t, err)

	assert.True(t, first.Equal(second), "schemas differ:\n%s\n%s", spew.Sdump(first), spew.Sdump(second))
	assert.Equal(t, first.String(), second.String())
}

func TestMerge_CommutativeAndIdempotent(t *testing.T) {
	a, err := Infer([]any{decode(t, `{"a": 1, "b": {"c": "x"}, "d": null}`)})
	require.NoError(t, err)
	b, err := Infer([]any{decode(t, `{"a": "2024-01-01", "b": {"e": true}, "d": [1]}`)})
	require.NoError(t, err)

	ab := Merge(a, b)
	ba := Merge(b, a)
	assert.True(t, ab.Equal(ba), "merge not commutative:\n%s\n%s", ab, ba)

	assert.True(t, Merge(a, a).Equal(a))
	assert.True(t, Merge(ab, ab).Equal(ab))
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	a := Object(map[string]*Schema{"x": Scalar(TypeNumber)})
	b := Object(map[string]*Schema{"y": Scalar(TypeString)})

	_ = Merge(a, b)

	assert.False(t, a.Fields["x"].Optional)
	assert.False(t, b.Fields["y"].Optional)
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	in := map[string]any{
		"i":    3,
		"f32":  float32(1.5),
		"n":    json.Number("7"),
		"t":    ts,
		"list": []string{"a"},
		"yaml": map[any]any{"k": int64(1)},
	}

	out := Normalize(in).(map[string]any)
	assert.Equal(t, 3.0, out["i"])
	assert.Equal(t, 1.5, out["f32"])
	assert.Equal(t, 7.0, out["n"])
	assert.Equal(t, "2024-01-15T10:30:00Z", out["t"])
	assert.Equal(t, []any{"a"}, out["list"])
	assert.Equal(t, map[string]any{"k": 1.0}, out["yaml"])
}
