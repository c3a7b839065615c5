package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Leaves(t *testing.T) {
	s, err := Infer([]any{decode(t, `{"b": {"y": 1, "x": "a"}, "a": [1], "c": true}`)})
	require.NoError(t, err)

	var paths []string
	for _, leaf := range s.Leaves() {
		paths = append(paths, leaf.Path)
	}
	assert.Equal(t, []string{"a", "b.x", "b.y", "c"}, paths)
}

func TestSchema_LeavesOfScalarRoot(t *testing.T) {
	leaves := Scalar(TypeNumber).Leaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, "", leaves[0].Path)
}

func TestSchema_String(t *testing.T) {
	a := decode(t, `{"main": {"temp": 15.5}, "tags": ["x"], "note": null}`)
	b := decode(t, `{"main": {"temp": 9}, "tags": [], "note": "hi"}`)
	s, err := Infer([]any{a, b})
	require.NoError(t, err)

	assert.Equal(t, "{main: {temp: number}, note: string|null, tags: [string]}", s.String())
}

func TestSchema_Lookup(t *testing.T) {
	s, err := Infer([]any{decode(t, `{"list": [{"name": "n"}]}`)})
	require.NoError(t, err)

	got, ok := s.Lookup("list[].name")
	require.True(t, ok)
	assert.Equal(t, TypeString, got.Type)

	_, ok = s.Lookup("list.name")
	assert.False(t, ok)

	_, ok = s.Lookup("missing")
	assert.False(t, ok)
}

func TestSchema_EscapedKeys(t *testing.T) {
	s, err := Infer([]any{decode(t, `{"a.b": 1, "a": {"b": "nested"}}`)})
	require.NoError(t, err)

	var paths []string
	for _, l := range s.Leaves() {
		paths = append(paths, l.Path)
	}
	assert.Equal(t, []string{"a.b", `a\.b`}, paths)

	flat, ok := s.Lookup(`a\.b`)
	require.True(t, ok)
	assert.Equal(t, TypeNumber, flat.Type)

	nested, ok := s.Lookup("a.b")
	require.True(t, ok)
	assert.Equal(t, TypeString, nested.Type)
}

func TestSchema_CloneIsDeep(t *testing.T) {
	s := Object(map[string]*Schema{"a": Array(Scalar(TypeString))})
	c := s.Clone()
	c.Fields["a"].Elem.Type = TypeNumber

	assert.Equal(t, TypeString, s.Fields["a"].Elem.Type)
	assert.False(t, s.Equal(c))
}

func TestSchema_JSONSchema(t *testing.T) {
	a := decode(t, `{"id": 1, "at": "2024-01-01T00:00:00Z", "tags": ["x"], "note": null}`)
	b := decode(t, `{"id": 2, "at": "2024-01-02T00:00:00Z", "tags": ["y"], "note": "n", "extra": true}`)
	s, err := Infer([]any{a, b})
	require.NoError(t, err)

	js := s.JSONSchema()
	assert.Equal(t, "object", js.Type)
	assert.Equal(t, []string{"at", "id", "note", "tags"}, js.Required)
	assert.Equal(t, "date-time", js.Properties["at"].Format)
	assert.Equal(t, "array", js.Properties["tags"].Type)
	assert.Equal(t, "string", js.Properties["tags"].Items.Type)
	assert.Equal(t, []string{"string", "null"}, js.Properties["note"].Types)
	assert.Equal(t, "boolean", js.Properties["extra"].Type)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "scalar", KindScalar.String())
	assert.Equal(t, "object", KindObject.String())
	assert.Equal(t, "array", KindArray.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
