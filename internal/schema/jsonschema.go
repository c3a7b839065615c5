package schema

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// JSONSchema converts the inferred schema into a JSON Schema document.
// Optional object fields are left out of "required"; nullable nodes accept
// "null" in addition to their own type.
func (s *Schema) JSONSchema() *jsonschema.Schema {
	if s == nil {
		return &jsonschema.Schema{}
	}

	var js *jsonschema.Schema
	switch s.Kind {
	case KindObject:
		js = &jsonschema.Schema{
			Type:       "object",
			Properties: make(map[string]*jsonschema.Schema, len(s.Fields)),
		}
		for _, name := range s.FieldNames() {
			f := s.Fields[name]
			js.Properties[name] = f.JSONSchema()
			if !f.Optional {
				js.Required = append(js.Required, name)
			}
		}
	case KindArray:
		js = &jsonschema.Schema{Type: "array"}
		if s.Elem != nil {
			js.Items = s.Elem.JSONSchema()
		}
	default:
		js = scalarJSONSchema(s.Type)
	}

	if s.Nullable && js.Type != "" && js.Type != "null" {
		js.Types = []string{js.Type, "null"}
		js.Type = ""
	}
	return js
}

func scalarJSONSchema(t ScalarType) *jsonschema.Schema {
	switch t {
	case TypeNumber:
		return &jsonschema.Schema{Type: "number"}
	case TypeBoolean:
		return &jsonschema.Schema{Type: "boolean"}
	case TypeNull:
		return &jsonschema.Schema{Type: "null"}
	case TypeDatetime:
		return &jsonschema.Schema{Type: "string", Format: "date-time"}
	default:
		return &jsonschema.Schema{Type: "string"}
	}
}
