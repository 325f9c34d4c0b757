package schema

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FromAny creates a json schema from any JSON-serializable value.
//
// For example:
//
//	map[string]any{
//		"type": "object",
//		"properties": map[string]any{
//			"database": map[string]any{
//				"type": "string",
//			},
//		},
//	}
func FromAny(t any) (*jsonschema.Schema, error) {
	var js []byte
	switch v := t.(type) {
	case json.RawMessage:
		js = v
	case []byte:
		js = v
	default:
		var err error
		js, err = json.Marshal(t)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal schema")
		}
	}
	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(js, schema); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal schema")
	}
	return schema, nil
}

// MustFromAny creates a json schema from any type.
// It panics if the value is not a valid schema.
func MustFromAny(t any) *jsonschema.Schema {
	s, err := FromAny(t)
	if err != nil {
		panic(err)
	}
	return s
}

// FromToolInput converts a tool input schema, as advertised by a MCP server,
// to a function parameters schema.
// An empty input produces an object schema without properties,
// as the chat providers reject a tool without parameters type.
func FromToolInput(inputSchema any) (*jsonschema.Schema, error) {
	if isEmpty(inputSchema) {
		return EmptyObject(), nil
	}

	s, err := FromAny(inputSchema)
	if err != nil {
		return nil, err
	}
	if s.Type == "" {
		s.Type = "object"
	}
	if s.Type == "object" && s.Properties == nil {
		s.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}
	// parameters are embedded in the tool definition
	s.Version = ""
	s.ID = ""
	return s, nil
}

// EmptyObject returns an object schema without properties
func EmptyObject() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
	}
}

// ToMap converts the schema to a generic map,
// as expected by the provider SDKs.
func ToMap(s *jsonschema.Schema) (map[string]any, error) {
	if s == nil {
		s = EmptyObject()
	}
	js, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}
	res := map[string]any{}
	if err = json.Unmarshal(js, &res); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal schema")
	}
	if _, ok := res["type"]; !ok {
		res["type"] = "object"
	}
	return res, nil
}

// PropertyNames returns the property names in the declared order
func PropertyNames(s *jsonschema.Schema) []string {
	if s == nil || s.Properties == nil {
		return nil
	}
	names := make([]string, 0, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case json.RawMessage:
		return len(t) == 0 || string(t) == "null"
	case []byte:
		return len(t) == 0 || string(t) == "null"
	case map[string]any:
		return len(t) == 0
	}
	return false
}
