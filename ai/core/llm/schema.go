package llm

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ResponseFormatTypeJSONSchema is the only structured-output mode the client requests.
const ResponseFormatTypeJSONSchema = "json_schema"

// DefaultSchemaName is the name sent with the built-in schema.
const DefaultSchemaName = "summary"

// DefaultSchema is the built-in structured-output schema: a list of events and a one-line summary.
var DefaultSchema = json.RawMessage(`{"type":"object","properties":{"events":{"type":"array","items":{"type":"string"}},"summary":{"type":"string"}},"required":["events","summary"],"additionalProperties":false}`)

// JSONSchema is the subset of JSON Schema the structured-output API accepts.
// The alias type prevents infinite recursion during marshaling.
type JSONSchema struct {
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
}

// MarshalJSON implements json.Marshaler for JSONSchema.
// It uses type alias to prevent infinite recursion.
func (s *JSONSchema) MarshalJSON() ([]byte, error) {
	type alias JSONSchema
	return json.Marshal((*alias)(s))
}

// ResponseFormatJSONSchema is the json_schema member of a response format.
type ResponseFormatJSONSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema"`
	Strict      bool            `json:"strict"`
}

// ResponseFormat is the structured-output descriptor sent as response_format.
type ResponseFormat struct {
	Type       string                    `json:"type"`
	JSONSchema *ResponseFormatJSONSchema `json:"json_schema,omitempty"`
}

// DefaultResponseFormat returns a fresh copy of the built-in response format.
func DefaultResponseFormat() *ResponseFormat {
	schema := make(json.RawMessage, len(DefaultSchema))
	copy(schema, DefaultSchema)
	return &ResponseFormat{
		Type: ResponseFormatTypeJSONSchema,
		JSONSchema: &ResponseFormatJSONSchema{
			Name:   DefaultSchemaName,
			Schema: schema,
			Strict: true,
		},
	}
}

// Clone returns a deep copy so snapshots never share the schema bytes.
func (f *ResponseFormat) Clone() *ResponseFormat {
	if f == nil {
		return nil
	}
	out := &ResponseFormat{Type: f.Type}
	if f.JSONSchema != nil {
		js := *f.JSONSchema
		js.Schema = append(json.RawMessage(nil), f.JSONSchema.Schema...)
		out.JSONSchema = &js
	}
	return out
}

// ParseSchema decodes the schema body into a JSONSchema.
func (f *ResponseFormat) ParseSchema() (*JSONSchema, error) {
	if f == nil || f.JSONSchema == nil || len(f.JSONSchema.Schema) == 0 {
		return nil, fmt.Errorf("response format has no schema")
	}
	var s JSONSchema
	if err := json.Unmarshal(f.JSONSchema.Schema, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return &s, nil
}

// Validate checks the descriptor is usable for structured output.
// Strict schemas must be closed objects with an explicit required list.
func (f *ResponseFormat) Validate() error {
	if f == nil {
		return fmt.Errorf("response format is required")
	}
	if f.Type != ResponseFormatTypeJSONSchema {
		return fmt.Errorf("unsupported response format type %q", f.Type)
	}
	if f.JSONSchema == nil || f.JSONSchema.Name == "" {
		return fmt.Errorf("json_schema.name is required")
	}
	s, err := f.ParseSchema()
	if err != nil {
		return err
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(f.JSONSchema.Schema)); err != nil {
		return fmt.Errorf("invalid JSON schema: %w", err)
	}
	if s.Type != "object" {
		return fmt.Errorf("schema type must be object, got %q", s.Type)
	}
	if f.JSONSchema.Strict {
		if s.AdditionalProperties == nil || *s.AdditionalProperties {
			return fmt.Errorf("strict schema requires additionalProperties: false")
		}
		if len(s.Required) == 0 {
			return fmt.Errorf("strict schema requires an explicit required list")
		}
		for _, name := range s.Required {
			if _, ok := s.Properties[name]; !ok {
				return fmt.Errorf("required field %q is not declared in properties", name)
			}
		}
	}
	return nil
}
