package recap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hrygo/journalrecap/ai/core/llm"
)

// Field is one front matter entry produced from the model reply.
// Value is either a string or a []string.
type Field struct {
	Key   string
	Value any
}

// Patch is the ordered set of fields to merge, in the order the reply listed them.
type Patch []Field

// Keys returns the field names in order.
func (p Patch) Keys() []string {
	keys := make([]string, len(p))
	for i, f := range p {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON encodes the patch as an object, keeping field order.
func (p Patch) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParsePatch parses the model reply into a Patch and validates it against format.
// Invalid JSON is a MalformedResponse. A reply that is not a flat object of
// strings and string lists, or that fails the schema, is a SchemaMismatch.
func ParsePatch(text string, format *llm.ResponseFormat) (Patch, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, newError(KindMalformedResponse, "empty response", nil)
	}
	if !json.Valid([]byte(trimmed)) {
		var v any
		err := json.Unmarshal([]byte(trimmed), &v)
		return nil, newError(KindMalformedResponse, "invalid JSON", err)
	}

	patch, err := decodeFields([]byte(trimmed))
	if err != nil {
		return nil, newError(KindSchemaMismatch, "unexpected reply shape", err)
	}

	if format != nil && format.JSONSchema != nil && len(format.JSONSchema.Schema) > 0 {
		if err := validateAgainst(format.JSONSchema.Schema, trimmed); err != nil {
			return nil, newError(KindSchemaMismatch, "reply does not match schema", err)
		}
	}
	return patch, nil
}

func decodeFields(data []byte) (Patch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("reply must be a JSON object")
	}

	var patch Patch
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		value, err := fieldValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		// 重复键以最后一次出现的值为准，位置保持首次出现
		if i, seen := index[key]; seen {
			patch[i].Value = value
			continue
		}
		index[key] = len(patch)
		patch = append(patch, Field{Key: key, Value: value})
	}
	return patch, nil
}

func fieldValue(raw json.RawMessage) (any, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("value must not be null")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && list != nil {
		return list, nil
	}
	return nil, fmt.Errorf("value must be a string or a list of strings")
}

func validateAgainst(schema json.RawMessage, doc string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewStringLoader(doc),
	)
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
