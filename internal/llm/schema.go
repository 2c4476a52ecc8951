package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildSummaryJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to OpenAI as a structured output constraint and
// also use it locally to validate.
func BuildSummaryJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"headline": map[string]any{"type": "string", "minLength": 1, "maxLength": 300},
			"body":     map[string]any{"type": "string", "minLength": 1},
			"key_points": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string", "minLength": 1},
				"minItems": 1,
				"maxItems": 10,
			},
			"sentiment": map[string]any{
				"type": "string",
				"enum": []string{"positive", "neutral", "negative"},
			},
		},
		"required": []string{"headline", "body", "key_points"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
