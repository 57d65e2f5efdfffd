package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects a Go argument struct into the flat
// {type:"object", properties, required, additionalProperties} shape
// providers expect, using the same invopop/jsonschema reflector settings
// the reference codebase uses for its function-call tools.
//
// Supported struct tags:
//   - json:"name" - argument name
//   - json:",omitempty" - optional argument
//   - jsonschema:"required" - explicitly mark as required
//   - jsonschema:"description=..." - argument description
//   - jsonschema:"enum=val1|val2" - allowed values
func GenerateSchema[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	schemaMap, err := schemaToMap(schema)
	if err != nil {
		// Schema generation only fails on JSON marshal errors, which
		// cannot happen for a jsonschema.Schema produced by Reflect;
		// fall back to an empty object schema rather than panic.
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	if schemaMap["type"] == "object" {
		result := map[string]any{
			"type":       "object",
			"properties": schemaMap["properties"],
		}
		if required := schemaMap["required"]; required != nil {
			result["required"] = required
		}
		if addProps, ok := schemaMap["additionalProperties"]; ok {
			result["additionalProperties"] = addProps
		}
		return result
	}

	return schemaMap
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tool: marshal schema: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("tool: unmarshal schema: %w", err)
	}

	delete(result, "$schema")
	delete(result, "$id")

	return result, nil
}
