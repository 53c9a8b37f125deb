package openai

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects T into a JSON schema map accepted by the OpenAI
// structured-output API, which requires additionalProperties=false and every
// declared property listed as required on every object node.
func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	m, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	enforceStrictObjects(m)
	return m
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func enforceStrictObjects(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			var required []string
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				enforceStrictObjects(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		enforceStrictObjects(items)
	}
}
