package toolhost

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// ValidateArguments is the small recursive validator over the
// object/array/string/boolean/integer schema subset: it rejects missing
// required properties, unexpected properties when additionalProperties
// is false, and type mismatches. It never panics on malformed input.
func ValidateArguments(schema *models.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	return validateValue(schema, args, "")
}

func validateValue(schema *models.Schema, value any, path string) error {
	if schema == nil {
		return nil
	}
	switch schema.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object", label(path))
		}
		for _, req := range schema.Required {
			if _, present := obj[req]; !present {
				return fmt.Errorf("missing required field %q", req)
			}
		}
		if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
			for k := range obj {
				if _, known := schema.Properties[k]; !known {
					return fmt.Errorf("unexpected field %q", k)
				}
			}
		}
		for k, v := range obj {
			if propSchema, ok := schema.Properties[k]; ok {
				if err := validateValue(propSchema, v, joinPath(path, k)); err != nil {
					return err
				}
			}
		}
		return nil
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", label(path))
		}
		if schema.Items != nil {
			for i, item := range arr {
				if err := validateValue(schema.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
		return nil
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected string", label(path))
		}
		return nil
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", label(path))
		}
		return nil
	case "integer":
		switch n := value.(type) {
		case float64:
			if n != float64(int64(n)) {
				return fmt.Errorf("%s: expected integer", label(path))
			}
		case int, int64:
			// already integral
		default:
			return fmt.Errorf("%s: expected integer", label(path))
		}
		return nil
	default:
		// Unknown/untyped schema node: accept anything.
		return nil
	}
}

// ValidateExternalSchema validates args against a full JSON Schema document
// (raw bytes, e.g. from an externally-declared MCP-style tool) using the
// full jsonschema/v5 compiler, rather than this package's built-in schema
// subset. Used for tool sources outside the built-in catalog, whose schemas
// may use features (oneOf, $ref, pattern, ...) the subset validator doesn't
// understand.
func ValidateExternalSchema(schemaJSON []byte, args map[string]any) error {
	schema, err := jsonschema.CompileString("external-tool-schema.json", string(schemaJSON))
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	// Round-trip args through JSON so a plain map[string]any built by Go
	// code decodes the same way a payload parsed off the wire would.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func label(path string) string {
	if path == "" {
		return "value"
	}
	return path
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}
