package atomic

import "fmt"

// validateArgs checks args against a JSON-schema-like parameters document
// of the shape {"type":"object","properties":{...},"required":[...]}.
// This is hand-rolled rather than built on go-playground/validator
// because the shape being validated is a dynamic map[string]any decoded
// from config, not a Go struct validator can reflect over; validator's
// tag-based model has no entry point for schemas discovered at runtime.
func validateArgs(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}
	properties, _ := schema["properties"].(map[string]any)
	for _, req := range toStringSlice(schema["required"]) {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("missing required argument %q", req)
		}
	}
	for name, value := range args {
		propSchema, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if !matchesType(wantType, value) {
			return fmt.Errorf("argument %q: expected %s, got %T", name, wantType, value)
		}
	}
	return nil
}

func matchesType(want string, value any) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
