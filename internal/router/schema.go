package router

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// schemaProperty is the narrow subset of JSON Schema this package
// understands for tool input validation: a type and whether the property
// is required. Tools register a full JSON Schema document for clients to
// introspect, but the router's own pre-dispatch check only enforces this
// structural subset (spec §4.4.4: "Input JSON is validated against the
// tool's input schema before the handler is called").
type schemaDoc struct {
	Type       string                   `json:"type"`
	Required   []string                 `json:"required"`
	Properties map[string]schemaProperty `json:"properties"`
}

type schemaProperty struct {
	Type string `json:"type"`
}

var structuralValidator = validator.New(validator.WithRequiredStructEnabled())

// validateToolInput performs the structural pass before invoking a tool
// handler: required properties present, declared types match. It uses
// validator.Var for each property independently rather than a generated
// struct, since tool schemas are registered dynamically at runtime.
func validateToolInput(rawSchema json.RawMessage, args json.RawMessage) error {
	if len(rawSchema) == 0 {
		return nil
	}
	var schema schemaDoc
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		// A malformed schema is a registration-time bug, not a client
		// error; don't fail the call over it.
		return nil
	}

	var payload map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &payload); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}

	for _, name := range schema.Required {
		value, present := payload[name]
		// Only an absent key is checked here: validator.Var's "required"
		// check rejects the untyped nil it stands for. A key present with
		// an explicit null passes this loop and is left to the type check
		// below.
		if !present {
			if err := structuralValidator.Var(value, "required"); err != nil {
				return fmt.Errorf("missing required property %q", name)
			}
		}
	}

	for name, prop := range schema.Properties {
		value, present := payload[name]
		if !present || prop.Type == "" {
			continue
		}
		if !matchesJSONType(value, prop.Type) {
			return fmt.Errorf("property %q: expected type %q", name, prop.Type)
		}
	}
	return nil
}

// matchesJSONType checks a value decoded by encoding/json (into any)
// against a JSON Schema primitive type name.
func matchesJSONType(value any, jsonType string) bool {
	switch jsonType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
