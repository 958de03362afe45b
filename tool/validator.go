package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"unicode/utf8"
)

// Validator checks tool arguments against a ToolSchema. It understands
// types, required fields, enums, numeric bounds, string lengths, array
// sizes and nested objects and arrays.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks input against the schema of the named tool. The returned
// error is always a *ValidationError.
func (v *Validator) Validate(toolName string, schema ToolSchema, input json.RawMessage) error {
	if schema.Type != "object" {
		return &ValidationError{Tool: toolName, Reason: fmt.Sprintf("schema type must be 'object', got '%s'", schema.Type)}
	}

	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &ValidationError{Tool: toolName, Reason: "invalid JSON: " + err.Error()}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return &ValidationError{Tool: toolName, Reason: fmt.Sprintf("expected object, got %s", kindOf(doc))}
	}

	root := PropertyDef{Type: "object", Properties: schema.Properties, Required: schema.Required}
	if reason, field := v.check("", root, obj); reason != "" {
		return &ValidationError{Tool: toolName, Field: field, Reason: reason}
	}
	return nil
}

// check returns a reason and the offending path, or "" when value matches def.
func (v *Validator) check(path string, def PropertyDef, value any) (string, string) {
	if value == nil {
		return "", ""
	}

	if reason := checkType(def.Type, value); reason != "" {
		return reason, path
	}

	if len(def.Enum) > 0 {
		s := fmt.Sprint(value)
		if n, ok := value.(json.Number); ok {
			s = n.String()
		}
		if !slices.Contains(def.Enum, s) {
			return fmt.Sprintf("value %q not in allowed values %v", s, def.Enum), path
		}
	}

	switch def.Type {
	case "number", "integer":
		f, _ := value.(json.Number).Float64()
		if def.Minimum != nil && f < *def.Minimum {
			return fmt.Sprintf("value %v is less than minimum %v", f, *def.Minimum), path
		}
		if def.Maximum != nil && f > *def.Maximum {
			return fmt.Sprintf("value %v exceeds maximum %v", f, *def.Maximum), path
		}

	case "string":
		n := utf8.RuneCountInString(value.(string))
		if def.MinLength != nil && n < *def.MinLength {
			return fmt.Sprintf("length %d is less than minimum %d", n, *def.MinLength), path
		}
		if def.MaxLength != nil && n > *def.MaxLength {
			return fmt.Sprintf("length %d exceeds maximum %d", n, *def.MaxLength), path
		}

	case "array":
		arr := value.([]any)
		if def.MinItems != nil && len(arr) < *def.MinItems {
			return fmt.Sprintf("%d items, minimum is %d", len(arr), *def.MinItems), path
		}
		if def.MaxItems != nil && len(arr) > *def.MaxItems {
			return fmt.Sprintf("%d items, maximum is %d", len(arr), *def.MaxItems), path
		}
		if def.Items != nil {
			for i, item := range arr {
				if reason, field := v.check(fmt.Sprintf("%s[%d]", path, i), *def.Items, item); reason != "" {
					return reason, field
				}
			}
		}

	case "object":
		obj := value.(map[string]any)
		for _, req := range def.Required {
			if _, ok := obj[req]; !ok {
				return "missing required field", join(path, req)
			}
		}
		for _, name := range sortedKeys(def.Properties) {
			if pv, ok := obj[name]; ok {
				if reason, field := v.check(join(path, name), def.Properties[name], pv); reason != "" {
					return reason, field
				}
			}
		}
	}

	return "", ""
}

func checkType(want string, value any) string {
	ok := true
	switch want {
	case "string":
		_, ok = value.(string)
	case "number":
		_, ok = value.(json.Number)
	case "integer":
		var n json.Number
		if n, ok = value.(json.Number); ok {
			f, err := n.Float64()
			ok = err == nil && f == math.Trunc(f)
		}
	case "boolean":
		_, ok = value.(bool)
	case "array":
		_, ok = value.([]any)
	case "object":
		_, ok = value.(map[string]any)
	}
	if !ok {
		return fmt.Sprintf("expected %s, got %s", want, kindOf(value))
	}
	return ""
}

func kindOf(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func sortedKeys(m map[string]PropertyDef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
