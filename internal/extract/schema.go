// Package extract turns a prompt template plus a target schema into a typed
// value from a single model backend.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// FieldType is the JSON type of a schema field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldStringArray
)

func (t FieldType) String() string {
	if t == FieldStringArray {
		return "array"
	}
	return "string"
}

// Field is one required property of a Schema.
type Field struct {
	Name        string
	Type        FieldType
	Description string
}

// Schema describes the flat JSON object a backend must return. Every field
// is required.
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

// Properties returns the JSON-schema "properties" object.
func (s Schema) Properties() map[string]any {
	props := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		var p map[string]any
		if f.Type == FieldStringArray {
			p = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
		} else {
			p = map[string]any{"type": "string"}
		}
		if f.Description != "" {
			p["description"] = f.Description
		}
		props[f.Name] = p
	}
	return props
}

// Required returns every field name in declaration order.
func (s Schema) Required() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// JSONSchema returns a strict JSON schema for the object.
func (s Schema) JSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           s.Properties(),
		"required":             s.Required(),
		"additionalProperties": false,
	}
}

// ArrayFields lists fields that must be JSON arrays.
func (s Schema) ArrayFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Type == FieldStringArray {
			out = append(out, f.Name)
		}
	}
	return out
}

// Instruction is the system preamble every backend receives for s.
func (s Schema) Instruction() string {
	var b strings.Builder
	b.WriteString("Always respond with a single JSON object and nothing else. ")
	b.WriteString("The object must contain exactly these fields: ")
	b.WriteString(strings.Join(s.Required(), ", "))
	b.WriteString(".")
	if arrays := s.ArrayFields(); len(arrays) > 0 {
		b.WriteString(" Make sure ")
		b.WriteString(joinAnd(arrays))
		if len(arrays) == 1 {
			b.WriteString(" is an array of strings, even when empty.")
		} else {
			b.WriteString(" are arrays of strings, even when empty.")
		}
	}
	return b.String()
}

// Validate checks raw JSON against the schema without coercing anything:
// every field present and non-null, strings are strings, arrays are arrays
// of strings. Unknown fields are ignored.
func (s Schema) Validate(raw []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return eris.Wrap(err, "response is not a JSON object")
	}

	for _, f := range s.Fields {
		v, ok := obj[f.Name]
		if !ok {
			return eris.Errorf("missing field %q", f.Name)
		}
		if string(v) == "null" {
			return eris.Errorf("field %q is null", f.Name)
		}
		switch f.Type {
		case FieldString:
			var str string
			if err := json.Unmarshal(v, &str); err != nil {
				return eris.Errorf("field %q must be a string, got %s", f.Name, abbreviate(v))
			}
		case FieldStringArray:
			var arr []string
			if err := json.Unmarshal(v, &arr); err != nil {
				return eris.Errorf("field %q must be an array of strings, got %s", f.Name, abbreviate(v))
			}
		}
	}
	return nil
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

func abbreviate(v json.RawMessage) string {
	const max = 40
	if len(v) > max {
		return string(v[:max]) + "..."
	}
	return string(v)
}
