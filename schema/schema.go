// Package schema builds and validates JSON Schemas for tool parameters.
//
// Tools declare their parameters with the builders and the dispatcher
// validates every invocation's arguments before the tool runs:
//
//	params := schema.Object(map[string]*schema.Property{
//	    "path":  schema.String("File to read"),
//	    "limit": schema.Integer("Max bytes to return").Min(1).Default(4096),
//	}, "path")
//
// Invalid arguments surface as a [ValidationError].
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled JSON Schema. The raw map form is kept alongside the
// compiled validator so it can be serialized into model prompts.
type Schema struct {
	raw      map[string]any
	compiled *jsonschema.Schema
}

// Raw returns the schema's map representation, suitable for serialization.
func (s *Schema) Raw() map[string]any {
	if s == nil {
		return nil
	}
	return s.raw
}

// Validate checks args against the schema. A nil Schema accepts everything.
func (s *Schema) Validate(args map[string]any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	// The validator only sees plain JSON types; round-trip args so typed
	// values (ints, structs) validate the same as decoded JSON.
	data, err := json.Marshal(args)
	if err != nil {
		return &ValidationError{Err: err}
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return &ValidationError{Err: err}
	}
	if err := s.compiled.Validate(generic); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// ValidationError reports arguments that failed schema validation.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Compile compiles a raw schema map. A nil map compiles to a nil Schema,
// which accepts any arguments.
func Compile(raw map[string]any) (*Schema, error) {
	if raw == nil {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Schema{raw: raw, compiled: compiled}, nil
}

// MustCompile is like Compile but panics on error. Use for schemas defined
// at package init.
func MustCompile(raw map[string]any) *Schema {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// -----------------------------------------------------------------------------
// Builders
// -----------------------------------------------------------------------------

// Object builds an object schema from named properties. Names passed as
// required are marked required:
//
//	schema.Object(map[string]*schema.Property{
//	    "query": schema.String("Search query"),
//	    "limit": schema.Integer("Max results").Min(1).Max(100),
//	}, "query")
func Object(properties map[string]*Property, required ...string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, p := range properties {
		props[name] = p.m
	}
	raw := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		raw["required"] = required
	}
	return raw
}

// Property is one parameter declaration under construction. Builders return
// the property for chaining.
type Property struct {
	m map[string]any
}

func newProperty(typ, description string) *Property {
	m := map[string]any{"type": typ}
	if description != "" {
		m["description"] = description
	}
	return &Property{m: m}
}

// String declares a string parameter.
func String(description string) *Property {
	return newProperty("string", description)
}

// Integer declares an integer parameter.
func Integer(description string) *Property {
	return newProperty("integer", description)
}

// Number declares a floating-point parameter.
func Number(description string) *Property {
	return newProperty("number", description)
}

// Boolean declares a boolean parameter.
func Boolean(description string) *Property {
	return newProperty("boolean", description)
}

// Array declares an array parameter whose items match the given schema:
//
//	schema.Array("Command and arguments", map[string]any{"type": "string"})
func Array(description string, items map[string]any) *Property {
	p := newProperty("array", description)
	p.m["items"] = items
	return p
}

// Enum restricts the parameter to the listed values.
func (p *Property) Enum(values ...any) *Property {
	p.m["enum"] = values
	return p
}

// Min sets the minimum for integer/number parameters.
func (p *Property) Min(min float64) *Property {
	p.m["minimum"] = min
	return p
}

// Max sets the maximum for integer/number parameters.
func (p *Property) Max(max float64) *Property {
	p.m["maximum"] = max
	return p
}

// Default records the parameter's default value.
func (p *Property) Default(value any) *Property {
	p.m["default"] = value
	return p
}
