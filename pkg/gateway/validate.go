package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	js "github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates payloads against a compiled JSON schema. It carries a
// second compiled schema, the "partial" variant, where no field is required;
// updates validate against the partial variant.
type Validator struct {
	name    string
	full    *js.Schema
	partial *js.Schema
}

// CompileValidator compiles a JSON schema document together with its
// partial variant. The partial variant is the same document with the
// top-level "required" list removed.
func CompileValidator(name string, raw []byte) (*Validator, error) {
	full, err := compileSchema(name, raw)
	if err != nil {
		return nil, fmt.Errorf("error compiling schema for %s: %w", name, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("error parsing schema for %s: %w", name, err)
	}
	delete(doc, "required")
	partialRaw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("error serializing partial schema for %s: %w", name, err)
	}
	partial, err := compileSchema(name+".partial", partialRaw)
	if err != nil {
		return nil, fmt.Errorf("error compiling partial schema for %s: %w", name, err)
	}

	return &Validator{name: name, full: full, partial: partial}, nil
}

func compileSchema(name string, raw []byte) (*js.Schema, error) {
	compiler := js.NewCompiler()
	url := "inline://" + name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// Validate checks data against the schema. When partial is true every field
// is optional (update semantics). Schema mismatches are returned as
// ValidationErrors; anything else is a real error.
func (v *Validator) Validate(data map[string]interface{}, partial bool) error {
	schema := v.full
	if partial {
		schema = v.partial
	}

	// Round-trip through JSON so typed values (time.Time etc) become the
	// plain shapes the schema library expects.
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error encoding payload: %w", err)
	}
	var plain interface{}
	if err := json.Unmarshal(encoded, &plain); err != nil {
		return fmt.Errorf("error decoding payload: %w", err)
	}

	if err := schema.Validate(plain); err != nil {
		if ve, ok := err.(*js.ValidationError); ok {
			return flattenValidationError(ve)
		}
		return err
	}
	return nil
}

// HasProperty reports whether the full schema declares a top-level property.
func (v *Validator) HasProperty(field string) bool {
	if v.full == nil {
		return false
	}
	_, ok := v.full.Properties[field]
	return ok
}

// flattenValidationError walks the cause tree and collects leaf failures
// into the structured field-error list.
func flattenValidationError(ve *js.ValidationError) ValidationErrors {
	var out ValidationErrors
	var walk func(e *js.ValidationError)
	walk = func(e *js.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, FieldError{
				Path:    instancePath(e.InstanceLocation),
				Message: e.Message,
				Code:    "SCHEMA_MISMATCH",
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	return out
}

// instancePath converts a JSON pointer ("/author/name") to dotted form.
func instancePath(location string) string {
	trimmed := strings.TrimPrefix(location, "/")
	if trimmed == "" {
		return ""
	}
	return strings.ReplaceAll(trimmed, "/", ".")
}
