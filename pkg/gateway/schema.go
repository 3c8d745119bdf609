package gateway

import (
	"fmt"
)

// Cardinality describes how many related rows a relation field can hold.
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// RelationMeta describes one declared relation of a model.
type RelationMeta struct {
	// Target is the descriptor of the related entity. May be nil when the
	// relation is declared by name only; translation then treats nested
	// payloads as plain structures without relation semantics.
	Target      *ModelDescriptor
	Cardinality Cardinality
}

// ModelDescriptor is the static per-entity metadata. It is defined once at
// wiring time, never mutated afterwards, and shared by all requests.
type ModelDescriptor struct {
	Name           string
	RelationFields []string
	FileFields     []string
	Validator      *Validator
	Relations      map[string]*RelationMeta
}

// IsRelation reports whether field is a declared relation of this model.
func (d *ModelDescriptor) IsRelation(field string) bool {
	for _, f := range d.RelationFields {
		if f == field {
			return true
		}
	}
	return false
}

// RelationTarget returns the descriptor of the entity behind a relation
// field, or nil when no relation metadata was declared for it.
func (d *ModelDescriptor) RelationTarget(field string) *ModelDescriptor {
	if d.Relations == nil {
		return nil
	}
	meta, ok := d.Relations[field]
	if !ok || meta == nil {
		return nil
	}
	return meta.Target
}

// Check verifies the descriptor invariants. A relation field must not also
// appear as a plain scalar property in the validation schema; ownership is
// resolved through relation metadata, not through the flat schema.
func (d *ModelDescriptor) Check() error {
	if d.Name == "" {
		return fmt.Errorf("model descriptor has no entity name")
	}
	if d.Validator == nil {
		return nil
	}
	for _, rel := range d.RelationFields {
		if d.Validator.HasProperty(rel) {
			return fmt.Errorf(
				"entity '%s': field '%s' is declared both as a relation and as a schema property",
				d.Name, rel,
			)
		}
	}
	return nil
}
