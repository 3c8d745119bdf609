package gateway

import (
	"strings"
	"testing"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	err := r.Register(&Entry{Descriptor: &ModelDescriptor{Name: "User"}})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	entry, err := r.Resolve("User")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if entry.Descriptor.Name != "User" {
		t.Errorf("Expected User, got %s", entry.Descriptor.Name)
	}
}

func TestRegistry_MissingPolicyDefaultsFailClosed(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Entry{Descriptor: &ModelDescriptor{Name: "User"}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	entry, _ := r.Resolve("User")
	if entry.Policy == nil {
		t.Fatal("Expected a default policy")
	}
	if entry.Policy.CanFilter("email") {
		t.Error("Default policy must deny filtering")
	}
	if entry.Policy.MaxPageSize != 50 {
		t.Errorf("Expected default page size 50, got %d", entry.Policy.MaxPageSize)
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Entry{Descriptor: &ModelDescriptor{Name: "User"}})

	err := r.Register(&Entry{Descriptor: &ModelDescriptor{Name: "User"}})
	if err == nil {
		t.Fatal("Expected duplicate registration to fail")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestRegistry_NilDescriptorRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Entry{}); err == nil {
		t.Error("Expected entry without descriptor to fail")
	}
	if err := r.Register(nil); err == nil {
		t.Error("Expected nil entry to fail")
	}
}

func TestRegistry_DescriptorInvariantChecked(t *testing.T) {
	v, err := CompileValidator("User", []byte(`{
		"type": "object",
		"properties": {"posts": {"type": "array"}}
	}`))
	if err != nil {
		t.Fatalf("CompileValidator failed: %v", err)
	}

	r := NewRegistry()
	err = r.Register(&Entry{Descriptor: &ModelDescriptor{
		Name:           "User",
		RelationFields: []string{"posts"},
		Validator:      v,
	}})
	if err == nil {
		t.Fatal("A field declared both as relation and schema property must fail registration")
	}
	if !strings.Contains(err.Error(), "posts") {
		t.Errorf("Expected the offending field named, got: %v", err)
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("Ghost")
	if err == nil {
		t.Fatal("Expected unknown entity to fail")
	}
}

func TestRegistry_EntitiesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"Zebra", "Apple", "Mango"} {
		if err := r.Register(&Entry{Descriptor: &ModelDescriptor{Name: name}}); err != nil {
			t.Fatalf("Register %s failed: %v", name, err)
		}
	}

	names := r.Entities()
	want := []string{"Apple", "Mango", "Zebra"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d names, got %d", len(want), len(names))
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("position %d: expected %s, got %s", i, name, names[i])
		}
	}
}
