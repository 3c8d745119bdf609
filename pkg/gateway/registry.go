package gateway

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/gatekit-db/gatekit/pkg/gateway/rawquery"
)

// EntityClient is the generic per-entity store client. One implementation
// is registered per entity at wiring time and resolved through the
// registry; there is no runtime reflection over entity names.
type EntityClient interface {
	FindMany(ctx context.Context, plan *QueryPlan) ([]Row, error)
	FindByID(ctx context.Context, id interface{}) (Row, error)
	Create(ctx context.Context, tree WriteTree) (Row, error)
	Update(ctx context.Context, id interface{}, tree WriteTree) (Row, error)
	Delete(ctx context.Context, id interface{}) error
	Count(ctx context.Context, where map[string]interface{}) (int64, error)
}

// TxCapable is implemented by clients that can run inside a caller-owned
// transaction. Atomic bulk operations require it.
type TxCapable interface {
	WithTx(tx pgx.Tx) EntityClient
}

// Entry binds together everything the gateway knows about one entity.
// All of it is immutable after Register.
type Entry struct {
	Descriptor *ModelDescriptor
	Policy     *SecurityPolicy
	Whitelist  *rawquery.Whitelist
	Client     EntityClient
}

// Registry resolves entities by name. It is populated at wiring time and
// read-only afterwards, so lookups need no synchronization.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds an entity. Descriptor invariants are checked here so a
// misconfigured model fails at startup, not per request. A missing policy
// defaults to the fail-closed DefaultPolicy.
func (r *Registry) Register(entry *Entry) error {
	if entry == nil || entry.Descriptor == nil {
		return fmt.Errorf("registry entry requires a model descriptor")
	}
	if err := entry.Descriptor.Check(); err != nil {
		return err
	}
	name := entry.Descriptor.Name
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("entity '%s' is already registered", name)
	}
	if entry.Policy == nil {
		entry.Policy = DefaultPolicy()
	}
	r.entries[name] = entry
	return nil
}

// Resolve returns the entry for an entity name.
func (r *Registry) Resolve(name string) (*Entry, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("unknown entity '%s'", name)
	}
	return entry, nil
}

// Entities returns the registered entity names, sorted.
func (r *Registry) Entities() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
