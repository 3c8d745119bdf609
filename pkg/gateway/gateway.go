package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

// bulkConcurrency bounds the fan-out of partial-success bulk operations.
const bulkConcurrency = 8

// Gateway wires the translators, the whitelist guard, the transaction
// runner and the per-entity clients into CRUD, bulk and raw-query
// operations. It holds no per-request state.
type Gateway struct {
	registry *Registry
	runner   *TxRunner
	raw      *RawExecutor
	debug    *DebugContext
}

// New creates a gateway. runner and raw may be nil when transactional bulk
// and raw-query capability are not needed.
func New(registry *Registry, runner *TxRunner, raw *RawExecutor) *Gateway {
	return &Gateway{
		registry: registry,
		runner:   runner,
		raw:      raw,
		debug:    DefaultDebugContext(),
	}
}

// WithDebug sets the debug context and returns the gateway.
func (g *Gateway) WithDebug(debug *DebugContext) *Gateway {
	if debug != nil {
		g.debug = debug
	}
	return g
}

// List translates raw query parameters under the entity's policy and runs
// the resulting plan.
func (g *Gateway) List(ctx context.Context, entity string, params url.Values) (*ListResult, error) {
	entry, err := g.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}

	plan, err := TranslateQueryParams(params, entry.Policy)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := entry.Client.FindMany(ctx, plan)
	if err != nil {
		return nil, MapStoreError(err, entity, "list")
	}
	total, err := entry.Client.Count(ctx, plan.Where)
	if err != nil {
		return nil, MapStoreError(err, entity, "count")
	}
	g.debug.Tracef("[TRACE] list %s: %v, %d rows", entity, time.Since(start), len(rows))

	return &ListResult{
		Entity: entity,
		Rows:   rows,
		Skip:   plan.Skip,
		Take:   plan.Take,
		Total:  total,
	}, nil
}

// Get fetches one entity by primary key.
func (g *Gateway) Get(ctx context.Context, entity string, id interface{}) (Row, error) {
	entry, err := g.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}
	row, err := entry.Client.FindByID(ctx, id)
	if err != nil {
		return nil, MapStoreError(err, entity, "get")
	}
	if row == nil {
		return nil, &NotFoundError{Entity: entity, ID: id}
	}
	return row, nil
}

// CreateOne validates the payload against the full schema, translates
// nested writes and issues the create.
func (g *Gateway) CreateOne(ctx context.Context, entity string, payload map[string]interface{}) (Row, error) {
	entry, err := g.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}
	tree, err := g.prepareWrite(entry, payload, false)
	if err != nil {
		return nil, err
	}
	row, err := entry.Client.Create(ctx, tree)
	if err != nil {
		return nil, MapStoreError(err, entity, "create")
	}
	return row, nil
}

// UpdateOne validates the payload against the partial schema (every field
// optional), translates nested writes and issues the update.
func (g *Gateway) UpdateOne(ctx context.Context, entity string, id interface{}, payload map[string]interface{}) (Row, error) {
	entry, err := g.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}
	tree, err := g.prepareWrite(entry, payload, true)
	if err != nil {
		return nil, err
	}
	row, err := entry.Client.Update(ctx, id, tree)
	if err != nil {
		return nil, MapStoreError(err, entity, "update")
	}
	if row == nil {
		return nil, &NotFoundError{Entity: entity, ID: id}
	}
	return row, nil
}

// DeleteOne removes an entity. When the policy marks the entity as
// soft-deletable the row is stamped instead of removed.
func (g *Gateway) DeleteOne(ctx context.Context, entity string, id interface{}) error {
	entry, err := g.registry.Resolve(entity)
	if err != nil {
		return err
	}
	if entry.Policy.SoftDelete {
		tree := WriteTree{SoftDeleteField: time.Now().UTC()}
		row, err := entry.Client.Update(ctx, id, tree)
		if err != nil {
			return MapStoreError(err, entity, "delete")
		}
		if row == nil {
			return &NotFoundError{Entity: entity, ID: id}
		}
		return nil
	}
	if err := entry.Client.Delete(ctx, id); err != nil {
		return MapStoreError(err, entity, "delete")
	}
	return nil
}

// BulkCreate creates many items under one of two deliberately different
// policies. atomic=true wraps the whole batch in a single transaction:
// all-or-nothing, first failure aborts. atomic=false fans items out
// concurrently and aggregates per-item success/failure.
func (g *Gateway) BulkCreate(ctx context.Context, entity string, items []map[string]interface{}, atomic bool) (*BulkResult, error) {
	entry, err := g.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}

	// Translate everything up front; a malformed item fails the call before
	// any store access regardless of mode.
	trees := make([]WriteTree, len(items))
	for i, item := range items {
		tree, err := g.prepareWrite(entry, item, false)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		trees[i] = tree
	}

	if atomic {
		return g.bulkCreateAtomic(ctx, entity, entry, trees)
	}
	return g.bulkCreateConcurrent(ctx, entity, entry, trees)
}

func (g *Gateway) bulkCreateAtomic(ctx context.Context, entity string, entry *Entry, trees []WriteTree) (*BulkResult, error) {
	txClient, ok := entry.Client.(TxCapable)
	if !ok {
		return nil, fmt.Errorf("entity '%s' does not support atomic bulk writes", entity)
	}
	if g.runner == nil {
		return nil, fmt.Errorf("gateway has no transaction runner")
	}

	result := &BulkResult{Items: make([]BulkItemResult, len(trees))}
	err := g.runner.Run(ctx, DefaultTxSpec(), func(ctx context.Context, tx pgx.Tx) error {
		client := txClient.WithTx(tx)
		for i, tree := range trees {
			row, err := client.Create(ctx, tree)
			if err != nil {
				return MapStoreError(err, entity, "bulk create")
			}
			result.Items[i] = BulkItemResult{Index: i, Row: row}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Succeeded = len(trees)
	return result, nil
}

func (g *Gateway) bulkCreateConcurrent(ctx context.Context, entity string, entry *Entry, trees []WriteTree) (*BulkResult, error) {
	result := &BulkResult{Items: make([]BulkItemResult, len(trees))}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(bulkConcurrency)
	for i, tree := range trees {
		i, tree := i, tree
		group.Go(func() error {
			row, err := entry.Client.Create(groupCtx, tree)
			if err != nil {
				err = MapStoreError(err, entity, "bulk create")
			}
			result.Items[i] = BulkItemResult{Index: i, Row: row, Err: err}
			// Partial-success semantics: item failures are recorded, never
			// propagated through the group.
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, item := range result.Items {
		if item.Err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	return result, nil
}

// RawQuery gates a caller-constructed textual query through the entity's
// whitelist before executing it.
func (g *Gateway) RawQuery(ctx context.Context, entity string, query string, args ...interface{}) ([]Row, error) {
	entry, err := g.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}
	if g.raw == nil {
		return nil, fmt.Errorf("gateway has no raw query executor")
	}
	return g.raw.Query(ctx, entry.Whitelist, query, args...)
}

// RunInTransaction exposes the transaction runner for callers that need
// multiple writes to be atomic.
func (g *Gateway) RunInTransaction(ctx context.Context, spec TxSpec, fn UnitOfWork) error {
	if g.runner == nil {
		return fmt.Errorf("gateway has no transaction runner")
	}
	return g.runner.Run(ctx, spec, fn)
}

// prepareWrite validates a payload and translates its nested writes.
func (g *Gateway) prepareWrite(entry *Entry, payload map[string]interface{}, isUpdate bool) (WriteTree, error) {
	if entry.Descriptor.Validator != nil {
		scalars := make(map[string]interface{}, len(payload))
		for key, value := range payload {
			if !entry.Descriptor.IsRelation(key) {
				scalars[key] = value
			}
		}
		if err := entry.Descriptor.Validator.Validate(scalars, isUpdate); err != nil {
			return nil, err
		}
	}
	return TranslateNestedWrite(payload, entry.Descriptor, entry.Policy, isUpdate)
}
