// Package pgstore is a pgx-backed implementation of the gateway's generic
// per-entity client. SQL is generated from validated query plans and
// write trees; every value travels as a positional parameter.
package pgstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gatekit-db/gatekit/pkg/gateway"
)

// Querier is the slice of pgx both pools and transactions satisfy.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Client implements gateway.EntityClient for one entity.
//
// Nested write sub-operations issue multiple statements; run them inside a
// transaction (WithTx) when atomicity matters.
type Client struct {
	desc  *gateway.ModelDescriptor
	table string
	db    Querier
	debug *gateway.DebugContext
}

// NewClient creates a client bound to the entity's table.
func NewClient(desc *gateway.ModelDescriptor, connector *gateway.Connector) *Client {
	return &Client{
		desc:  desc,
		table: tableName(desc.Name),
		db:    connector.Pool(),
		debug: gateway.DefaultDebugContext(),
	}
}

// WithDebug sets the debug context and returns the client.
func (c *Client) WithDebug(debug *gateway.DebugContext) *Client {
	if debug != nil {
		c.debug = debug
	}
	return c
}

// WithTx implements gateway.TxCapable.
func (c *Client) WithTx(tx pgx.Tx) gateway.EntityClient {
	clone := *c
	clone.db = tx
	return &clone
}

// forDescriptor returns a client for a related entity sharing this
// client's querier and debug settings.
func (c *Client) forDescriptor(desc *gateway.ModelDescriptor) *Client {
	return &Client{
		desc:  desc,
		table: tableName(desc.Name),
		db:    c.db,
		debug: c.debug,
	}
}

// ============================================================
// READS
// ============================================================

// FindMany executes a query plan: projection, filter, ordering,
// pagination, then eager-loads the inclusion tree.
func (c *Client) FindMany(ctx context.Context, plan *gateway.QueryPlan) ([]gateway.Row, error) {
	args := &argList{}

	projection := "*"
	if len(plan.Select) > 0 {
		cols := make([]string, len(plan.Select))
		for i, f := range plan.Select {
			cols[i] = quoteIdent(columnName(f))
		}
		projection = strings.Join(cols, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", projection, quoteIdent(c.table))

	where, err := whereSQL(plan.Where, args)
	if err != nil {
		return nil, err
	}
	if where != "" {
		b.WriteString(" WHERE " + where)
	}

	if len(plan.OrderBy) > 0 {
		terms := make([]string, len(plan.OrderBy))
		for i, s := range plan.OrderBy {
			direction := "ASC"
			if s.Direction == "desc" {
				direction = "DESC"
			}
			terms[i] = quoteIdent(columnName(s.Field)) + " " + direction
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}

	if plan.Take > 0 {
		fmt.Fprintf(&b, " LIMIT %s", args.add(plan.Take))
	}
	if plan.Skip > 0 {
		fmt.Fprintf(&b, " OFFSET %s", args.add(plan.Skip))
	}

	rows, err := c.query(ctx, b.String(), args.values...)
	if err != nil {
		return nil, err
	}

	if len(plan.Include) > 0 {
		if err := c.eagerLoad(ctx, rows, plan.Include); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// FindByID returns the row with the given primary key, or nil when absent.
func (c *Client) FindByID(ctx context.Context, id interface{}) (gateway.Row, error) {
	rows, err := c.query(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = $1", quoteIdent(c.table)), id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Count returns the number of rows matching a filter tree.
func (c *Client) Count(ctx context.Context, where map[string]interface{}) (int64, error) {
	args := &argList{}
	sql := fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", quoteIdent(c.table))
	clause, err := whereSQL(where, args)
	if err != nil {
		return 0, err
	}
	if clause != "" {
		sql += " WHERE " + clause
	}
	rows, err := c.query(ctx, sql, args.values...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Int("n"), nil
}

// eagerLoad attaches related rows for each inclusion, recursing into
// nested include sub-trees.
func (c *Client) eagerLoad(ctx context.Context, rows []gateway.Row, include map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	for name, value := range include {
		meta, ok := c.desc.Relations[name]
		if !ok || meta == nil || meta.Target == nil {
			continue
		}
		child := c.forDescriptor(meta.Target)

		var childRows []gateway.Row
		var err error
		if meta.Cardinality == gateway.CardinalityMany {
			childRows, err = c.loadMany(ctx, rows, name, child)
		} else {
			childRows, err = c.loadOne(ctx, rows, name, child)
		}
		if err != nil {
			return err
		}

		if nested, ok := value.(map[string]interface{}); ok {
			if sub, ok := nested["include"].(map[string]interface{}); ok {
				if err := child.eagerLoad(ctx, childRows, sub); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// loadMany fetches children rows pointing at the parents via the parent's
// conventional FK column and groups them onto each parent row.
func (c *Client) loadMany(ctx context.Context, parents []gateway.Row, relation string, child *Client) ([]gateway.Row, error) {
	fk := foreignKeyColumn(c.desc.Name)

	ids := make([]interface{}, 0, len(parents))
	for _, p := range parents {
		if id, ok := p["id"]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = ANY($1)", quoteIdent(child.table), quoteIdent(fk))
	childRows, err := c.query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]gateway.Row)
	for _, row := range childRows {
		key := fmt.Sprintf("%v", row[fk])
		grouped[key] = append(grouped[key], row)
	}
	for _, p := range parents {
		key := fmt.Sprintf("%v", p["id"])
		group := grouped[key]
		if group == nil {
			group = []gateway.Row{}
		}
		p[relation] = group
	}
	return childRows, nil
}

// loadOne fetches the rows behind a to-one relation via the FK column on
// the parent side and attaches each to its parent.
func (c *Client) loadOne(ctx context.Context, parents []gateway.Row, relation string, child *Client) ([]gateway.Row, error) {
	fk := foreignKeyColumn(relation)

	fks := make([]interface{}, 0, len(parents))
	for _, p := range parents {
		if v, ok := p[fk]; ok && v != nil {
			fks = append(fks, v)
		}
	}
	if len(fks) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf("SELECT * FROM %s WHERE id = ANY($1)", quoteIdent(child.table))
	childRows, err := c.query(ctx, sql, fks)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]gateway.Row, len(childRows))
	for _, row := range childRows {
		byID[fmt.Sprintf("%v", row["id"])] = row
	}
	for _, p := range parents {
		if v, ok := p[fk]; ok && v != nil {
			if match, found := byID[fmt.Sprintf("%v", v)]; found {
				p[relation] = match
			}
		}
	}
	return childRows, nil
}

// ============================================================
// WRITES
// ============================================================

// Create inserts the tree's scalars plus its relation sub-operations:
// to-one creates and connects resolve to FK columns before the insert,
// to-many sub-operations run against the children afterwards.
func (c *Client) Create(ctx context.Context, tree gateway.WriteTree) (gateway.Row, error) {
	return c.createTree(ctx, tree, nil)
}

func (c *Client) createTree(ctx context.Context, tree gateway.WriteTree, extra map[string]interface{}) (gateway.Row, error) {
	scalars, relations := c.splitTree(tree)
	for col, v := range extra {
		scalars[col] = v
	}

	// To-one relations resolve into FK columns on this row.
	var post []func(parent gateway.Row) error
	for field, node := range relations {
		meta := c.desc.Relations[field]
		if meta == nil || meta.Target == nil {
			return nil, fmt.Errorf("relation '%s' of entity '%s' has no metadata", field, c.desc.Name)
		}
		child := c.forDescriptor(meta.Target)

		if meta.Cardinality == gateway.CardinalityOne {
			if connect, ok := node["connect"]; ok {
				scalars[foreignKeyColumn(field)] = connectID(connect)
			}
			if payload, ok := node["create"]; ok {
				subTree, ok := asTree(payload)
				if !ok {
					return nil, fmt.Errorf("create payload for '%s' must be an object", field)
				}
				childRow, err := child.createTree(ctx, subTree, nil)
				if err != nil {
					return nil, err
				}
				scalars[foreignKeyColumn(field)] = childRow["id"]
			}
			continue
		}

		// To-many sub-operations need the parent id first.
		post = append(post, func(parent gateway.Row) error {
			return c.applyManyOps(ctx, child, node, field, parent["id"])
		})
	}

	row, err := c.insertRow(ctx, scalars)
	if err != nil {
		return nil, err
	}
	for _, fn := range post {
		if err := fn(row); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// Update applies the tree's scalars and relation sub-operations to the row
// with the given primary key. Returns nil when the row does not exist.
func (c *Client) Update(ctx context.Context, id interface{}, tree gateway.WriteTree) (gateway.Row, error) {
	scalars, relations := c.splitTree(tree)

	// To-one connect/disconnect fold into the scalar update.
	type pending struct {
		field string
		node  gateway.WriteTree
		meta  *gateway.RelationMeta
	}
	var after []pending
	for field, node := range relations {
		meta := c.desc.Relations[field]
		if meta == nil || meta.Target == nil {
			return nil, fmt.Errorf("relation '%s' of entity '%s' has no metadata", field, c.desc.Name)
		}
		if meta.Cardinality == gateway.CardinalityOne {
			if connect, ok := node["connect"]; ok {
				scalars[foreignKeyColumn(field)] = connectID(connect)
			}
			if _, ok := node["disconnect"]; ok {
				scalars[foreignKeyColumn(field)] = nil
			}
			if payload, ok := node["create"]; ok {
				subTree, ok := asTree(payload)
				if !ok {
					return nil, fmt.Errorf("create payload for '%s' must be an object", field)
				}
				child := c.forDescriptor(meta.Target)
				childRow, err := child.createTree(ctx, subTree, nil)
				if err != nil {
					return nil, err
				}
				scalars[foreignKeyColumn(field)] = childRow["id"]
			}
		}
		after = append(after, pending{field: field, node: node, meta: meta})
	}

	row, err := c.updateRow(ctx, id, scalars)
	if err != nil || row == nil {
		return row, err
	}

	for _, p := range after {
		child := c.forDescriptor(p.meta.Target)
		if p.meta.Cardinality == gateway.CardinalityOne {
			if err := c.applyOneOps(ctx, child, p.node, p.field, row); err != nil {
				return nil, err
			}
		} else {
			if err := c.applyManyOps(ctx, child, p.node, p.field, row["id"]); err != nil {
				return nil, err
			}
		}
	}
	return row, nil
}

// Delete removes a row by primary key.
func (c *Client) Delete(ctx context.Context, id interface{}) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE id = $1", quoteIdent(c.table))
	c.debug.SQLf("[SQL] %s", sql)
	tag, err := c.db.Exec(ctx, sql, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &gateway.NotFoundError{Entity: c.desc.Name, ID: id}
	}
	return nil
}

// applyOneOps runs the to-one sub-operations that need the freshly
// updated parent row: in-place update and delete of the related entity.
func (c *Client) applyOneOps(ctx context.Context, child *Client, node gateway.WriteTree, field string, parent gateway.Row) error {
	fkValue := parent[foreignKeyColumn(field)]

	if payload, ok := node["update"]; ok {
		subTree, ok := asTree(payload)
		if !ok {
			return fmt.Errorf("update payload for '%s' must be an object", field)
		}
		if fkValue == nil {
			return &gateway.NotFoundError{Entity: child.desc.Name, ID: nil}
		}
		if _, err := child.Update(ctx, fkValue, subTree); err != nil {
			return err
		}
	}

	if _, ok := node["delete"]; ok && fkValue != nil {
		// Release the reference before removing the child.
		if _, err := c.updateRow(ctx, parent["id"], map[string]interface{}{foreignKeyColumn(field): nil}); err != nil {
			return err
		}
		if err := child.Delete(ctx, fkValue); err != nil {
			return err
		}
	}
	return nil
}

// applyManyOps runs to-many sub-operations against the child table. The
// child rows carry the conventional FK column named after this entity.
func (c *Client) applyManyOps(ctx context.Context, child *Client, node gateway.WriteTree, field string, parentID interface{}) error {
	fk := foreignKeyColumn(c.desc.Name)

	if payload, ok := node["create"]; ok {
		for _, item := range asItemList(payload) {
			subTree, ok := asTree(item)
			if !ok {
				return fmt.Errorf("create payload for '%s' must be an object or list of objects", field)
			}
			if _, err := child.createTree(ctx, subTree, map[string]interface{}{fk: parentID}); err != nil {
				return err
			}
		}
	}

	if payload, ok := node["connect"]; ok {
		for _, item := range asItemList(payload) {
			sql := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE id = $2", quoteIdent(child.table), quoteIdent(fk))
			if _, err := c.db.Exec(ctx, sql, parentID, connectID(item)); err != nil {
				return err
			}
		}
	}

	if payload, ok := node["disconnect"]; ok {
		for _, item := range asItemList(payload) {
			sql := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE id = $1 AND %s = $2", quoteIdent(child.table), quoteIdent(fk), quoteIdent(fk))
			if _, err := c.db.Exec(ctx, sql, connectID(item), parentID); err != nil {
				return err
			}
		}
	}

	if payload, ok := node["delete"]; ok {
		for _, item := range asItemList(payload) {
			sql := fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND %s = $2", quoteIdent(child.table), quoteIdent(fk))
			if _, err := c.db.Exec(ctx, sql, connectID(item), parentID); err != nil {
				return err
			}
		}
	}

	if payload, ok := node["update"]; ok {
		for _, item := range asItemList(payload) {
			subTree, ok := asTree(item)
			if !ok {
				return fmt.Errorf("update payload for '%s' must be an object or list of objects", field)
			}
			childID, hasID := subTree["id"]
			if !hasID {
				return fmt.Errorf("update payload for '%s' requires an id", field)
			}
			data := make(gateway.WriteTree, len(subTree))
			for k, v := range subTree {
				if k != "id" {
					data[k] = v
				}
			}
			if _, err := child.Update(ctx, childID, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// ============================================================
// STATEMENT HELPERS
// ============================================================

func (c *Client) insertRow(ctx context.Context, values map[string]interface{}) (gateway.Row, error) {
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	args := &argList{}
	cols := make([]string, len(fields))
	placeholders := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = quoteIdent(columnName(f))
		placeholders[i] = args.add(values[f])
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteIdent(c.table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)

	rows, err := c.query(ctx, sql, args.values...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("INSERT into %s returned no rows", c.table)
	}
	return rows[0], nil
}

func (c *Client) updateRow(ctx context.Context, id interface{}, values map[string]interface{}) (gateway.Row, error) {
	if len(values) == 0 {
		return c.FindByID(ctx, id)
	}

	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	args := &argList{}
	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = fmt.Sprintf("%s = %s", quoteIdent(columnName(f)), args.add(values[f]))
	}

	sql := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = %s RETURNING *",
		quoteIdent(c.table),
		strings.Join(sets, ", "),
		args.add(id),
	)

	rows, err := c.query(ctx, sql, args.values...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (c *Client) query(ctx context.Context, sql string, args ...interface{}) ([]gateway.Row, error) {
	c.debug.SQLf("[SQL] %s", sql)
	c.debug.Tracef("[VALUES] %v", args)

	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []gateway.Row
	columns := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(gateway.Row, len(columns))
		for i, col := range columns {
			row[col.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// splitTree separates scalar assignments from relation sub-nodes.
func (c *Client) splitTree(tree gateway.WriteTree) (map[string]interface{}, map[string]gateway.WriteTree) {
	scalars := make(map[string]interface{})
	relations := make(map[string]gateway.WriteTree)
	for key, value := range tree {
		if c.desc.IsRelation(key) {
			if node, ok := asTree(value); ok {
				relations[key] = node
				continue
			}
		}
		scalars[key] = value
	}
	return scalars, relations
}

func asTree(v interface{}) (gateway.WriteTree, bool) {
	switch t := v.(type) {
	case gateway.WriteTree:
		return t, true
	case map[string]interface{}:
		return gateway.WriteTree(t), true
	}
	return nil, false
}

// asItemList normalizes a sub-operation payload to a list: arrays stay,
// single objects and scalars become one-element lists.
func asItemList(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	return []interface{}{v}
}

// connectID extracts the target id from a connect descriptor, which is
// either a bare id or an object carrying one.
func connectID(v interface{}) interface{} {
	if m, ok := asTree(v); ok {
		return m["id"]
	}
	return v
}
