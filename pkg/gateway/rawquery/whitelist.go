// Package rawquery gates caller-constructible textual queries behind
// per-entity allow-lists. Extraction is pattern-based structural
// recognition, not a SQL parser: clause keywords are recognized
// positionally. It is a best-effort textual whitelist, not a guarantee of
// semantic SQL correctness.
package rawquery

import (
	"fmt"
	"regexp"
	"strings"
)

// Whitelist is the per-entity raw-query configuration. Disabled by
// default; immutable after wiring.
type Whitelist struct {
	Enabled bool

	// MaxQueryLength bounds the query text. Zero means the default.
	MaxQueryLength int

	// ParameterizedOnly rejects literal-looking values (quoted strings,
	// bare numerics, the null literal) outside $n placeholders.
	ParameterizedOnly bool

	// AllowedOperations lists permitted leading verbs: select, insert,
	// update, delete.
	AllowedOperations []string

	// AllowedTables maps table name to its allowed columns. The single
	// entry "*" allows every column of that table.
	AllowedTables map[string][]string

	// Joins enables join checking when non-nil.
	Joins *JoinPolicy

	// Sorts enables ORDER BY checking when non-nil.
	Sorts *SortPolicy

	// MaxRows truncates results after execution. Zero means no cap.
	MaxRows int
}

// JoinPolicy restricts which tables may be joined and how.
type JoinPolicy struct {
	Allowed map[string]JoinRule
}

// JoinRule constrains one joinable table.
type JoinRule struct {
	// Types lists permitted join types (inner, left, right, full). Empty
	// means any type.
	Types []string
	// With lists tables that must co-occur in the query for this join to
	// be permitted. Empty means no co-occurrence restriction.
	With []string
}

// SortPolicy restricts ORDER BY targets.
type SortPolicy struct {
	// AllowedColumns maps table name to sortable columns.
	AllowedColumns map[string][]string
	// MaxSortColumns caps how many columns one query may sort by. Zero
	// means unlimited.
	MaxSortColumns int
}

const defaultMaxQueryLength = 4096

// RejectionError names the whitelist rule a query violated.
type RejectionError struct {
	Rule    string
	Message string
}

func (e *RejectionError) Error() string { return e.Message }

func (e *RejectionError) Code() string { return e.Rule }

func reject(rule, format string, args ...interface{}) error {
	return &RejectionError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// ============================================================
// CLAUSE EXTRACTION PATTERNS
// ============================================================

var (
	reLeadingVerb = regexp.MustCompile(`(?is)^\s*([a-z]+)`)
	reFromTable   = regexp.MustCompile(`(?is)\bfrom\s+([a-z_][a-z0-9_]*)`)
	reJoin        = regexp.MustCompile(`(?is)\b(?:(inner|left|right|full)(?:\s+outer)?\s+)?join\s+([a-z_][a-z0-9_]*)`)
	reInsertInto  = regexp.MustCompile(`(?is)\binsert\s+into\s+([a-z_][a-z0-9_]*)\s*(?:\(([^)]*)\))?`)
	reUpdateTable = regexp.MustCompile(`(?is)^\s*update\s+([a-z_][a-z0-9_]*)`)
	reDeleteFrom  = regexp.MustCompile(`(?is)\bdelete\s+from\s+([a-z_][a-z0-9_]*)`)
	reSetClause   = regexp.MustCompile(`(?is)\bset\s+(.*?)(?:\bwhere\b|\breturning\b|$)`)
	reOrderBy     = regexp.MustCompile(`(?is)\border\s+by\s+(.*?)(?:\blimit\b|\boffset\b|$)`)
	reColumnRef   = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\.([a-z_][a-z0-9_]*)\b`)

	reQuotedString = regexp.MustCompile(`'(?:[^']|'')*'`)
	reBareNumber   = regexp.MustCompile(`(?:^|[\s,=<>(+\-*/])\d+(?:\.\d+)?`)
	reNullLiteral  = regexp.MustCompile(`(?i)(?:^|[\s,=(])null\b`)
	reIsNull       = regexp.MustCompile(`(?i)\bis\s+(?:not\s+)?null\b`)
	rePlaceholder  = regexp.MustCompile(`\$\d+`)
)

// Check verifies a query is structurally within bounds. It rejects with a
// named rule before the query ever reaches the store.
func (w *Whitelist) Check(query string) error {
	if w == nil || !w.Enabled {
		return reject("RAW_QUERY_DISABLED", "raw queries are not enabled for this entity")
	}

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return reject("EMPTY_QUERY", "query text is empty")
	}
	maxLen := w.MaxQueryLength
	if maxLen <= 0 {
		maxLen = defaultMaxQueryLength
	}
	if len(trimmed) > maxLen {
		return reject("QUERY_TOO_LONG", "query length %d exceeds maximum %d", len(trimmed), maxLen)
	}

	verb := w.leadingVerb(trimmed)
	if verb == "" || !containsFold(w.AllowedOperations, verb) {
		return reject("OPERATION_NOT_ALLOWED", "operation '%s' is not allowed", verb)
	}

	if w.ParameterizedOnly {
		if err := checkParameterized(trimmed); err != nil {
			return err
		}
	}

	tables := extractTables(trimmed)
	for _, table := range tables {
		if _, ok := w.AllowedTables[table]; !ok {
			return reject("TABLE_NOT_ALLOWED", "table '%s' is not allowed", table)
		}
	}

	switch verb {
	case "select":
		if err := w.checkColumnRefs(trimmed); err != nil {
			return err
		}
	case "insert":
		if err := w.checkInsertColumns(trimmed); err != nil {
			return err
		}
	case "update":
		if err := w.checkUpdateColumns(trimmed); err != nil {
			return err
		}
	}

	if w.Joins != nil {
		if err := w.checkJoins(trimmed, tables); err != nil {
			return err
		}
	}
	if w.Sorts != nil {
		if err := w.checkOrderBy(trimmed, tables); err != nil {
			return err
		}
	}

	return nil
}

func (w *Whitelist) leadingVerb(query string) string {
	m := reLeadingVerb.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// extractTables collects table names from FROM, JOIN, INSERT INTO, UPDATE
// and DELETE FROM clauses.
func extractTables(query string) []string {
	seen := make(map[string]bool)
	var tables []string
	add := func(name string) {
		name = strings.ToLower(name)
		if name != "" && !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}

	for _, m := range reFromTable.FindAllStringSubmatch(query, -1) {
		// "DELETE FROM t" also matches here, which is fine.
		add(m[1])
	}
	for _, m := range reJoin.FindAllStringSubmatch(query, -1) {
		add(m[2])
	}
	for _, m := range reInsertInto.FindAllStringSubmatch(query, -1) {
		add(m[1])
	}
	for _, m := range reUpdateTable.FindAllStringSubmatch(query, -1) {
		add(m[1])
	}
	for _, m := range reDeleteFrom.FindAllStringSubmatch(query, -1) {
		add(m[1])
	}
	return tables
}

// columnsAllowAll reports whether a table's column entry short-circuits
// column checks.
func columnsAllowAll(columns []string) bool {
	for _, c := range columns {
		if c == "*" {
			return true
		}
	}
	return false
}

// checkColumnRefs validates every table.column reference against that
// table's allowed columns. References to tables outside the allow-list map
// (aliases) are skipped: the tables themselves were already checked.
func (w *Whitelist) checkColumnRefs(query string) error {
	for _, m := range reColumnRef.FindAllStringSubmatch(query, -1) {
		table := strings.ToLower(m[1])
		column := strings.ToLower(m[2])
		columns, ok := w.AllowedTables[table]
		if !ok {
			continue
		}
		if columnsAllowAll(columns) {
			continue
		}
		if !containsFold(columns, column) {
			return reject("COLUMN_NOT_ALLOWED", "column '%s.%s' is not allowed", table, column)
		}
	}
	return nil
}

// checkInsertColumns validates the explicit column list of an INSERT.
func (w *Whitelist) checkInsertColumns(query string) error {
	m := reInsertInto.FindStringSubmatch(query)
	if m == nil {
		return nil
	}
	table := strings.ToLower(m[1])
	columns, ok := w.AllowedTables[table]
	if !ok || columnsAllowAll(columns) || m[2] == "" {
		return nil
	}
	for _, raw := range strings.Split(m[2], ",") {
		column := strings.ToLower(strings.TrimSpace(raw))
		if column == "" {
			continue
		}
		if !containsFold(columns, column) {
			return reject("COLUMN_NOT_ALLOWED", "column '%s.%s' is not allowed", table, column)
		}
	}
	return nil
}

// checkUpdateColumns validates every target of a SET clause.
func (w *Whitelist) checkUpdateColumns(query string) error {
	tm := reUpdateTable.FindStringSubmatch(query)
	if tm == nil {
		return nil
	}
	table := strings.ToLower(tm[1])
	columns, ok := w.AllowedTables[table]
	if !ok || columnsAllowAll(columns) {
		return nil
	}

	sm := reSetClause.FindStringSubmatch(query)
	if sm == nil {
		return nil
	}
	for _, assignment := range strings.Split(sm[1], ",") {
		parts := strings.SplitN(assignment, "=", 2)
		column := strings.ToLower(strings.TrimSpace(parts[0]))
		if idx := strings.Index(column, "."); idx >= 0 {
			column = column[idx+1:]
		}
		if column == "" {
			continue
		}
		if !containsFold(columns, column) {
			return reject("COLUMN_NOT_ALLOWED", "column '%s.%s' is not allowed in SET", table, column)
		}
	}
	return nil
}

// checkJoins validates every joined table's permission, join type and
// co-occurring-table restriction.
func (w *Whitelist) checkJoins(query string, tables []string) error {
	for _, m := range reJoin.FindAllStringSubmatch(query, -1) {
		joinType := strings.ToLower(m[1])
		if joinType == "" {
			joinType = "inner"
		}
		table := strings.ToLower(m[2])

		rule, ok := w.Joins.Allowed[table]
		if !ok {
			return reject("JOIN_NOT_ALLOWED", "joining table '%s' is not allowed", table)
		}
		if len(rule.Types) > 0 && !containsFold(rule.Types, joinType) {
			return reject("JOIN_NOT_ALLOWED", "%s join on table '%s' is not allowed", joinType, table)
		}
		for _, required := range rule.With {
			if !containsFold(tables, required) {
				return reject("JOIN_NOT_ALLOWED", "joining '%s' requires table '%s' in the query", table, required)
			}
		}
	}
	return nil
}

// checkOrderBy validates ORDER BY columns against the sort allow-list and
// the maximum sort-column count. Bare columns resolve against the query's
// primary (first extracted) table.
func (w *Whitelist) checkOrderBy(query string, tables []string) error {
	m := reOrderBy.FindStringSubmatch(query)
	if m == nil {
		return nil
	}

	primary := ""
	if len(tables) > 0 {
		primary = tables[0]
	}

	terms := strings.Split(m[1], ",")
	if w.Sorts.MaxSortColumns > 0 && len(terms) > w.Sorts.MaxSortColumns {
		return reject("SORT_NOT_ALLOWED", "query sorts by %d columns, maximum is %d", len(terms), w.Sorts.MaxSortColumns)
	}

	for _, term := range terms {
		fields := strings.Fields(strings.TrimSpace(term))
		if len(fields) == 0 {
			continue
		}
		target := strings.ToLower(fields[0])
		table, column := primary, target
		if idx := strings.Index(target, "."); idx >= 0 {
			table, column = target[:idx], target[idx+1:]
		}
		allowed, ok := w.Sorts.AllowedColumns[table]
		if !ok || !containsFold(allowed, column) {
			return reject("SORT_NOT_ALLOWED", "sorting by '%s.%s' is not allowed", table, column)
		}
	}
	return nil
}

// checkParameterized rejects inline literals. Placeholders ($1, $2, ...)
// and IS [NOT] NULL predicates are stripped before the scan.
func checkParameterized(query string) error {
	if reQuotedString.MatchString(query) {
		return reject("LITERAL_NOT_ALLOWED", "inline string literals are not allowed; use parameters")
	}

	stripped := rePlaceholder.ReplaceAllString(query, "")
	stripped = reIsNull.ReplaceAllString(stripped, "")

	if reBareNumber.MatchString(stripped) {
		return reject("LITERAL_NOT_ALLOWED", "inline numeric literals are not allowed; use parameters")
	}
	if reNullLiteral.MatchString(stripped) {
		return reject("LITERAL_NOT_ALLOWED", "inline null literals are not allowed; use parameters")
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
