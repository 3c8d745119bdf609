package gateway

import "fmt"

// Row represents a single result row as a map of field name → value.
// Values are typed: string, int64, float64, bool, nil, time.Time.
type Row map[string]interface{}

// Get returns the value of a field.
func (r Row) Get(field string) interface{} {
	return r[field]
}

// String returns the string value of a field, or empty string if not found.
func (r Row) String(field string) string {
	v, ok := r[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}

// Int returns the int64 value of a field, or 0 if not found/not numeric.
func (r Row) Int(field string) int64 {
	v, ok := r[field]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// ListResult holds one page of a list query together with paging metadata.
type ListResult struct {
	Entity string
	Rows   []Row
	Skip   int
	Take   int
	Total  int64
}

// Count returns the number of rows in this page.
func (lr *ListResult) Count() int {
	return len(lr.Rows)
}

// IsEmpty returns true if no rows were returned.
func (lr *ListResult) IsEmpty() bool {
	return len(lr.Rows) == 0
}

// BulkItemResult is the per-item outcome of a partial-success bulk call.
type BulkItemResult struct {
	Index int
	Row   Row
	Err   error
}

// BulkResult aggregates a partial-success bulk operation.
type BulkResult struct {
	Items     []BulkItemResult
	Succeeded int
	Failed    int
}
