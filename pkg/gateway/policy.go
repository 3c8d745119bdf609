package gateway

// SecurityPolicy is the per-entity allow-list configuration. The zero value
// obtained from DefaultPolicy denies everything: empty allow-lists, depth 1,
// page size 50. Anything a caller may filter, sort, include or select by
// must be opted in explicitly.
//
// Policies are created once at wiring time and never mutated per request,
// so unsynchronized concurrent reads are safe.
type SecurityPolicy struct {
	AllowedFilters  []string
	AllowedSorts    []string
	AllowedIncludes []string
	AllowedSelects  []string

	MaxIncludeDepth int
	MaxPageSize     int
	MaxNestedDepth  int

	// SoftDelete marks the entity as soft-deletable: reads filter out rows
	// whose deletedAt is set unless the caller asks for them, and deletes
	// stamp deletedAt instead of removing the row.
	SoftDelete bool
}

// SoftDeleteField is the implicit marker predicate field. It is exempt from
// allow-list checks because the gateway injects it, not the caller.
const SoftDeleteField = "deletedAt"

// defaultMaxPageSize caps page size for policies that never set one.
const defaultMaxPageSize = 50

// DefaultPolicy returns the fail-closed policy.
func DefaultPolicy() *SecurityPolicy {
	return &SecurityPolicy{
		MaxIncludeDepth: 1,
		MaxPageSize:     defaultMaxPageSize,
		MaxNestedDepth:  1,
	}
}

// PageCap returns the effective page-size cap. A policy built as a struct
// literal may leave MaxPageSize at zero; that must not read as "no cap",
// so non-positive values fall back to the default.
func (p *SecurityPolicy) PageCap() int {
	if p.MaxPageSize > 0 {
		return p.MaxPageSize
	}
	return defaultMaxPageSize
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CanFilter reports whether a field may appear in a filter. The injected
// soft-delete marker passes without being listed.
func (p *SecurityPolicy) CanFilter(field string) bool {
	if field == SoftDeleteField && p.SoftDelete {
		return true
	}
	return contains(p.AllowedFilters, field)
}

func (p *SecurityPolicy) CanSort(field string) bool {
	return contains(p.AllowedSorts, field)
}

func (p *SecurityPolicy) CanInclude(field string) bool {
	return contains(p.AllowedIncludes, field)
}

func (p *SecurityPolicy) CanSelect(field string) bool {
	return contains(p.AllowedSelects, field)
}

// CheckLimit enforces the page-size cap as a hard error. The parse path in
// TranslateQueryParams clamps instead; this is the second, deliberate
// defense for callers that pass a take value through explicitly.
func (p *SecurityPolicy) CheckLimit(take int) error {
	if pageCap := p.PageCap(); take > pageCap {
		return &LimitExceededError{Requested: take, Max: pageCap}
	}
	return nil
}
