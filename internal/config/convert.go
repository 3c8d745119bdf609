package config

import (
	"strings"

	"github.com/gatekit-db/gatekit/pkg/gateway"
	"github.com/gatekit-db/gatekit/pkg/gateway/rawquery"
)

// Policy converts the YAML policy into the runtime SecurityPolicy,
// starting from the fail-closed defaults.
func (p PolicyConfig) Policy() *gateway.SecurityPolicy {
	policy := gateway.DefaultPolicy()
	policy.AllowedFilters = append(policy.AllowedFilters, p.AllowedFilters...)
	policy.AllowedSorts = append(policy.AllowedSorts, p.AllowedSorts...)
	policy.AllowedIncludes = append(policy.AllowedIncludes, p.AllowedIncludes...)
	policy.AllowedSelects = append(policy.AllowedSelects, p.AllowedSelects...)
	if p.MaxIncludeDepth > 0 {
		policy.MaxIncludeDepth = p.MaxIncludeDepth
	}
	if p.MaxPageSize > 0 {
		policy.MaxPageSize = p.MaxPageSize
	}
	if p.MaxNestedDepth > 0 {
		policy.MaxNestedDepth = p.MaxNestedDepth
	}
	policy.SoftDelete = p.SoftDelete
	return policy
}

// Whitelist converts the YAML raw-query section into the runtime
// whitelist. A nil section yields a disabled whitelist.
func (r *RawQueryConfig) Whitelist() *rawquery.Whitelist {
	if r == nil {
		return &rawquery.Whitelist{}
	}
	wl := &rawquery.Whitelist{
		Enabled:           r.Enabled,
		MaxQueryLength:    r.MaxQueryLength,
		ParameterizedOnly: r.ParameterizedOnly,
		AllowedOperations: r.Operations,
		AllowedTables:     r.Tables,
		MaxRows:           r.MaxRows,
	}
	if len(r.Joins) > 0 {
		wl.Joins = &rawquery.JoinPolicy{Allowed: make(map[string]rawquery.JoinRule, len(r.Joins))}
		for table, rule := range r.Joins {
			wl.Joins.Allowed[table] = rawquery.JoinRule{Types: rule.Types, With: rule.With}
		}
	}
	if len(r.SortColumns) > 0 || r.MaxSortColumns > 0 {
		wl.Sorts = &rawquery.SortPolicy{
			AllowedColumns: r.SortColumns,
			MaxSortColumns: r.MaxSortColumns,
		}
	}
	return wl
}

// ParseRelationTarget splits an "Entity:cardinality" declaration.
// Cardinality defaults to one.
func ParseRelationTarget(target string) (string, gateway.Cardinality) {
	parts := strings.SplitN(target, ":", 2)
	entity := strings.TrimSpace(parts[0])
	cardinality := gateway.CardinalityOne
	if len(parts) == 2 && strings.TrimSpace(parts[1]) == "many" {
		cardinality = gateway.CardinalityMany
	}
	return entity, cardinality
}
