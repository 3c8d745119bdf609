package gateway

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Parameter names with reserved meaning; every other query parameter is
// interpreted as a simple filter on the named field.
var reservedParams = map[string]bool{
	"page":           true,
	"limit":          true,
	"sort":           true,
	"select":         true,
	"include":        true,
	"filter":         true,
	"includeDeleted": true,
}

const (
	defaultPageSize = 10

	// maxJSONValueSize bounds how large a parameter value may be before the
	// translator refuses to JSON-parse it.
	maxJSONValueSize = 8192
)

// TranslateQueryParams converts untrusted query parameters into a QueryPlan
// or fails with a descriptive error before any store access occurs.
// Validation is all-or-nothing: no partial plan is ever returned.
//
// Out-of-range page and limit values are clamped here; the explicit
// pass-through path (ValidateQueryPlan) rejects instead. Both defenses are
// intentional.
func TranslateQueryParams(params url.Values, policy *SecurityPolicy) (*QueryPlan, error) {
	plan := &QueryPlan{}

	page := parseIntOr(params.Get("page"), 1)
	if page < 1 {
		page = 1
	}

	take := parseIntOr(params.Get("limit"), defaultPageSize)
	if take < 1 {
		take = defaultPageSize
	}
	if pageCap := policy.PageCap(); take > pageCap {
		take = pageCap
	}
	plan.Take = take
	plan.Skip = (page - 1) * take

	plan.OrderBy = parseSort(params.Get("sort"))

	if raw := params.Get("select"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				plan.Select = append(plan.Select, f)
			}
		}
	}

	include, err := parseInclude(params.Get("include"))
	if err != nil {
		return nil, err
	}
	plan.Include = include

	where, err := parseFilter(params)
	if err != nil {
		return nil, err
	}
	plan.Where = where

	if err := validateWhere(plan.Where, policy); err != nil {
		return nil, err
	}
	for _, s := range plan.OrderBy {
		if !policy.CanSort(s.Field) {
			return nil, &NotAllowedError{Op: "Sorting", Field: s.Field}
		}
	}
	for _, f := range plan.Select {
		if !policy.CanSelect(f) {
			return nil, &NotAllowedError{Op: "Selecting", Field: f}
		}
	}
	if err := validateInclude(plan.Include, policy, 1); err != nil {
		return nil, err
	}

	// Soft-delete marker is injected after allow-list validation: the
	// caller never supplied it, so it is exempt from the checks.
	if policy.SoftDelete && params.Get("includeDeleted") != "true" {
		if plan.Where == nil {
			plan.Where = make(map[string]interface{})
		}
		if _, present := plan.Where[SoftDeleteField]; !present {
			plan.Where[SoftDeleteField] = map[string]interface{}{"equals": nil}
		}
	}

	return plan, nil
}

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

// parseSort splits a comma-separated list of field:direction pairs.
// Direction defaults to ascending; malformed pairs are dropped, not fatal.
func parseSort(raw string) []SortSpec {
	if raw == "" {
		return nil
	}
	var specs []SortSpec
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(pair, ":", 2)
		field := strings.TrimSpace(parts[0])
		if field == "" {
			continue
		}
		direction := "asc"
		if len(parts) == 2 {
			switch strings.ToLower(strings.TrimSpace(parts[1])) {
			case "", "asc":
			case "desc":
				direction = "desc"
			default:
				continue
			}
		}
		specs = append(specs, SortSpec{Field: field, Direction: direction})
	}
	return specs
}

// parseInclude accepts either a JSON inclusion tree or a plain
// comma-separated relation list. A JSON-looking value that fails to parse
// fails the whole request.
func parseInclude(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		var tree map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &tree); err != nil {
			return nil, &BadParamError{Param: "include", Err: err}
		}
		return tree, nil
	}
	tree := make(map[string]interface{})
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			tree[name] = true
		}
	}
	return tree, nil
}

// parseFilter assembles the filter tree from the JSON "filter" parameter
// plus any non-reserved simple filters.
func parseFilter(params url.Values) (map[string]interface{}, error) {
	var where map[string]interface{}

	if raw := params.Get("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &where); err != nil {
			return nil, &BadParamError{Param: "filter", Err: err}
		}
	}

	for key, values := range params {
		if reservedParams[key] || len(values) == 0 {
			continue
		}
		if where == nil {
			where = make(map[string]interface{})
		}
		where[key] = parseSimpleFilter(values[0])
	}

	return where, nil
}

// Operator suffixes recognized in simple filter values.
var simpleOperators = map[string]bool{
	"gt": true, "gte": true, "lt": true, "lte": true,
	"equals": true, "not": true,
	"contains": true, "startsWith": true, "endsWith": true,
	"in": true, "notIn": true,
	"search": true, "mode": true,
}

// Operators whose value is pattern text and must never be type-coerced.
var stringOperators = map[string]bool{
	"contains": true, "startsWith": true, "endsWith": true,
	"search": true, "mode": true,
}

// parseSimpleFilter converts a "operator:value" (or bare value) parameter
// into an operator map.
func parseSimpleFilter(raw string) map[string]interface{} {
	op := "equals"
	value := raw
	if idx := strings.Index(raw, ":"); idx > 0 {
		if candidate := raw[:idx]; simpleOperators[candidate] {
			op = candidate
			value = raw[idx+1:]
		}
	}

	switch {
	case op == "in" || op == "notIn":
		parts := strings.Split(value, ",")
		coerced := make([]interface{}, 0, len(parts))
		for _, p := range parts {
			coerced = append(coerced, coerceValue(strings.TrimSpace(p)))
		}
		return map[string]interface{}{op: coerced}
	case stringOperators[op]:
		return map[string]interface{}{op: value}
	default:
		return map[string]interface{}{op: coerceValue(value)}
	}
}
