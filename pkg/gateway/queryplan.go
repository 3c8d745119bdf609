package gateway

// SortSpec is one field→direction pair of a query ordering.
type SortSpec struct {
	Field     string
	Direction string // "asc" or "desc"
}

// QueryPlan is the validated, bounded representation of one read request.
// Every identifier appearing anywhere in a plan has passed the entity's
// SecurityPolicy allow-lists (the injected soft-delete marker excepted).
// Plans are built fresh per request and discarded after execution.
type QueryPlan struct {
	Skip int
	Take int

	// OrderBy preserves the caller's ordering of sort pairs.
	OrderBy []SortSpec

	// Select lists the projected field names. Empty means all fields.
	Select []string

	// Include is the relation inclusion tree: relation name -> true, or a
	// nested map carrying an "include" sub-tree.
	Include map[string]interface{}

	// Where is the filter tree. Keys are field names mapping to
	// operator->value maps, or the boolean group keys AND / OR / NOT.
	Where map[string]interface{}
}

// ValidateQueryPlan re-checks a fully built plan against a policy. This is
// the hard-error path for plans handed over explicitly rather than derived
// from raw parameters: an over-cap Take is rejected here, never clamped.
func ValidateQueryPlan(plan *QueryPlan, policy *SecurityPolicy) error {
	if err := policy.CheckLimit(plan.Take); err != nil {
		return err
	}
	if err := validateWhere(plan.Where, policy); err != nil {
		return err
	}
	for _, s := range plan.OrderBy {
		if !policy.CanSort(s.Field) {
			return &NotAllowedError{Op: "Sorting", Field: s.Field}
		}
	}
	for _, f := range plan.Select {
		if !policy.CanSelect(f) {
			return &NotAllowedError{Op: "Selecting", Field: f}
		}
	}
	return validateInclude(plan.Include, policy, 1)
}

// validateWhere walks the filter tree recursing through boolean groups.
func validateWhere(where map[string]interface{}, policy *SecurityPolicy) error {
	for key, value := range where {
		switch key {
		case "AND", "OR":
			items, ok := value.([]interface{})
			if !ok {
				// A single group object is accepted as a one-element list.
				if m, isMap := value.(map[string]interface{}); isMap {
					if err := validateWhere(m, policy); err != nil {
						return err
					}
					continue
				}
				return &BadParamError{Param: "filter", Err: errNotAGroup(key)}
			}
			for _, item := range items {
				m, isMap := item.(map[string]interface{})
				if !isMap {
					return &BadParamError{Param: "filter", Err: errNotAGroup(key)}
				}
				if err := validateWhere(m, policy); err != nil {
					return err
				}
			}
		case "NOT":
			m, isMap := value.(map[string]interface{})
			if !isMap {
				return &BadParamError{Param: "filter", Err: errNotAGroup(key)}
			}
			if err := validateWhere(m, policy); err != nil {
				return err
			}
		default:
			if !policy.CanFilter(key) {
				return &NotAllowedError{Op: "Filtering", Field: key}
			}
		}
	}
	return nil
}

// validateInclude checks an inclusion tree. The depth bound is checked on
// entry, before descending further.
func validateInclude(include map[string]interface{}, policy *SecurityPolicy, depth int) error {
	if len(include) == 0 {
		return nil
	}
	if depth > policy.MaxIncludeDepth {
		return &IncludeDepthError{Max: policy.MaxIncludeDepth}
	}
	for name, value := range include {
		if !policy.CanInclude(name) {
			return &NotAllowedError{Op: "Including", Field: name}
		}
		nested, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		if sub, ok := nested["include"].(map[string]interface{}); ok {
			if err := validateInclude(sub, policy, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

type groupShapeError struct{ key string }

func (e *groupShapeError) Error() string {
	return "boolean group '" + e.key + "' must contain filter objects"
}

func errNotAGroup(key string) error { return &groupShapeError{key: key} }
