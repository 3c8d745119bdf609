package pgstore

import (
	"fmt"
	"sort"
	"strings"
)

// argList collects positional query arguments.
type argList struct {
	values []interface{}
}

func (a *argList) add(v interface{}) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

// whereSQL renders a filter tree into a WHERE fragment. Keys are emitted
// in sorted order so generated SQL is deterministic for identical input.
func whereSQL(where map[string]interface{}, args *argList) (string, error) {
	if len(where) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	for _, key := range keys {
		value := where[key]
		switch key {
		case "AND", "OR":
			group, err := groupSQL(value, key, args)
			if err != nil {
				return "", err
			}
			if group != "" {
				clauses = append(clauses, group)
			}
		case "NOT":
			inner, ok := value.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("NOT group must be a filter object")
			}
			sql, err := whereSQL(inner, args)
			if err != nil {
				return "", err
			}
			if sql != "" {
				clauses = append(clauses, "NOT ("+sql+")")
			}
		default:
			clause, err := conditionSQL(key, value, args)
			if err != nil {
				return "", err
			}
			if clause != "" {
				clauses = append(clauses, clause)
			}
		}
	}
	return strings.Join(clauses, " AND "), nil
}

func groupSQL(value interface{}, op string, args *argList) (string, error) {
	var members []map[string]interface{}
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("%s group members must be filter objects", op)
			}
			members = append(members, m)
		}
	case map[string]interface{}:
		members = append(members, v)
	default:
		return "", fmt.Errorf("%s group must be a list of filter objects", op)
	}

	var parts []string
	for _, m := range members {
		sql, err := whereSQL(m, args)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, "("+sql+")")
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")", nil
}

// conditionSQL renders one field condition. The value is an operator map
// or a bare value treated as equality.
func conditionSQL(field string, value interface{}, args *argList) (string, error) {
	column := quoteIdent(columnName(field))

	spec, ok := value.(map[string]interface{})
	if !ok {
		if value == nil {
			return column + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", column, args.add(value)), nil
	}

	insensitive := false
	if mode, ok := spec["mode"].(string); ok && mode == "insensitive" {
		insensitive = true
	}
	like := "LIKE"
	if insensitive {
		like = "ILIKE"
	}

	ops := make([]string, 0, len(spec))
	for op := range spec {
		if op != "mode" {
			ops = append(ops, op)
		}
	}
	sort.Strings(ops)

	var clauses []string
	for _, op := range ops {
		operand := spec[op]
		switch op {
		case "equals":
			if operand == nil {
				clauses = append(clauses, column+" IS NULL")
			} else {
				clauses = append(clauses, fmt.Sprintf("%s = %s", column, args.add(operand)))
			}
		case "not":
			if operand == nil {
				clauses = append(clauses, column+" IS NOT NULL")
			} else {
				clauses = append(clauses, fmt.Sprintf("%s <> %s", column, args.add(operand)))
			}
		case "gt":
			clauses = append(clauses, fmt.Sprintf("%s > %s", column, args.add(operand)))
		case "gte":
			clauses = append(clauses, fmt.Sprintf("%s >= %s", column, args.add(operand)))
		case "lt":
			clauses = append(clauses, fmt.Sprintf("%s < %s", column, args.add(operand)))
		case "lte":
			clauses = append(clauses, fmt.Sprintf("%s <= %s", column, args.add(operand)))
		case "contains":
			clauses = append(clauses, fmt.Sprintf("%s %s '%%' || %s || '%%'", column, like, args.add(operand)))
		case "startsWith":
			clauses = append(clauses, fmt.Sprintf("%s %s %s || '%%'", column, like, args.add(operand)))
		case "endsWith":
			clauses = append(clauses, fmt.Sprintf("%s %s '%%' || %s", column, like, args.add(operand)))
		case "search":
			clauses = append(clauses, fmt.Sprintf("%s ILIKE '%%' || %s || '%%'", column, args.add(operand)))
		case "in":
			clauses = append(clauses, fmt.Sprintf("%s = ANY(%s)", column, args.add(toSlice(operand))))
		case "notIn":
			clauses = append(clauses, fmt.Sprintf("NOT (%s = ANY(%s))", column, args.add(toSlice(operand))))
		default:
			return "", fmt.Errorf("unsupported filter operator '%s'", op)
		}
	}
	return strings.Join(clauses, " AND "), nil
}

func toSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return []interface{}{v}
}
