package pgstore

import "strings"

// Irregular plurals
var irregularPlurals = map[string]string{
	"person":    "people",
	"child":     "children",
	"man":       "men",
	"woman":     "women",
	"datum":     "data",
	"medium":    "media",
	"index":     "indices",
	"matrix":    "matrices",
	"analysis":  "analyses",
	"basis":     "bases",
	"criterion": "criteria",
	"leaf":      "leaves",
	"life":      "lives",
	"half":      "halves",
	"hero":      "heroes",
	"echo":      "echoes",
	"series":    "series",
	"species":   "species",
	"status":    "statuses",
	"alias":     "aliases",
	"bus":       "buses",
}

// tableName converts an entity name to its table name: PascalCase to
// snake_case, then pluralized.
//
// Examples:
//
//	User → users
//	OrderItem → order_items
func tableName(entity string) string {
	name := snakeCase(entity)

	if plural, ok := irregularPlurals[name]; ok {
		return plural
	}
	if !strings.HasSuffix(name, "s") {
		name += "s"
	}
	return name
}

// columnName converts a camelCase field name to its snake_case column.
//
// Examples:
//
//	deletedAt → deleted_at
//	authorId → author_id
func columnName(field string) string {
	return snakeCase(field)
}

func snakeCase(s string) string {
	var result []rune
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result = append(result, '_')
		}
		result = append(result, r)
	}
	return strings.ToLower(string(result))
}

// foreignKeyColumn derives the conventional FK column pointing at an
// entity: posts.author_id for relation field "author", comments.post_id
// for a Post parent.
func foreignKeyColumn(name string) string {
	return snakeCase(name) + "_id"
}

// quoteIdent wraps an identifier in double quotes. Plan identifiers have
// already passed policy allow-lists; quoting keeps reserved words working.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}
