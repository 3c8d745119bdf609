package pgstore

import "testing"

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"User":      "users",
		"Post":      "posts",
		"OrderItem": "order_items",
		"Person":    "people",
		"Child":     "children",
		"Series":    "series",
		"Status":    "statuses",
		"Address":   "address", // already ends in s; left alone
	}
	for entity, want := range cases {
		if got := tableName(entity); got != want {
			t.Errorf("tableName(%s): expected %s, got %s", entity, want, got)
		}
	}
}

func TestColumnName(t *testing.T) {
	cases := map[string]string{
		"email":     "email",
		"deletedAt": "deleted_at",
		"authorId":  "author_id",
		"id":        "id",
	}
	for field, want := range cases {
		if got := columnName(field); got != want {
			t.Errorf("columnName(%s): expected %s, got %s", field, want, got)
		}
	}
}

func TestForeignKeyColumn(t *testing.T) {
	if got := foreignKeyColumn("author"); got != "author_id" {
		t.Errorf("Expected author_id, got %s", got)
	}
	if got := foreignKeyColumn("parentTask"); got != "parent_task_id" {
		t.Errorf("Expected parent_task_id, got %s", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent("order"); got != `"order"` {
		t.Errorf("Expected quoted reserved word, got %s", got)
	}
	// Embedded quotes are removed, not escaped.
	if got := quoteIdent(`na"me`); got != `"name"` {
		t.Errorf("Expected embedded quote stripped, got %s", got)
	}
}
