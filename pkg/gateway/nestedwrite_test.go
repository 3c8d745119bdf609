package gateway

import (
	"errors"
	"testing"
)

// ============================================================
// TEST HELPERS
// ============================================================

// Helper: User ⇄ Post descriptors with relation metadata
func userDescriptor() *ModelDescriptor {
	post := &ModelDescriptor{
		Name:           "Post",
		RelationFields: []string{"author", "comments"},
	}
	user := &ModelDescriptor{
		Name:           "User",
		RelationFields: []string{"posts", "profile"},
		Relations: map[string]*RelationMeta{
			"posts":   {Target: post, Cardinality: CardinalityMany},
			"profile": {Cardinality: CardinalityOne},
		},
	}
	post.Relations = map[string]*RelationMeta{
		"author": {Target: user, Cardinality: CardinalityOne},
	}
	return user
}

func deepPolicy(depth int) *SecurityPolicy {
	policy := DefaultPolicy()
	policy.MaxNestedDepth = depth
	return policy
}

// ============================================================
// SCALARS
// ============================================================

func TestNestedWrite_ScalarsPassThrough(t *testing.T) {
	payload := map[string]interface{}{
		"email": "ana@mail.com",
		"age":   int64(30),
		"bio":   nil,
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}

	if tree["email"] != "ana@mail.com" {
		t.Errorf("Expected email to pass through, got %v", tree["email"])
	}
	if v, present := tree["bio"]; !present || v != nil {
		t.Error("Null scalar is a legitimate assignment and must pass through")
	}
}

func TestNestedWrite_NullRelationEmitsNothing(t *testing.T) {
	payload := map[string]interface{}{
		"email": "ana@mail.com",
		"posts": nil,
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}
	if _, present := tree["posts"]; present {
		t.Error("Null relation should emit no operation at all")
	}
}

// ============================================================
// CREATE MODE
// ============================================================

func TestNestedWrite_ImplicitCreate(t *testing.T) {
	payload := map[string]interface{}{
		"email": "ana@mail.com",
		"posts": map[string]interface{}{"title": "Hello"},
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}

	node, ok := tree["posts"].(WriteTree)
	if !ok {
		t.Fatalf("Expected WriteTree node, got %T", tree["posts"])
	}
	created, ok := node["create"].(WriteTree)
	if !ok {
		t.Fatalf("Bare object should normalize to create, got %v", node)
	}
	if created["title"] != "Hello" {
		t.Errorf("Expected title in created payload, got %v", created)
	}
}

func TestNestedWrite_ExplicitConnect(t *testing.T) {
	payload := map[string]interface{}{
		"posts": map[string]interface{}{
			"connect": map[string]interface{}{"id": "p1"},
		},
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}

	node := tree["posts"].(WriteTree)
	connect, ok := node["connect"].(map[string]interface{})
	if !ok || connect["id"] != "p1" {
		t.Errorf("Expected connect payload preserved, got %v", node)
	}
	if _, present := node["create"]; present {
		t.Error("Explicit connect must not synthesize a create")
	}
}

func TestNestedWrite_CreateAndConnectTogether(t *testing.T) {
	payload := map[string]interface{}{
		"posts": map[string]interface{}{
			"create":  map[string]interface{}{"title": "New"},
			"connect": map[string]interface{}{"id": "p1"},
		},
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}

	node := tree["posts"].(WriteTree)
	if _, present := node["create"]; !present {
		t.Error("Expected create op")
	}
	if _, present := node["connect"]; !present {
		t.Error("Expected connect op")
	}
}

func TestNestedWrite_DisconnectIgnoredInCreateMode(t *testing.T) {
	// Create mode recognizes only create and connect; an object carrying
	// just a disconnect falls through to the implicit-create path.
	payload := map[string]interface{}{
		"posts": map[string]interface{}{
			"disconnect": map[string]interface{}{"id": "p1"},
		},
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}

	node := tree["posts"].(WriteTree)
	if _, present := node["create"]; !present {
		t.Errorf("Expected fallback to implicit create, got %v", node)
	}
}

// ============================================================
// UPDATE MODE
// ============================================================

func TestNestedWrite_UpdateExplicitOps(t *testing.T) {
	payload := map[string]interface{}{
		"posts": map[string]interface{}{
			"connect":    []interface{}{map[string]interface{}{"id": "p1"}},
			"disconnect": []interface{}{map[string]interface{}{"id": "p2"}},
			"delete":     []interface{}{map[string]interface{}{"id": "p3"}},
		},
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), true)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}

	node := tree["posts"].(WriteTree)
	for _, op := range []string{"connect", "disconnect", "delete"} {
		if _, present := node[op]; !present {
			t.Errorf("Expected %s op in update node, got %v", op, node)
		}
	}
}

func TestNestedWrite_UpdateBareObjectBecomesUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"profile": map[string]interface{}{"bio": "updated"},
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), true)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}

	node := tree["profile"].(WriteTree)
	updated, ok := node["update"].(WriteTree)
	if !ok {
		t.Fatalf("Bare object in update mode should become an update op, got %v", node)
	}
	if updated["bio"] != "updated" {
		t.Errorf("Expected bio in update payload, got %v", updated)
	}
}

func TestNestedWrite_UpdateNestedCreateTranslated(t *testing.T) {
	payload := map[string]interface{}{
		"posts": map[string]interface{}{
			"create": map[string]interface{}{
				"title": "New",
			},
		},
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(2), true)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}

	node := tree["posts"].(WriteTree)
	created, ok := node["create"].(WriteTree)
	if !ok || created["title"] != "New" {
		t.Errorf("Expected translated create payload, got %v", node)
	}
}

// ============================================================
// DEPTH
// ============================================================

func TestNestedWrite_DepthOneAllowsOneHop(t *testing.T) {
	payload := map[string]interface{}{
		"posts": map[string]interface{}{"title": "Hello"},
	}
	if _, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false); err != nil {
		t.Errorf("One relation hop should fit in depth 1, got %v", err)
	}
}

func TestNestedWrite_SecondHopExceedsDepthOne(t *testing.T) {
	payload := map[string]interface{}{
		"posts": map[string]interface{}{
			"title": "Hello",
			"author": map[string]interface{}{
				"name": "Ana",
			},
		},
	}
	_, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false)
	if err == nil {
		t.Fatal("Second relation hop should exceed depth 1")
	}

	var depthErr *NestedDepthError
	if !errors.As(err, &depthErr) {
		t.Fatalf("Expected NestedDepthError, got %T", err)
	}
	if depthErr.Field != "author" {
		t.Errorf("Expected offending field 'author', got '%s'", depthErr.Field)
	}
	if depthErr.Code() != "NESTED_DEPTH_EXCEEDED" {
		t.Errorf("Unexpected code %s", depthErr.Code())
	}
}

func TestNestedWrite_SecondHopAllowedAtDepthTwo(t *testing.T) {
	payload := map[string]interface{}{
		"posts": map[string]interface{}{
			"title": "Hello",
			"author": map[string]interface{}{
				"name": "Ana",
			},
		},
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(2), false)
	if err != nil {
		t.Fatalf("Depth 2 should allow two hops, got %v", err)
	}

	posts := tree["posts"].(WriteTree)
	inner := posts["create"].(WriteTree)
	author, ok := inner["author"].(WriteTree)
	if !ok {
		t.Fatalf("Expected nested author node, got %v", inner)
	}
	if _, present := author["create"]; !present {
		t.Errorf("Expected implicit create on inner relation, got %v", author)
	}
}

func TestNestedWrite_ScalarFieldsDoNotConsumeDepth(t *testing.T) {
	// A relation's own scalar fields are free; only relation hops count.
	payload := map[string]interface{}{
		"posts": map[string]interface{}{
			"title":   "Hello",
			"body":    "text",
			"ranking": int64(4),
		},
	}
	if _, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false); err != nil {
		t.Errorf("Scalar sub-fields must not consume depth budget, got %v", err)
	}
}

// ============================================================
// SHAPES WITHOUT RELATION METADATA
// ============================================================

func TestNestedWrite_ArrayValuePassesThrough(t *testing.T) {
	payload := map[string]interface{}{
		"posts": []interface{}{map[string]interface{}{"title": "a"}},
	}
	tree, err := TranslateNestedWrite(payload, userDescriptor(), deepPolicy(1), false)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}
	if _, ok := tree["posts"].([]interface{}); !ok {
		t.Errorf("Array relation value should pass through untouched, got %T", tree["posts"])
	}
}

func TestNestedWrite_NilDescriptorTreatsAllAsScalars(t *testing.T) {
	payload := map[string]interface{}{
		"anything": map[string]interface{}{"deep": map[string]interface{}{"deeper": true}},
	}
	tree, err := TranslateNestedWrite(payload, nil, deepPolicy(1), false)
	if err != nil {
		t.Fatalf("TranslateNestedWrite failed: %v", err)
	}
	if _, ok := tree["anything"].(map[string]interface{}); !ok {
		t.Errorf("Without a descriptor nothing is a relation, got %T", tree["anything"])
	}
}
