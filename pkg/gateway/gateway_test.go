package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

// ============================================================
// TEST FAKES
// ============================================================

// fakeClient is an in-memory EntityClient recording every call.
type fakeClient struct {
	mu sync.Mutex

	rows      []Row
	byID      map[string]Row
	createErr error
	findErr   error

	created []WriteTree
	updated map[string]WriteTree
	deleted []interface{}
	plans   []*QueryPlan
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		byID:    make(map[string]Row),
		updated: make(map[string]WriteTree),
	}
}

func (c *fakeClient) FindMany(ctx context.Context, plan *QueryPlan) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans = append(c.plans, plan)
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.rows, nil
}

func (c *fakeClient) FindByID(ctx context.Context, id interface{}) (Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byID[fmt.Sprintf("%v", id)], nil
}

func (c *fakeClient) Create(ctx context.Context, tree WriteTree) (Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created = append(c.created, tree)
	return Row{"id": fmt.Sprintf("new-%d", len(c.created))}, nil
}

func (c *fakeClient) Update(ctx context.Context, id interface{}, tree WriteTree) (Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fmt.Sprintf("%v", id)
	if _, ok := c.byID[key]; !ok {
		return nil, nil
	}
	c.updated[key] = tree
	return c.byID[key], nil
}

func (c *fakeClient) Delete(ctx context.Context, id interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, id)
	return nil
}

func (c *fakeClient) Count(ctx context.Context, where map[string]interface{}) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.rows)), nil
}

// txFakeClient adds transaction capability; failAt aborts the batch at
// that item index.
type txFakeClient struct {
	*fakeClient
	failAt int
	inTx   bool
}

func (c *txFakeClient) WithTx(tx pgx.Tx) EntityClient {
	return &txFakeClient{fakeClient: c.fakeClient, failAt: c.failAt, inTx: true}
}

func (c *txFakeClient) Create(ctx context.Context, tree WriteTree) (Row, error) {
	c.mu.Lock()
	already := len(c.created)
	c.mu.Unlock()
	if c.failAt >= 0 && already == c.failAt {
		return nil, errors.New("item rejected")
	}
	return c.fakeClient.Create(ctx, tree)
}

func testGateway(client EntityClient, policy *SecurityPolicy) (*Gateway, *Registry) {
	registry := NewRegistry()
	entry := &Entry{
		Descriptor: &ModelDescriptor{Name: "User", RelationFields: []string{"posts"}},
		Policy:     policy,
		Client:     client,
	}
	if err := registry.Register(entry); err != nil {
		panic(err)
	}
	runner := NewTxRunner(&fakeBeginner{})
	runner.sleep = func(time.Duration) {}
	return New(registry, runner, nil), registry
}

// ============================================================
// LIST
// ============================================================

func TestGateway_ListAppliesPolicy(t *testing.T) {
	client := newFakeClient()
	g, _ := testGateway(client, openPolicy())

	_, err := g.List(context.Background(), "User", url.Values{"status": {"active"}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	// Not-allowed field fails before the client is touched.
	before := len(client.plans)
	_, err = g.List(context.Background(), "User", url.Values{"password": {"x"}})
	var naErr *NotAllowedError
	if !errors.As(err, &naErr) {
		t.Fatalf("Expected NotAllowedError, got %v", err)
	}
	if len(client.plans) != before {
		t.Error("A rejected request must not reach the store")
	}
}

func TestGateway_ListResultMetadata(t *testing.T) {
	client := newFakeClient()
	client.rows = []Row{{"id": "1"}, {"id": "2"}}
	g, _ := testGateway(client, openPolicy())

	result, err := g.List(context.Background(), "User", url.Values{"page": {"2"}, "limit": {"10"}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if result.Count() != 2 {
		t.Errorf("Expected 2 rows, got %d", result.Count())
	}
	if result.Skip != 10 || result.Take != 10 {
		t.Errorf("Expected skip/take 10/10, got %d/%d", result.Skip, result.Take)
	}
	if result.Total != 2 {
		t.Errorf("Expected total 2, got %d", result.Total)
	}
}

func TestGateway_ListUnknownEntity(t *testing.T) {
	g, _ := testGateway(newFakeClient(), openPolicy())
	_, err := g.List(context.Background(), "Ghost", url.Values{})
	if err == nil {
		t.Fatal("Expected unknown entity to fail")
	}
}

// ============================================================
// GET / CREATE / UPDATE / DELETE
// ============================================================

func TestGateway_GetNotFound(t *testing.T) {
	g, _ := testGateway(newFakeClient(), openPolicy())

	_, err := g.Get(context.Background(), "User", "missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
	if nf.Entity != "User" {
		t.Errorf("Expected entity User, got %s", nf.Entity)
	}
}

func TestGateway_CreateTranslatesNestedWrites(t *testing.T) {
	client := newFakeClient()
	g, _ := testGateway(client, openPolicy())

	_, err := g.CreateOne(context.Background(), "User", map[string]interface{}{
		"email": "ana@mail.com",
		"posts": map[string]interface{}{"title": "Hello"},
	})
	if err != nil {
		t.Fatalf("CreateOne failed: %v", err)
	}

	tree := client.created[0]
	node, ok := tree["posts"].(WriteTree)
	if !ok {
		t.Fatalf("Expected normalized relation node, got %T", tree["posts"])
	}
	if _, present := node["create"]; !present {
		t.Errorf("Expected implicit create, got %v", node)
	}
}

func TestGateway_CreateDepthOverflowFailsBeforeStore(t *testing.T) {
	client := newFakeClient()
	policy := openPolicy()
	policy.MaxNestedDepth = 1
	g, registry := testGateway(client, policy)

	// Give the relation a target so the second hop is recognized.
	entry, _ := registry.Resolve("User")
	entry.Descriptor.Relations = map[string]*RelationMeta{
		"posts": {Target: &ModelDescriptor{
			Name:           "Post",
			RelationFields: []string{"author"},
		}, Cardinality: CardinalityMany},
	}

	_, err := g.CreateOne(context.Background(), "User", map[string]interface{}{
		"posts": map[string]interface{}{
			"author": map[string]interface{}{"name": "x"},
		},
	})
	var depthErr *NestedDepthError
	if !errors.As(err, &depthErr) {
		t.Fatalf("Expected NestedDepthError, got %v", err)
	}
	if len(client.created) != 0 {
		t.Error("Depth overflow must fail before any store access")
	}
}

func TestGateway_UpdateNotFound(t *testing.T) {
	g, _ := testGateway(newFakeClient(), openPolicy())

	_, err := g.UpdateOne(context.Background(), "User", "missing", map[string]interface{}{"name": "x"})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestGateway_DeleteHard(t *testing.T) {
	client := newFakeClient()
	g, _ := testGateway(client, openPolicy())

	if err := g.DeleteOne(context.Background(), "User", "u1"); err != nil {
		t.Fatalf("DeleteOne failed: %v", err)
	}
	if len(client.deleted) != 1 || client.deleted[0] != "u1" {
		t.Errorf("Expected hard delete of u1, got %v", client.deleted)
	}
}

func TestGateway_DeleteSoftStampsMarker(t *testing.T) {
	client := newFakeClient()
	client.byID["u1"] = Row{"id": "u1"}
	policy := openPolicy()
	policy.SoftDelete = true
	g, _ := testGateway(client, policy)

	if err := g.DeleteOne(context.Background(), "User", "u1"); err != nil {
		t.Fatalf("DeleteOne failed: %v", err)
	}

	if len(client.deleted) != 0 {
		t.Error("Soft delete must not remove the row")
	}
	tree, ok := client.updated["u1"]
	if !ok {
		t.Fatal("Expected an update carrying the marker")
	}
	if _, ok := tree[SoftDeleteField].(time.Time); !ok {
		t.Errorf("Expected %s timestamp, got %v", SoftDeleteField, tree[SoftDeleteField])
	}
}

// ============================================================
// BULK
// ============================================================

func bulkItems(n int) []map[string]interface{} {
	items := make([]map[string]interface{}, n)
	for i := range items {
		items[i] = map[string]interface{}{"email": fmt.Sprintf("u%d@mail.com", i)}
	}
	return items
}

func TestGateway_BulkCreatePartialSuccess(t *testing.T) {
	client := newFakeClient()
	g, _ := testGateway(client, openPolicy())

	result, err := g.BulkCreate(context.Background(), "User", bulkItems(5), false)
	if err != nil {
		t.Fatalf("BulkCreate failed: %v", err)
	}

	if result.Succeeded != 5 || result.Failed != 0 {
		t.Errorf("Expected 5/0, got %d/%d", result.Succeeded, result.Failed)
	}
	if len(result.Items) != 5 {
		t.Errorf("Expected 5 item results, got %d", len(result.Items))
	}
}

func TestGateway_BulkCreatePartialFailuresRecorded(t *testing.T) {
	client := newFakeClient()
	client.createErr = errors.New("store rejected")
	g, _ := testGateway(client, openPolicy())

	result, err := g.BulkCreate(context.Background(), "User", bulkItems(3), false)
	if err != nil {
		t.Fatalf("Partial-success bulk must not fail as a whole: %v", err)
	}

	if result.Failed != 3 || result.Succeeded != 0 {
		t.Errorf("Expected 0/3, got %d/%d", result.Succeeded, result.Failed)
	}
	for _, item := range result.Items {
		if item.Err == nil {
			t.Errorf("item %d: expected recorded error", item.Index)
		}
	}
}

func TestGateway_BulkCreateAtomicAllOrNothing(t *testing.T) {
	client := &txFakeClient{fakeClient: newFakeClient(), failAt: 2}
	g, _ := testGateway(client, openPolicy())

	_, err := g.BulkCreate(context.Background(), "User", bulkItems(5), true)
	if err == nil {
		t.Fatal("Atomic bulk must fail as a whole when one item fails")
	}
}

func TestGateway_BulkCreateAtomicSucceeds(t *testing.T) {
	client := &txFakeClient{fakeClient: newFakeClient(), failAt: -1}
	g, _ := testGateway(client, openPolicy())

	result, err := g.BulkCreate(context.Background(), "User", bulkItems(4), true)
	if err != nil {
		t.Fatalf("BulkCreate failed: %v", err)
	}
	if result.Succeeded != 4 {
		t.Errorf("Expected 4 succeeded, got %d", result.Succeeded)
	}
}

func TestGateway_BulkCreateAtomicRequiresTxCapability(t *testing.T) {
	g, _ := testGateway(newFakeClient(), openPolicy())

	_, err := g.BulkCreate(context.Background(), "User", bulkItems(1), true)
	if err == nil {
		t.Fatal("Plain clients cannot serve atomic bulk")
	}
}

func TestGateway_BulkCreateTranslationFailureAbortsBothModes(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		client := &txFakeClient{fakeClient: newFakeClient(), failAt: -1}
		policy := openPolicy()
		policy.MaxNestedDepth = 1
		g, registry := testGateway(client, policy)
		entry, _ := registry.Resolve("User")
		entry.Descriptor.Relations = map[string]*RelationMeta{
			"posts": {Target: &ModelDescriptor{Name: "Post", RelationFields: []string{"author"}}},
		}

		items := bulkItems(2)
		items[1]["posts"] = map[string]interface{}{
			"author": map[string]interface{}{"name": "x"},
		}

		_, err := g.BulkCreate(context.Background(), "User", items, atomic)
		if err == nil {
			t.Errorf("atomic=%v: expected translation failure to abort the batch", atomic)
		}
		if len(client.created) != 0 {
			t.Errorf("atomic=%v: nothing may reach the store, got %d creates", atomic, len(client.created))
		}
	}
}

// ============================================================
// RAW QUERY WIRING
// ============================================================

func TestGateway_RawQueryWithoutExecutor(t *testing.T) {
	g, _ := testGateway(newFakeClient(), openPolicy())
	_, err := g.RawQuery(context.Background(), "User", "SELECT * FROM users")
	if err == nil {
		t.Fatal("Expected missing executor to fail")
	}
}
