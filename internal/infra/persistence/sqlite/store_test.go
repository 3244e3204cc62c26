package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"familytree/internal/infra/persistence/memory"
	"familytree/pkg/domain"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	return store
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tree.db")
	store := openStore(t, path)
	ctx := context.Background()

	if err := store.Set(ctx, "people/A", domain.RawRecord{"name": "Jan", "surname": "Kowalski", "orderId": 0}); err != nil {
		t.Fatalf("set A: %v", err)
	}
	err := store.Update(ctx, "people", map[string]any{
		"B":          domain.RawRecord{"name": "Ewa", "surname": "Kowalska", "orderId": 10},
		"B/parentId": "A",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("path = %s", store.Path())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded := openStore(t, path)
	t.Cleanup(func() { _ = reloaded.Close() })
	people := reloaded.Collection("people")
	if len(people) != 2 || people["B"]["parentId"] != "A" || people["B"]["orderId"] != 10.0 {
		t.Fatalf("unexpected reloaded state: %#v", people)
	}

	ctxSub, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := reloaded.Subscribe(ctxSub, "people")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	select {
	case snap := <-ch:
		if len(snap) != 2 {
			t.Fatalf("expected persisted state on subscribe, got %d records", len(snap))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no initial snapshot")
	}
}

func TestSQLiteStoreFailedPersistDoesNotCommit(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "tree.db"))
	ctx := context.Background()
	if err := store.Set(ctx, "people/A", domain.RawRecord{"name": "Jan"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
	if err := store.Set(ctx, "people/B", domain.RawRecord{"name": "Ewa"}); err == nil {
		t.Fatalf("expected persist error on closed database")
	}
	if _, ok := store.Collection("people")["B"]; ok {
		t.Fatalf("failed persist must not reach the in-memory state")
	}
	_ = store.Store.Close()
}

func TestSQLiteStoreRejectsCorruptPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.db")
	store := openStore(t, path)
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('people', ?)`, []byte("{not json")); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := NewStore(path, nil); err == nil {
		t.Fatalf("expected decode error for corrupt payload")
	}
}

func TestSQLiteStoreAppliesMemoryOptions(t *testing.T) {
	var warned int
	engine := domain.NewRulesEngine()
	store, err := NewStore(filepath.Join(t.TempDir(), "tree.db"), engine,
		memory.WithViolationHandler(func(context.Context, domain.Result) { warned++ }))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if store.RulesEngine() != engine {
		t.Fatalf("expected provided engine")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Set(context.Background(), "people/A", domain.RawRecord{"name": "x"}); !errors.Is(err, memory.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if warned != 0 {
		t.Fatalf("unexpected warnings")
	}
}
