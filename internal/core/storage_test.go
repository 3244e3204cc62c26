package core

import (
	"context"
	"path/filepath"
	"testing"

	"familytree/internal/infra/persistence/memory"
	"familytree/internal/infra/persistence/sqlite"
	"familytree/pkg/domain"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		t.Setenv(EnvStorageDriver, "Memory")
		store, err := OpenPersistentStore(ctx, nil)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer func() { _ = store.Close() }()
		mem, ok := store.(*memory.Store)
		if !ok {
			t.Fatalf("expected memory store, got %T", store)
		}
		if len(mem.RulesEngine().Rules()) != 2 {
			t.Fatalf("expected default rules to be installed")
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "people.db")
		t.Setenv(EnvStorageDriver, "")
		t.Setenv(EnvSQLitePath, path)
		store, err := OpenPersistentStore(ctx, domain.NewRulesEngine())
		if err != nil {
			t.Skipf("sqlite unavailable: %v", err)
		}
		defer func() { _ = store.Close() }()
		lite, ok := store.(*sqlite.Store)
		if !ok || lite.Path() != path {
			t.Fatalf("expected sqlite store at %s, got %T", path, store)
		}
		if err := store.Set(ctx, "people/A", domain.RawRecord{"name": "A", "surname": "B"}); err != nil {
			t.Fatalf("set: %v", err)
		}
	})

	t.Run("postgres bad dsn", func(t *testing.T) {
		t.Setenv(EnvStorageDriver, "postgres")
		t.Setenv(EnvPostgresDSN, "postgres://%zz")
		if _, err := OpenPersistentStore(ctx, nil); err == nil {
			t.Fatalf("expected postgres open error")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv(EnvStorageDriver, "etcd")
		if _, err := OpenPersistentStore(ctx, nil); err == nil {
			t.Fatalf("expected unknown driver error")
		}
	})
}
