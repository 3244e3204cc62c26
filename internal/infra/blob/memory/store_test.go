package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"familytree/internal/blob/core"
)

func TestStoreMissingKeys(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false, got %v %v", ok, err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	info, err := store.Put(ctx, "snapshots/people/a.json", bytes.NewReader([]byte(`{"A":{}}`)), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"records": "1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 8 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "snapshots/people/a.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, "../escape", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}

	got, rc, err := store.Get(ctx, "snapshots/people/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"A":{}}` || got.Metadata["records"] != "1" {
		t.Fatalf("unexpected get %q %+v", body, got)
	}
	got.Metadata["records"] = "mutated"
	if head, _ := store.Head(ctx, "snapshots/people/a.json"); head.Metadata["records"] != "1" {
		t.Fatalf("metadata must be copied")
	}

	if _, err := store.Put(ctx, "other/b", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	if list, err := store.List(ctx, "snapshots/"); err != nil || len(list) != 1 {
		t.Fatalf("list prefix: %v %d", err, len(list))
	}
	if list, err := store.List(ctx, ""); err != nil || len(list) != 2 || list[0].Key != "other/b" {
		t.Fatalf("list all: %v %+v", err, list)
	}
	if ok, err := store.Delete(ctx, "other/b"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
}
