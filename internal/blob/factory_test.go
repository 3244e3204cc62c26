package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv(EnvDriver, "memory")
	store, err := Open(ctx)
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("memory: %v %v", store, err)
	}

	root := filepath.Join(t.TempDir(), "archives")
	t.Setenv(EnvDriver, "")
	t.Setenv(EnvFSRoot, root)
	store, err = Open(ctx)
	if err != nil || store.Driver() != DriverFilesystem {
		t.Fatalf("fs default: %v %v", store, err)
	}
	if _, err := store.Put(ctx, "k.json", bytes.NewReader([]byte("{}")), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k.json", bytes.NewReader([]byte("{}")), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	t.Setenv(EnvDriver, "s3")
	t.Setenv("FAMILYTREE_BLOB_S3_BUCKET", "")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected s3 bucket error")
	}

	t.Setenv(EnvDriver, "ftp")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestMockS3ImplementsStore(t *testing.T) {
	store := NewMockS3ForTests()
	if store.Driver() != DriverS3 {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	if _, err := store.Head(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
