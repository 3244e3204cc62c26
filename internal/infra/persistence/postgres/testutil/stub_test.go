package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubConnStagesWritesUntilCommit(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	_, err = conn.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES($1,$2)", []driver.NamedValue{
		{Value: "people"},
		{Value: []byte(`{}`)},
	})
	if err != nil {
		t.Fatalf("ExecContext insert: %v", err)
	}
	if len(conn.Snapshot()) != 0 {
		t.Fatalf("write visible before commit")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if string(conn.Snapshot()["people"]) != `{}` {
		t.Fatalf("expected committed row, got %v", conn.Snapshot())
	}

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "people" {
		t.Fatalf("unexpected row values: %v", dest)
	}
}

func TestStubConnRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES($1,$2)", []driver.NamedValue{{Value: "x"}, {Value: []byte("1")}}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if len(conn.Snapshot()) != 0 {
		t.Fatalf("rollback must discard staged rows")
	}
}
