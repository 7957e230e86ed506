package storage

import (
	"context"
	"testing"

	"github.com/mantisdb/livequery/rel"
)

func TestCommitAndBeginSnapshot(t *testing.T) {
	ctx := context.Background()
	e := NewEngine("test")
	id, err := e.CreateTable(rel.NewHeader("orders", "id", "customer_id"))
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	if _, err := e.Commit(ctx, id, []TableOp{
		{OpType: OpInsert, Row: rel.NewRow(int64(1), int64(3))},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	iter, err := tx.Iter(ctx, id)
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	row, ok, err := iter.Next()
	if err != nil || !ok {
		t.Fatalf("expected one row, got ok=%v err=%v", ok, err)
	}
	if row.Values[0] != int64(1) {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestBeginSnapshotIsolatedFromLaterCommits(t *testing.T) {
	ctx := context.Background()
	e := NewEngine("test")
	id, _ := e.CreateTable(rel.NewHeader("orders", "id"))
	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if _, err := e.Commit(ctx, id, []TableOp{{OpType: OpInsert, Row: rel.NewRow(int64(1))}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	iter, err := tx.Iter(ctx, id)
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	_, ok, err := iter.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ok {
		t.Fatalf("expected the pre-existing snapshot to not observe a commit made after Begin")
	}
}

func TestCommitDeleteRemovesMatchingRow(t *testing.T) {
	ctx := context.Background()
	e := NewEngine("test")
	id, _ := e.CreateTable(rel.NewHeader("orders", "id"))
	if _, err := e.Commit(ctx, id, []TableOp{{OpType: OpInsert, Row: rel.NewRow(int64(1))}}); err != nil {
		t.Fatalf("insert commit: %v", err)
	}
	if _, err := e.Commit(ctx, id, []TableOp{{OpType: OpDelete, Row: rel.NewRow(int64(1))}}); err != nil {
		t.Fatalf("delete commit: %v", err)
	}
	tx, _ := e.Begin(ctx)
	iter, _ := tx.Iter(ctx, id)
	_, ok, _ := iter.Next()
	if ok {
		t.Fatalf("expected the table to be empty after deleting its only row")
	}
}

func TestIndexSeekRequiresRegisteredIndex(t *testing.T) {
	ctx := context.Background()
	e := NewEngine("test")
	id, _ := e.CreateTable(rel.NewHeader("customers", "id"))
	tx, _ := e.Begin(ctx)
	if _, err := tx.IndexSeek(ctx, id, "id", int64(1)); err == nil {
		t.Fatalf("expected IndexSeek to fail before CreateIndex was called")
	}
	if err := e.CreateIndex(id, "id"); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if _, err := e.Commit(ctx, id, []TableOp{{OpType: OpInsert, Row: rel.NewRow(int64(1))}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	tx2, _ := e.Begin(ctx)
	iter, err := tx2.IndexSeek(ctx, id, "id", int64(1))
	if err != nil {
		t.Fatalf("index seek: %v", err)
	}
	_, ok, _ := iter.Next()
	if !ok {
		t.Fatalf("expected to find the indexed row")
	}
}
