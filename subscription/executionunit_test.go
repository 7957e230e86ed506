package subscription

import (
	"context"
	"testing"

	"github.com/mantisdb/livequery/authctx"
	"github.com/mantisdb/livequery/hash"
	"github.com/mantisdb/livequery/query"
	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/storage"
	"github.com/mantisdb/livequery/vm"
)

func containsRow(ops []storage.TableOp, op storage.OpType, id int, name string) bool {
	for _, o := range ops {
		if o.OpType == op && o.Row.Values[0] == id && o.Row.Values[1] == name {
			return true
		}
	}
	return false
}

// TestSelectSnapshot is Scenario A: players(id, name) = {(1,"a"),(2,"b"),(3,"c")},
// query SELECT * FROM players WHERE id > 1.
func TestSelectSnapshot(t *testing.T) {
	ctx := context.Background()
	e := storage.NewEngine("t")
	header := rel.NewHeader("players", "id", "name")
	id, err := e.CreateTable(header)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := e.Commit(ctx, id, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(1, "a")},
		{OpType: storage.OpInsert, Row: rel.NewRow(2, "b")},
		{OpType: storage.OpInsert, Row: rel.NewRow(3, "c")},
	}); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	expr := vm.QueryExpr{Source: rel.NewDbSource(id, header), Ops: []vm.Op{vm.Filter("id", vm.Gt, 1)}}
	sq, err := query.Classify(expr)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	unit, err := New(sq, hash.OfString("players where id > 1"))
	if err != nil {
		t.Fatalf("new unit: %v", err)
	}

	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	update, err := unit.Eval(ctx, e, tx, authctx.Anonymous)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if update == nil || len(update.Ops) != 2 {
		t.Fatalf("expected 2 inserts, got %+v", update)
	}
	if !containsRow(update.Ops, storage.OpInsert, 2, "b") || !containsRow(update.Ops, storage.OpInsert, 3, "c") {
		t.Fatalf("expected rows (2,b) and (3,c), got %+v", update.Ops)
	}
}

func newSelectUnit(t *testing.T, e *storage.Engine, id rel.TableID, header rel.Header) *ExecutionUnit {
	t.Helper()
	expr := vm.QueryExpr{Source: rel.NewDbSource(id, header), Ops: []vm.Op{vm.Filter("id", vm.Gt, 1)}}
	sq, err := query.Classify(expr)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	unit, err := New(sq, hash.OfString("players where id > 1"))
	if err != nil {
		t.Fatalf("new unit: %v", err)
	}
	return unit
}

// TestSelectIncremental is Scenario B: from Scenario A's state, a
// transaction deletes (2,"b") and inserts (4,"d").
func TestSelectIncremental(t *testing.T) {
	ctx := context.Background()
	e := storage.NewEngine("t")
	header := rel.NewHeader("players", "id", "name")
	id, _ := e.CreateTable(header)
	e.Commit(ctx, id, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(1, "a")},
		{OpType: storage.OpInsert, Row: rel.NewRow(2, "b")},
		{OpType: storage.OpInsert, Row: rel.NewRow(3, "c")},
	})
	unit := newSelectUnit(t, e, id, header)

	delta, err := e.Commit(ctx, id, []storage.TableOp{
		{OpType: storage.OpDelete, Row: rel.NewRow(2, "b")},
		{OpType: storage.OpInsert, Row: rel.NewRow(4, "d")},
	})
	if err != nil {
		t.Fatalf("delta commit: %v", err)
	}
	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	update, err := unit.EvalIncr(ctx, e, tx, []storage.DatabaseTableUpdate{delta}, authctx.Anonymous)
	if err != nil {
		t.Fatalf("eval incr: %v", err)
	}
	if update == nil || len(update.Ops) != 2 {
		t.Fatalf("expected 2 ops, got %+v", update)
	}
	if !containsRow(update.Ops, storage.OpDelete, 2, "b") || !containsRow(update.Ops, storage.OpInsert, 4, "d") {
		t.Fatalf("expected delete (2,b) and insert (4,d), got %+v", update.Ops)
	}
}

// TestSelectIncrementalFilterExcludes is Scenario C: same query, delta
// inserts (0,"x") which the id > 1 filter excludes; eval_incr must
// report no observable change.
func TestSelectIncrementalFilterExcludes(t *testing.T) {
	ctx := context.Background()
	e := storage.NewEngine("t")
	header := rel.NewHeader("players", "id", "name")
	id, _ := e.CreateTable(header)
	e.Commit(ctx, id, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(1, "a")},
		{OpType: storage.OpInsert, Row: rel.NewRow(2, "b")},
		{OpType: storage.OpInsert, Row: rel.NewRow(3, "c")},
	})
	unit := newSelectUnit(t, e, id, header)

	delta, err := e.Commit(ctx, id, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(0, "x")},
	})
	if err != nil {
		t.Fatalf("delta commit: %v", err)
	}
	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	update, err := unit.EvalIncr(ctx, e, tx, []storage.DatabaseTableUpdate{delta}, authctx.Anonymous)
	if err != nil {
		t.Fatalf("eval incr: %v", err)
	}
	if update != nil {
		t.Fatalf("expected no observable change, got %+v", update)
	}
}
