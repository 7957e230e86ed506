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

// setupJoinFixture builds orders(id, cust_id) = {(10,1),(11,2)} and
// customers(id, active) = {(1,true),(2,false)}, and the semi-join unit
// for "orders of active customers" joined on cust_id = customers.id.
func setupJoinFixture(t *testing.T) (ctx context.Context, e *storage.Engine, ordersID, customersID rel.TableID, unit *ExecutionUnit) {
	t.Helper()
	ctx = context.Background()
	e = storage.NewEngine("t")

	ordersHeader := rel.NewHeader("orders", "id", "cust_id")
	customersHeader := rel.NewHeader("customers", "id", "active")

	var err error
	ordersID, err = e.CreateTable(ordersHeader)
	if err != nil {
		t.Fatalf("create orders: %v", err)
	}
	customersID, err = e.CreateTable(customersHeader)
	if err != nil {
		t.Fatalf("create customers: %v", err)
	}

	if _, err := e.Commit(ctx, ordersID, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(10, 1)},
		{OpType: storage.OpInsert, Row: rel.NewRow(11, 2)},
	}); err != nil {
		t.Fatalf("seed orders: %v", err)
	}
	if _, err := e.Commit(ctx, customersID, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(1, true)},
		{OpType: storage.OpInsert, Row: rel.NewRow(2, false)},
	}); err != nil {
		t.Fatalf("seed customers: %v", err)
	}

	expr := vm.QueryExpr{Join: &vm.IndexJoin{
		IndexSide:       rel.NewDbSource(customersID, customersHeader),
		IndexSideColumn: "id",
		IndexSideFilter: &vm.Predicate{Column: "active", Op: vm.Eq, Value: true},
		ProbeSide:       rel.NewDbSource(ordersID, ordersHeader),
		ProbeSideColumn: "cust_id",
		ReturnProbeSide: true,
	}}
	sq, err := query.Classify(expr)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	unit, err = New(sq, hash.OfString("orders of active customers"))
	if err != nil {
		t.Fatalf("new unit: %v", err)
	}
	return ctx, e, ordersID, customersID, unit
}

// TestSemijoinSnapshot is Scenario D.
func TestSemijoinSnapshot(t *testing.T) {
	ctx, e, _, _, unit := setupJoinFixture(t)
	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	update, err := unit.Eval(ctx, e, tx, authctx.Anonymous)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if update == nil || len(update.Ops) != 1 {
		t.Fatalf("expected exactly one insert, got %+v", update)
	}
	if update.Ops[0].OpType != storage.OpInsert || update.Ops[0].Row.Values[0] != 10 {
		t.Fatalf("expected insert (10,1), got %+v", update.Ops[0])
	}
}

// TestSemijoinIncrementalFilterSideChange is Scenario E: customer id=2
// flips from active=false to active=true via a delete-then-insert pair
// on the filter side.
func TestSemijoinIncrementalFilterSideChange(t *testing.T) {
	ctx, e, _, customersID, unit := setupJoinFixture(t)

	delta, err := e.Commit(ctx, customersID, []storage.TableOp{
		{OpType: storage.OpDelete, Row: rel.NewRow(2, false)},
		{OpType: storage.OpInsert, Row: rel.NewRow(2, true)},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	update, err := unit.EvalIncr(ctx, e, tx, []storage.DatabaseTableUpdate{delta}, authctx.Anonymous)
	if err != nil {
		t.Fatalf("eval incr: %v", err)
	}
	if update == nil || len(update.Ops) != 1 {
		t.Fatalf("expected exactly one op, got %+v", update)
	}
	if update.Ops[0].OpType != storage.OpInsert || update.Ops[0].Row.Values[0] != 11 {
		t.Fatalf("expected insert (11,2), got %+v", update.Ops[0])
	}
}

// TestSemijoinIncrementalDoubleSideInsert is Scenario F: a transaction
// inserts orders=(12,3) and customers=(3,true) together; the row they
// jointly produce must be emitted exactly once, not twice.
func TestSemijoinIncrementalDoubleSideInsert(t *testing.T) {
	ctx, e, ordersID, customersID, unit := setupJoinFixture(t)

	ordersDelta, err := e.Commit(ctx, ordersID, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(12, 3)},
	})
	if err != nil {
		t.Fatalf("commit orders: %v", err)
	}
	customersDelta, err := e.Commit(ctx, customersID, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(3, true)},
	})
	if err != nil {
		t.Fatalf("commit customers: %v", err)
	}
	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	update, err := unit.EvalIncr(ctx, e, tx, []storage.DatabaseTableUpdate{ordersDelta, customersDelta}, authctx.Anonymous)
	if err != nil {
		t.Fatalf("eval incr: %v", err)
	}
	if update == nil || len(update.Ops) != 1 {
		t.Fatalf("expected exactly one insert despite both sides changing, got %+v", update)
	}
	if update.Ops[0].OpType != storage.OpInsert || update.Ops[0].Row.Values[0] != 12 {
		t.Fatalf("expected a single insert (12,3), got %+v", update.Ops[0])
	}
}
