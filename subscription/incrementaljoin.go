package subscription

import (
	"context"
	"fmt"
	"strings"

	"github.com/mantisdb/livequery/deltatable"
	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/storage"
	"github.com/mantisdb/livequery/vm"
)

// evalIncrementalJoin computes the delta of a semi-join view given the
// deltas of its two underlying tables, without recomputing the whole
// join from scratch. It follows the four-arm construction from the
// incremental-view-maintenance literature SpacetimeDB's own subscription
// engine is built on: split each side's delta into its insert and
// delete halves, join each half against the *other* side's current
// (post-commit) state, tag the result with the matching op, then
// reconcile the four tagged streams into one.
//
// Reconciliation has two jobs, both load-bearing for correctness under
// simultaneous changes to both sides within the same transaction:
//
//   - dedup: the same output row can legitimately come out of more than
//     one arm (e.g. a brand-new L row matched against a brand-new R row
//     is found both by "ΔL⁺ ⋈ R_current" and by "L_current ⋈ ΔR⁺", since
//     R_current and L_current already reflect the post-commit state).
//     Seeing it twice must still only emit one insert.
//   - cancel: a row produced as both an insert and a delete in the same
//     evaluation (e.g. a delete-then-reinsert of an unchanged row) nets
//     to nothing and must not be reported at all.
func evalIncrementalJoin(ctx context.Context, tx storage.Tx, expr vm.QueryExpr, updates []storage.DatabaseTableUpdate) ([]storage.TableOp, error) {
	join := expr.Join

	lSide, rSide := join.IndexSide, join.ProbeSide
	if join.ReturnProbeSide {
		lSide, rSide = join.ProbeSide, join.IndexSide
	}

	lTable, ok := lSide.GetDbTable()
	if !ok {
		return nil, fmt.Errorf("subscription: incremental join: return side is not a database table")
	}
	rTable, ok := rSide.GetDbTable()
	if !ok {
		return nil, fmt.Errorf("subscription: incremental join: filter side is not a database table")
	}

	deltaL := findUpdate(updates, lTable.TableID)
	deltaR := findUpdate(updates, rTable.TableID)
	if deltaL == nil && deltaR == nil {
		return nil, nil
	}

	inserts := make(map[string]rel.Row)
	deletes := make(map[string]rel.Row)

	if deltaL != nil {
		lPlus, lMinus := splitUpdate(*deltaL)
		if rows, err := runArm(ctx, tx, expr, lPlus); err != nil {
			return nil, err
		} else {
			addAll(inserts, rows)
		}
		if rows, err := runArm(ctx, tx, expr, lMinus); err != nil {
			return nil, err
		} else {
			addAll(deletes, rows)
		}
	}

	if deltaR != nil {
		rPlus, rMinus := splitUpdate(*deltaR)
		if rows, err := runArm(ctx, tx, expr, rPlus); err != nil {
			return nil, err
		} else {
			addAll(inserts, rows)
		}
		if rows, err := runArm(ctx, tx, expr, rMinus); err != nil {
			return nil, err
		} else {
			addAll(deletes, rows)
		}
	}

	var ops []storage.TableOp
	for key, row := range inserts {
		if _, cancelled := deletes[key]; cancelled {
			continue
		}
		ops = append(ops, storage.TableOp{OpType: storage.OpInsert, Row: row})
	}
	for key, row := range deletes {
		if _, cancelled := inserts[key]; cancelled {
			continue
		}
		ops = append(ops, storage.TableOp{OpType: storage.OpDelete, Row: row})
	}
	return ops, nil
}

// runArm rewrites expr via deltatable.ToMemTable so whichever join side
// matches half's table id reads half's rows in place of live storage,
// leaves the other side reading live through tx, and runs the result.
// half is nil when that op-type direction was empty for this delta.
func runArm(ctx context.Context, tx storage.Tx, expr vm.QueryExpr, half *storage.DatabaseTableUpdate) ([]rel.Row, error) {
	if half == nil || len(half.Ops) == 0 {
		return nil, nil
	}
	armExpr, sources := deltatable.ToMemTable(expr, *half)
	return vm.RunQuery(ctx, nil, tx, armExpr, sources)
}

func findUpdate(updates []storage.DatabaseTableUpdate, tableID rel.TableID) *storage.DatabaseTableUpdate {
	for i := range updates {
		if updates[i].TableID == tableID {
			return &updates[i]
		}
	}
	return nil
}

// splitUpdate partitions update's ops into an inserts-only and a
// deletes-only DatabaseTableUpdate, each ready to hand to
// deltatable.ToMemTable — the op direction is tracked by which arm
// produced a row, not by any column on the row itself.
func splitUpdate(update storage.DatabaseTableUpdate) (plus, minus *storage.DatabaseTableUpdate) {
	var insertOps, deleteOps []storage.TableOp
	for _, op := range update.Ops {
		if op.OpType == storage.OpInsert {
			insertOps = append(insertOps, op)
		} else {
			deleteOps = append(deleteOps, op)
		}
	}
	if len(insertOps) > 0 {
		plus = &storage.DatabaseTableUpdate{TableID: update.TableID, TableName: update.TableName, Ops: insertOps}
	}
	if len(deleteOps) > 0 {
		minus = &storage.DatabaseTableUpdate{TableID: update.TableID, TableName: update.TableName, Ops: deleteOps}
	}
	return plus, minus
}

func addAll(set map[string]rel.Row, rows []rel.Row) {
	for _, row := range rows {
		set[rowKey(row)] = row
	}
}

// rowKey is a canonical string key for a row's values, used only to
// dedup/cancel rows within one incremental-join evaluation — it is
// never persisted or compared across evaluations.
func rowKey(row rel.Row) string {
	var b strings.Builder
	for i, v := range row.Values {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String()
}
