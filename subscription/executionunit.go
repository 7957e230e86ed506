// Package subscription is the execution core's centerpiece: it turns a
// classified logical plan into a long-lived ExecutionUnit able to run
// both a full snapshot evaluation and a cheap incremental evaluation
// against a committed transaction's deltas, and a Registry dispatching
// those deltas to every unit whose return or filter table was touched.
package subscription

import (
	"context"

	"github.com/mantisdb/livequery/authctx"
	"github.com/mantisdb/livequery/dberror"
	"github.com/mantisdb/livequery/deltatable"
	"github.com/mantisdb/livequery/hash"
	"github.com/mantisdb/livequery/query"
	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/storage"
	"github.com/mantisdb/livequery/vm"
)

// memSourceID is the fixed in-memory source id a Select unit's
// eval_incr_plan is compiled against. Every evaluation call rebuilds a
// fresh SourceSet and binds exactly one table into it first, so the
// allocator always hands out this same id — see rel.SourceSet.
const memSourceID = uint32(1)

// selectPlan holds the two specialized physical plans a Select unit
// alternates between: eval_plan reads the live database table, while
// eval_incr_plan reads an in-memory table carrying the trailing
// __op_type column so a single pass over a transaction's delta can be
// filtered and then split back into inserts and deletes.
type selectPlan struct {
	evalPlan     vm.QueryCode
	evalIncrPlan vm.QueryCode
	sourceHeader rel.Header
}

// semijoinPlan retains the logical plan itself; unlike a Select unit, a
// semi-join is re-compiled on every evaluation rather than cached as
// QueryCode, because eval_incr must rewrite either join arm to a
// different in-memory source on each call (see evalIncrementalJoin).
type semijoinPlan struct {
	expr vm.QueryExpr
}

// ExecutionUnit is one subscriber's specialized, reusable query plan.
// It is built once by New (the plan specializer) and then evaluated
// repeatedly — once per snapshot, once per relevant transaction — for
// as long as the subscription is live.
type ExecutionUnit struct {
	hash hash.QueryHash
	kind query.Kind
	sel  *selectPlan
	semi *semijoinPlan
}

// New specializes a classified query into an ExecutionUnit, compiling
// whichever physical plan(s) its kind requires. h identifies the unit
// for dispatch and must already have been computed over the query's
// canonical byte representation (see package hash); New does not
// recompute or validate it.
func New(sq query.SupportedQuery, h hash.QueryHash) (*ExecutionUnit, error) {
	switch sq.Kind {
	case query.Select:
		sel, err := compileSelect(sq.Expr)
		if err != nil {
			return nil, err
		}
		return &ExecutionUnit{hash: h, kind: query.Select, sel: sel}, nil
	case query.Semijoin:
		return &ExecutionUnit{hash: h, kind: query.Semijoin, semi: &semijoinPlan{expr: sq.Expr}}, nil
	default:
		return nil, dberror.Wrapf(dberror.ErrPlannerInvariant, "unknown query kind %v", sq.Kind)
	}
}

func compileSelect(expr vm.QueryExpr) (*selectPlan, error) {
	dbt, ok := expr.Source.GetDbTable()
	if !ok {
		return nil, dberror.Wrap(dberror.ErrPlannerInvariant, "select query must read from a database table")
	}

	evalPlan, err := vm.Compile(expr)
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrVMCompile, err.Error())
	}

	incrExpr := expr
	incrExpr.Source = rel.NewMemSource(memSourceID, dbt.Header.WithColumn(rel.OpTypeColumn))
	evalIncrPlan, err := vm.Compile(incrExpr)
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrVMCompile, err.Error())
	}
	if _, ok := evalIncrPlan.Header.FindPosByName(rel.OpTypeColumn); !ok {
		return nil, dberror.Wrap(dberror.ErrSchemaMismatch, "incremental select plan lost its __op_type column")
	}

	return &selectPlan{evalPlan: evalPlan, evalIncrPlan: evalIncrPlan, sourceHeader: dbt.Header}, nil
}

// Hash returns the unit's identity.
func (u *ExecutionUnit) Hash() hash.QueryHash { return u.hash }

// Kind reports whether this unit is a Select or a Semijoin.
func (u *ExecutionUnit) Kind() query.Kind { return u.kind }

// ReturnTable is the table whose rows this unit streams to its
// subscriber: the Select source, or the semi-join side ReturnProbeSide
// designates.
func (u *ExecutionUnit) ReturnTable() (rel.TableID, bool) {
	if u.kind == query.Select {
		dbt, ok := u.sel.evalPlan.Expr.Source.GetDbTable()
		if !ok {
			return 0, false
		}
		return dbt.TableID, true
	}
	join := u.semi.expr.Join
	side := join.IndexSide
	if join.ReturnProbeSide {
		side = join.ProbeSide
	}
	dbt, ok := side.GetDbTable()
	if !ok {
		return 0, false
	}
	return dbt.TableID, true
}

// ReturnName is the table name backing ReturnTable, for building
// DatabaseTableUpdate envelopes.
func (u *ExecutionUnit) ReturnName() string {
	if u.kind == query.Select {
		return u.sel.sourceHeader.TableName
	}
	join := u.semi.expr.Join
	side := join.IndexSide
	if join.ReturnProbeSide {
		side = join.ProbeSide
	}
	return side.Header().TableName
}

// FilterTable is the other table a Semijoin unit's output depends on —
// a change there can also affect this subscriber even when ReturnTable
// itself is untouched. It reports ok=false for a Select unit, which has
// no second table.
func (u *ExecutionUnit) FilterTable() (rel.TableID, bool) {
	if u.kind != query.Semijoin {
		return 0, false
	}
	join := u.semi.expr.Join
	other := join.ProbeSide
	if join.ReturnProbeSide {
		other = join.IndexSide
	}
	dbt, ok := other.GetDbTable()
	if !ok {
		return 0, false
	}
	return dbt.TableID, true
}

// Eval runs a full snapshot evaluation: every row currently visible
// through tx that satisfies the unit's plan, each reported as an
// insert. This is what a brand-new subscriber receives before any
// incremental update. auth identifies the caller the query is run on
// behalf of; row-level access control is a future collaborator of this
// method and not yet enforced here (see authctx).
func (u *ExecutionUnit) Eval(ctx context.Context, db storage.RelationalDB, tx storage.Tx, auth authctx.AuthCtx) (*storage.DatabaseTableUpdate, error) {
	var rows []rel.Row
	var err error
	switch u.kind {
	case query.Select:
		iter, buildErr := vm.BuildQuery(ctx, db, tx, u.sel.evalPlan, &rel.SourceSet{})
		if buildErr != nil {
			return nil, buildErr
		}
		rows, err = vm.CollectRows(iter)
	case query.Semijoin:
		rows, err = vm.RunQuery(ctx, db, tx, u.semi.expr, &rel.SourceSet{})
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return u.insertUpdate(rows), nil
}

// EvalIncr runs an incremental evaluation against the deltas a single
// committed transaction produced. updates that don't touch a table this
// unit cares about are ignored. It returns nil if the transaction had
// no observable effect on this unit's result set — the empty-delta
// short circuit spec.md calls out explicitly, so a subscriber whose
// query is unaffected is never sent an empty envelope.
func (u *ExecutionUnit) EvalIncr(ctx context.Context, db storage.RelationalDB, tx storage.Tx, updates []storage.DatabaseTableUpdate, auth authctx.AuthCtx) (*storage.DatabaseTableUpdate, error) {
	switch u.kind {
	case query.Select:
		return u.evalIncrSelect(ctx, tx, updates)
	case query.Semijoin:
		return u.evalIncrSemijoin(ctx, db, tx, updates)
	default:
		return nil, dberror.Wrapf(dberror.ErrPlannerInvariant, "unknown query kind %v", u.kind)
	}
}

func (u *ExecutionUnit) evalIncrSelect(ctx context.Context, tx storage.Tx, updates []storage.DatabaseTableUpdate) (*storage.DatabaseTableUpdate, error) {
	returnTable, ok := u.ReturnTable()
	if !ok {
		return nil, dberror.Wrap(dberror.ErrPlannerInvariant, "select unit has no database-table source")
	}

	var relevant *storage.DatabaseTableUpdate
	for i := range updates {
		if updates[i].TableID == returnTable {
			relevant = &updates[i]
			break
		}
	}
	if relevant == nil || len(relevant.Ops) == 0 {
		return nil, nil
	}

	mem := deltatable.ToMemTableWithOpType(u.sel.sourceHeader, *relevant)
	sources := &rel.SourceSet{}
	sources.AddMemTable(mem)

	iter, err := vm.BuildQuery(ctx, nil, tx, u.sel.evalIncrPlan, sources)
	if err != nil {
		return nil, err
	}
	rows, err := vm.CollectRows(iter)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	pos, ok := u.sel.evalIncrPlan.Header.FindPosByName(rel.OpTypeColumn)
	if !ok {
		return nil, dberror.Wrap(dberror.ErrSchemaMismatch, "incremental select output is missing __op_type")
	}
	ops := make([]storage.TableOp, 0, len(rows))
	for _, row := range rows {
		stripped, tag := row.WithoutPos(pos)
		opByte, ok := tag.(uint8)
		if !ok {
			return nil, dberror.Wrap(dberror.ErrSchemaMismatch, "__op_type value is not a uint8")
		}
		ops = append(ops, storage.TableOp{OpType: storage.OpType(opByte), Row: stripped})
	}
	return &storage.DatabaseTableUpdate{TableID: returnTable, TableName: u.ReturnName(), Ops: ops}, nil
}

func (u *ExecutionUnit) evalIncrSemijoin(ctx context.Context, db storage.RelationalDB, tx storage.Tx, updates []storage.DatabaseTableUpdate) (*storage.DatabaseTableUpdate, error) {
	ops, err := evalIncrementalJoin(ctx, tx, u.semi.expr, updates)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	returnTable, _ := u.ReturnTable()
	return &storage.DatabaseTableUpdate{TableID: returnTable, TableName: u.ReturnName(), Ops: ops}, nil
}

func (u *ExecutionUnit) insertUpdate(rows []rel.Row) *storage.DatabaseTableUpdate {
	returnTable, _ := u.ReturnTable()
	ops := make([]storage.TableOp, len(rows))
	for i, r := range rows {
		ops[i] = storage.TableOp{OpType: storage.OpInsert, Row: r}
	}
	return &storage.DatabaseTableUpdate{TableID: returnTable, TableName: u.ReturnName(), Ops: ops}
}
