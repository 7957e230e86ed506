// Package deltatable adapts a per-table DatabaseTableUpdate into an
// in-memory relational source, so a physical plan that normally reads
// a concrete database table can instead be pointed at the rows a
// committed transaction just inserted or deleted.
package deltatable

import (
	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/storage"
	"github.com/mantisdb/livequery/vm"
)

// OpTypeFieldName is the trailing synthetic column incremental Select
// plans use to carry each row's operation through the pipeline.
const OpTypeFieldName = rel.OpTypeColumn

// ToMemTable rewrites expr so that its database-table source of id
// update.TableID becomes an in-memory source whose rows are exactly
// those named in update.Ops (both inserts and deletes, undifferentiated
// — callers that care about op type use ToMemTableWithOpType instead).
// It returns the rewritten expression and the SourceSet binding the
// new in-memory table.
//
// Used for join arms and other planner-only rewrites that only need
// "the rows this transaction touched", not which direction each one
// went.
func ToMemTable(expr vm.QueryExpr, update storage.DatabaseTableUpdate) (vm.QueryExpr, *rel.SourceSet) {
	rows := make([]rel.Row, len(update.Ops))
	var header rel.Header
	if expr.IsJoin() {
		header = sideHeader(expr.Join, update.TableID)
	} else {
		header = expr.Source.Header()
	}
	for i, op := range update.Ops {
		rows[i] = op.Row
	}

	sources := &rel.SourceSet{}
	memSrc := sources.AddMemTable(&rel.MemTableData{Header: header, Rows: rows})

	rewritten := expr
	if expr.IsJoin() {
		join := *expr.Join
		if dbt, ok := join.IndexSide.GetDbTable(); ok && dbt.TableID == update.TableID {
			join.IndexSide = memSrc
		}
		if dbt, ok := join.ProbeSide.GetDbTable(); ok && dbt.TableID == update.TableID {
			join.ProbeSide = memSrc
		}
		rewritten.Join = &join
	} else if dbt, ok := expr.Source.GetDbTable(); ok && dbt.TableID == update.TableID {
		rewritten.Source = memSrc
	}
	return rewritten, sources
}

func sideHeader(join *vm.IndexJoin, tableID rel.TableID) rel.Header {
	if dbt, ok := join.IndexSide.GetDbTable(); ok && dbt.TableID == tableID {
		return dbt.Header
	}
	if dbt, ok := join.ProbeSide.GetDbTable(); ok && dbt.TableID == tableID {
		return dbt.Header
	}
	return rel.Header{}
}

// ToMemTableWithOpType builds an in-memory table whose schema is
// header plus a trailing OpTypeFieldName column, and whose rows are
// update.Ops with each row's operation byte appended as the last
// value. header itself is never mutated.
func ToMemTableWithOpType(header rel.Header, update storage.DatabaseTableUpdate) *rel.MemTableData {
	augmented := header.WithColumn(OpTypeFieldName)
	rows := make([]rel.Row, len(update.Ops))
	for i, op := range update.Ops {
		rows[i] = op.Row.WithAppended(uint8(op.OpType))
	}
	return &rel.MemTableData{Header: augmented, Rows: rows}
}
