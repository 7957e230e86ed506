package vm

import (
	"context"
	"fmt"

	"github.com/mantisdb/livequery/rel"
)

// RowIter is the pull-based iterator every physical plan exposes.
// Next returns (row, true, nil) while rows remain, (zero, false, nil)
// once exhausted, and (zero, false, err) on failure.
type RowIter interface {
	Next() (rel.Row, bool, error)
}

// sliceIter adapts a materialized row slice to RowIter. The evaluator
// below collects eagerly; §9's "Coroutine/iterator flow" design note
// permits streaming instead as long as the observable ops-list is the
// same, which a slice-backed iterator trivially satisfies.
type sliceIter struct {
	rows []rel.Row
	pos  int
}

func (it *sliceIter) Next() (rel.Row, bool, error) {
	if it.pos >= len(it.rows) {
		return rel.Row{}, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

// Catalog is the minimal slice of RelationalDB the VM needs: an
// address to tag traces/contexts with. Table metadata already lives on
// each SourceExpr, so nothing more is required here.
type Catalog interface {
	Address() string
}

// TableReader is the minimal slice of a storage transaction handle
// the VM needs to read rows. storage.Tx implements this.
type TableReader interface {
	Iter(ctx context.Context, tableID rel.TableID) (RowIter, error)
	IndexSeek(ctx context.Context, tableID rel.TableID, column string, value any) (RowIter, error)
}

// Compile validates and annotates a logical QueryExpr, producing an
// immutable physical QueryCode. Compilation is deterministic and pure:
// two structurally identical expressions always compile to
// structurally identical code.
func Compile(expr QueryExpr) (QueryCode, error) {
	if expr.IsJoin() {
		return compileJoin(expr)
	}
	return compileLinear(expr)
}

func compileLinear(expr QueryExpr) (QueryCode, error) {
	if expr.Source.Header().TableName == "" && len(expr.Source.Header().Fields) == 0 {
		return QueryCode{}, fmt.Errorf("vm: compile: empty source header")
	}
	header := expr.Source.Header()
	for _, op := range expr.Ops {
		var err error
		header, err = applyOpToHeader(header, op)
		if err != nil {
			return QueryCode{}, err
		}
	}
	return QueryCode{Expr: expr, Header: header}, nil
}

func compileJoin(expr QueryExpr) (QueryCode, error) {
	join := expr.Join
	var header rel.Header
	if join.ReturnProbeSide {
		header = join.ProbeSide.Header()
	} else {
		header = join.IndexSide.Header()
	}
	for _, op := range expr.Ops {
		var err error
		header, err = applyOpToHeader(header, op)
		if err != nil {
			return QueryCode{}, err
		}
	}
	return QueryCode{Expr: expr, Header: header}, nil
}

func applyOpToHeader(h rel.Header, op Op) (rel.Header, error) {
	switch op.Kind {
	case OpFilter:
		if _, ok := h.FindPosByName(op.Predicate.Column); !ok {
			return rel.Header{}, fmt.Errorf("vm: compile: unknown filter column %q", op.Predicate.Column)
		}
		return h, nil
	case OpProject:
		return h.Project(projectColumns(h, op.Columns))
	default:
		return rel.Header{}, fmt.Errorf("vm: compile: unknown op kind %d", op.Kind)
	}
}

// projectColumns returns op's requested columns, with __op_type appended
// when it is present in h but not already requested. A project stage
// never drops the incremental op-type tag, since an incremental Select
// plan's output must remain splittable into inserts and deletes
// regardless of what the caller chose to project.
func projectColumns(h rel.Header, columns []string) []string {
	if _, ok := h.FindPosByName(rel.OpTypeColumn); !ok {
		return columns
	}
	for _, c := range columns {
		if c == rel.OpTypeColumn {
			return columns
		}
	}
	out := make([]string, len(columns)+1)
	copy(out, columns)
	out[len(columns)] = rel.OpTypeColumn
	return out
}

// BuildQuery materializes an executable iterator for a compiled plan,
// binding any MemTable sources referenced by code.Expr against
// sources. db is not read by either the linear or the join path: both
// take table metadata from what each SourceExpr already carries and
// read rows through tx.
func BuildQuery(ctx context.Context, db Catalog, tx TableReader, code QueryCode, sources *rel.SourceSet) (RowIter, error) {
	var rows []rel.Row
	var err error
	if code.Expr.IsJoin() {
		rows, err = evalJoin(ctx, tx, code.Expr.Join, sources)
	} else {
		rows, err = readSource(ctx, tx, code.Expr.Source, sources)
	}
	if err != nil {
		return nil, err
	}
	sourceHeader := sourceHeaderFor(code.Expr)
	for _, op := range code.Expr.Ops {
		rows, sourceHeader, err = applyOp(rows, sourceHeader, op)
		if err != nil {
			return nil, err
		}
	}
	return &sliceIter{rows: rows}, nil
}

func sourceHeaderFor(expr QueryExpr) rel.Header {
	if expr.IsJoin() {
		if expr.Join.ReturnProbeSide {
			return expr.Join.ProbeSide.Header()
		}
		return expr.Join.IndexSide.Header()
	}
	return expr.Source.Header()
}

// RunQuery compiles and runs expr in one call. It is the entry point
// used for semi-join evaluation, which re-compiles on every call
// rather than caching a physical plan (see query.Classify / the
// Semijoin path of the plan specializer).
func RunQuery(ctx context.Context, db Catalog, tx TableReader, expr QueryExpr, sources *rel.SourceSet) ([]rel.Row, error) {
	code, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	iter, err := BuildQuery(ctx, db, tx, code, sources)
	if err != nil {
		return nil, err
	}
	return CollectRows(iter)
}

// CollectRows drains iter into a slice.
func CollectRows(iter RowIter) ([]rel.Row, error) {
	var rows []rel.Row
	for {
		row, ok, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

func readSource(ctx context.Context, tx TableReader, src rel.SourceExpr, sources *rel.SourceSet) ([]rel.Row, error) {
	if src.Kind == rel.SourceMemTable {
		data, ok := sources.Get(src.MemTable.SourceID)
		if !ok {
			return nil, fmt.Errorf("vm: no SourceSet binding for mem-table source %d", src.MemTable.SourceID)
		}
		rows := make([]rel.Row, len(data.Rows))
		copy(rows, data.Rows)
		return rows, nil
	}
	iter, err := tx.Iter(ctx, src.DbTable.TableID)
	if err != nil {
		return nil, err
	}
	return CollectRows(iter)
}

func applyOp(rows []rel.Row, header rel.Header, op Op) ([]rel.Row, rel.Header, error) {
	switch op.Kind {
	case OpFilter:
		pos, ok := header.FindPosByName(op.Predicate.Column)
		if !ok {
			return nil, header, fmt.Errorf("vm: unknown filter column %q", op.Predicate.Column)
		}
		out := rows[:0:0]
		for _, row := range rows {
			ok, err := evalPredicateAt(row, pos, op.Predicate.Op, op.Predicate.Value)
			if err != nil {
				return nil, header, err
			}
			if ok {
				out = append(out, row)
			}
		}
		return out, header, nil
	case OpProject:
		columns := projectColumns(header, op.Columns)
		newHeader, err := header.Project(columns)
		if err != nil {
			return nil, header, err
		}
		positions := make([]int, len(columns))
		for i, c := range columns {
			pos, _ := header.FindPosByName(c)
			positions[i] = pos
		}
		out := make([]rel.Row, len(rows))
		for i, row := range rows {
			out[i] = row.Project(positions)
		}
		return out, newHeader, nil
	default:
		return nil, header, fmt.Errorf("vm: unknown op kind %d", op.Kind)
	}
}
