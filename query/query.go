// Package query classifies a logical plan produced by the (external)
// optimizer as one of the two query shapes this core can execute, and
// validates the invariants each shape relies on.
package query

import (
	"github.com/mantisdb/livequery/dberror"
	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/vm"
)

// Kind labels a classified logical plan.
type Kind int

const (
	// Select is a single-table filter/project query.
	Select Kind = iota
	// Semijoin is a two-table index-join filter query.
	Semijoin
)

func (k Kind) String() string {
	switch k {
	case Select:
		return "select"
	case Semijoin:
		return "semijoin"
	default:
		return "unknown"
	}
}

// SupportedQuery is a classified logical plan: a Kind tag paired with
// the plan itself, the two invariants below already checked.
type SupportedQuery struct {
	Kind Kind
	Expr vm.QueryExpr
}

// Classify labels expr as Select or Semijoin and validates the
// invariants its kind relies on:
//
//   - Select: the source is a concrete database table, not an
//     in-memory one.
//   - Semijoin: the first (only) operator is an index-join between two
//     concrete database tables, and the two sides are not the same
//     table (a self-join is treated as a planner bug, per spec.md §9's
//     open question — resolved here rather than left ambiguous).
//
// A violation returns dberror.ErrPlannerInvariant; this indicates a
// bug upstream in the optimizer, not a condition this core should try
// to silently coerce.
func Classify(expr vm.QueryExpr) (SupportedQuery, error) {
	if expr.IsJoin() {
		return classifySemijoin(expr)
	}
	return classifySelect(expr)
}

func classifySelect(expr vm.QueryExpr) (SupportedQuery, error) {
	if expr.Source.Kind != rel.SourceDbTable {
		return SupportedQuery{}, dberror.Wrap(dberror.ErrPlannerInvariant,
			"select query must read from a database table")
	}
	return SupportedQuery{Kind: Select, Expr: expr}, nil
}

func classifySemijoin(expr vm.QueryExpr) (SupportedQuery, error) {
	join := expr.Join
	indexTable, ok := join.IndexSide.GetDbTable()
	if !ok {
		return SupportedQuery{}, dberror.Wrap(dberror.ErrPlannerInvariant,
			"semijoin index side must be a database table")
	}
	probeTable, ok := join.ProbeSide.GetDbTable()
	if !ok {
		return SupportedQuery{}, dberror.Wrap(dberror.ErrPlannerInvariant,
			"semijoin probe side must be a database table")
	}
	if indexTable.TableID == probeTable.TableID {
		return SupportedQuery{}, dberror.Wrap(dberror.ErrPlannerInvariant,
			"semijoin index side and probe side must be distinct tables")
	}
	return SupportedQuery{Kind: Semijoin, Expr: expr}, nil
}
