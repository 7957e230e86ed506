// Package vm is the relational VM: it compiles a logical query
// expression into a physical plan and runs that plan as a pull-based
// iterator over rows drawn from the storage engine and/or an
// in-memory SourceSet.
//
// The planner is intentionally fixed and rule-driven (no cost-based
// optimization, no join reordering): §1's Non-goals explicitly call a
// cost-based planner out of scope, and a fixed plan is what a
// single-table filter/project or a single index-join needs.
package vm

import "github.com/mantisdb/livequery/rel"

// CompareOp is a predicate comparison operator.
type CompareOp int

const (
	Eq CompareOp = iota
	Ne
	Lt
	Lte
	Gt
	Gte
)

// Predicate is a single column-vs-literal comparison. Compound
// predicates are represented as multiple FilterOps applied in
// sequence (an implicit AND), matching the "row-wise filters" the
// spec describes for Select queries.
type Predicate struct {
	Column string
	Op     CompareOp
	Value  any
}

// OpKind distinguishes the two operator shapes a pipeline can contain.
type OpKind int

const (
	OpFilter OpKind = iota
	OpProject
)

// Op is one stage of a linear filter/project pipeline applied after a
// plan's source (or, for a semi-join, after the join).
type Op struct {
	Kind      OpKind
	Predicate Predicate // valid when Kind == OpFilter
	Columns   []string  // valid when Kind == OpProject
}

// Filter builds a filter operator.
func Filter(column string, op CompareOp, value any) Op {
	return Op{Kind: OpFilter, Predicate: Predicate{Column: column, Op: op, Value: value}}
}

// Project builds a project operator.
func Project(columns ...string) Op {
	return Op{Kind: OpProject, Columns: columns}
}

// IndexJoin is the first (and, in this planner, only join) operator
// of a Semijoin query: it probes the index side by a join column for
// every row streamed from the probe side, and emits rows from
// whichever side ReturnProbeSide designates, restricted to rows with
// a match (optionally satisfying an additional residual filter on the
// index side).
type IndexJoin struct {
	IndexSide       rel.SourceExpr
	IndexSideColumn string
	IndexSideFilter *Predicate // optional, e.g. "active = true"

	ProbeSide       rel.SourceExpr
	ProbeSideColumn string

	// ReturnProbeSide selects which side's rows are emitted: true for
	// the probe side, false for the index side.
	ReturnProbeSide bool
}

// QueryExpr is a logical query plan: either a linear pipeline reading
// from a single Source, or a semi-join pipeline led by a Join.
// Exactly one of Source/Join is meaningful, matching the two
// SupportedQuery kinds.
type QueryExpr struct {
	Source rel.SourceExpr
	Join   *IndexJoin
	Ops    []Op
}

// IsJoin reports whether this plan is a semi-join.
func (e QueryExpr) IsJoin() bool {
	return e.Join != nil
}

// QueryCode is a compiled, immutable physical plan: the logical
// expression plus its precomputed output header, so that header
// lookups (and the __op_type assertion) do not need to be re-derived
// on every evaluation.
type QueryCode struct {
	Expr   QueryExpr
	Header rel.Header
}
