package vm

import (
	"context"
	"fmt"

	"github.com/mantisdb/livequery/rel"
)

// evalJoin runs an index-join: for every row on the probe side, look
// up matching rows on the index side by join column (keeping only
// those passing any residual filter on the index side). With
// ReturnProbeSide the probe row is emitted once if it has at least one
// match; otherwise every matching index-side row is emitted, so an
// index row appears once per probe row it matches.
//
// The in-memory implementation builds a hash index over the index
// side rather than truly probing a storage-level index; this is
// sufficient given the VM's fixed, rule-driven planning (no cost-based
// choice of physical join algorithm is in scope) and keeps the
// evaluator identical whether the index side arrives from the
// database or from a delta MemTable.
func evalJoin(ctx context.Context, tx TableReader, join *IndexJoin, sources *rel.SourceSet) ([]rel.Row, error) {
	indexRows, err := readSource(ctx, tx, join.IndexSide, sources)
	if err != nil {
		return nil, err
	}
	probeRows, err := readSource(ctx, tx, join.ProbeSide, sources)
	if err != nil {
		return nil, err
	}

	indexHeader := join.IndexSide.Header()
	probeHeader := join.ProbeSide.Header()

	indexPos, ok := indexHeader.FindPosByName(join.IndexSideColumn)
	if !ok {
		return nil, fmt.Errorf("vm: join: unknown index-side column %q", join.IndexSideColumn)
	}
	probePos, ok := probeHeader.FindPosByName(join.ProbeSideColumn)
	if !ok {
		return nil, fmt.Errorf("vm: join: unknown probe-side column %q", join.ProbeSideColumn)
	}

	var filterPos int
	if join.IndexSideFilter != nil {
		filterPos, ok = indexHeader.FindPosByName(join.IndexSideFilter.Column)
		if !ok {
			return nil, fmt.Errorf("vm: join: unknown index-side filter column %q", join.IndexSideFilter.Column)
		}
	}

	index := make(map[any][]rel.Row, len(indexRows))
	for _, row := range indexRows {
		if join.IndexSideFilter != nil {
			ok, err := evalPredicateAt(row, filterPos, join.IndexSideFilter.Op, join.IndexSideFilter.Value)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		key := joinKey(row.Values[indexPos])
		index[key] = append(index[key], row)
	}

	var out []rel.Row
	for _, probeRow := range probeRows {
		matches, ok := index[joinKey(probeRow.Values[probePos])]
		if !ok {
			continue
		}
		if join.ReturnProbeSide {
			out = append(out, probeRow)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}
