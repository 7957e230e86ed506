package vm

import (
	"fmt"

	"github.com/mantisdb/livequery/rel"
)

func evalPredicateAt(row rel.Row, pos int, op CompareOp, want any) (bool, error) {
	return compareValues(row.Values[pos], op, want)
}

// compareValues evaluates `have <op> want` for the value types this
// planner supports: int64-ish integers, float64, string, and bool.
// Equality/inequality work for all four; ordering operators only for
// the numeric and string kinds.
func compareValues(have any, op CompareOp, want any) (bool, error) {
	if op == Eq || op == Ne {
		eq := valuesEqual(have, want)
		if op == Eq {
			return eq, nil
		}
		return !eq, nil
	}

	hf, hok := asFloat(have)
	wf, wok := asFloat(want)
	if hok && wok {
		switch op {
		case Lt:
			return hf < wf, nil
		case Lte:
			return hf <= wf, nil
		case Gt:
			return hf > wf, nil
		case Gte:
			return hf >= wf, nil
		}
	}
	hs, hok := have.(string)
	ws, wok := want.(string)
	if hok && wok {
		switch op {
		case Lt:
			return hs < ws, nil
		case Lte:
			return hs <= ws, nil
		case Gt:
			return hs > ws, nil
		case Gte:
			return hs >= ws, nil
		}
	}
	return false, fmt.Errorf("vm: cannot order-compare %T and %T", have, want)
}

func valuesEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

// joinKey normalizes a join-column value into a form usable as a map
// key that agrees with valuesEqual's notion of equality: numeric values
// of different underlying types (int vs. int64, say) collapse to the
// same float64 key, matching compareValues' Eq semantics rather than Go's
// stricter any-equality.
func joinKey(v any) any {
	if f, ok := asFloat(v); ok {
		return f
	}
	return v
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
