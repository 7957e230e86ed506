package subscription

import (
	"context"
	"sync"

	"github.com/mantisdb/livequery/authctx"
	"github.com/mantisdb/livequery/dberror"
	"github.com/mantisdb/livequery/hash"
	"github.com/mantisdb/livequery/query"
	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/storage"
)

// entry is a subscribed unit plus the count of distinct clients
// currently referencing it under its hash. A unit is created the first
// time its hash is seen and destroyed once the last client referencing
// it unsubscribes — it is never mutated in between.
type entry struct {
	unit *ExecutionUnit
	refs int
}

// Registry is the live subscription set: every currently-subscribed
// ExecutionUnit, refcounted by the number of clients referencing it and
// indexed by the database tables a change to which should trigger it,
// so that Dispatch only re-evaluates units a transaction could
// plausibly have affected.
//
// This mirrors the dependency-graph adjacency bookkeeping a cache
// invalidation layer needs — a table maps to the set of query hashes
// that depend on it — generalized here from "which cache entries does
// a write invalidate" to "which subscribers does a write need to
// re-evaluate".
type Registry struct {
	mu sync.RWMutex

	entries map[hash.QueryHash]*entry
	byTable map[rel.TableID]map[hash.QueryHash]struct{}
}

// NewRegistry returns an empty subscription set.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[hash.QueryHash]*entry),
		byTable: make(map[rel.TableID]map[hash.QueryHash]struct{}),
	}
}

// Subscribe adds one client reference to the unit identified by h. If h
// is not yet present, it specializes sq into a new ExecutionUnit and
// indexes it by its return/filter tables; if h is already present, it
// just bumps the reference count and returns the existing unit — two
// clients subscribing to byte-identical queries share one compiled
// plan. h == hash.None is rejected: it is a valid zero value for
// tests/benchmarks, but accepting it here would let two callers that
// never computed a real hash silently share a registry slot.
func (r *Registry) Subscribe(sq query.SupportedQuery, h hash.QueryHash) (*ExecutionUnit, error) {
	if h.IsNone() {
		return nil, dberror.Wrap(dberror.ErrPlannerInvariant, "cannot subscribe a unit with the sentinel query hash")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[h]; ok {
		e.refs++
		return e.unit, nil
	}

	unit, err := New(sq, h)
	if err != nil {
		return nil, err
	}
	r.entries[h] = &entry{unit: unit, refs: 1}
	r.index(h, unit)
	return unit, nil
}

func (r *Registry) index(h hash.QueryHash, unit *ExecutionUnit) {
	if returnTable, ok := unit.ReturnTable(); ok {
		r.addIndex(returnTable, h)
	}
	if filterTable, ok := unit.FilterTable(); ok {
		r.addIndex(filterTable, h)
	}
}

func (r *Registry) addIndex(tableID rel.TableID, h hash.QueryHash) {
	set, ok := r.byTable[tableID]
	if !ok {
		set = make(map[hash.QueryHash]struct{})
		r.byTable[tableID] = set
	}
	set[h] = struct{}{}
}

// Unsubscribe removes one client reference from the unit identified by
// h, evicting it (and its table-index entries) once the count reaches
// zero. It is a no-op if h is not currently subscribed.
func (r *Registry) Unsubscribe(h hash.QueryHash) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(r.entries, h)
	if returnTable, ok := e.unit.ReturnTable(); ok {
		delete(r.byTable[returnTable], h)
	}
	if filterTable, ok := e.unit.FilterTable(); ok {
		delete(r.byTable[filterTable], h)
	}
}

// Lookup returns the unit subscribed under h, if any.
func (r *Registry) Lookup(h hash.QueryHash) (*ExecutionUnit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[h]
	if !ok {
		return nil, false
	}
	return e.unit, true
}

// Len reports the number of distinct subscribed units (not the sum of
// their reference counts).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Dispatch evaluates every unit whose return or filter table is named
// in updates, against the committed transaction tx, and returns the
// per-subscriber deltas to send. Units with no observable change are
// omitted entirely, matching EvalIncr's empty-delta short circuit —
// Dispatch never hands a caller a zero-op envelope to forward. auth is
// threaded through to each unit's EvalIncr; today every unit is
// evaluated under the same identity, since row-level access control
// per subscriber is not yet implemented (see authctx).
func (r *Registry) Dispatch(ctx context.Context, db storage.RelationalDB, tx storage.Tx, updates []storage.DatabaseTableUpdate, auth authctx.AuthCtx) (map[hash.QueryHash]*storage.DatabaseTableUpdate, error) {
	candidates := r.candidates(updates)
	if len(candidates) == 0 {
		return nil, nil
	}

	out := make(map[hash.QueryHash]*storage.DatabaseTableUpdate, len(candidates))
	for h, unit := range candidates {
		delta, err := unit.EvalIncr(ctx, db, tx, updates, auth)
		if err != nil {
			return nil, dberror.Wrapf(err, "dispatch: evaluating subscriber %s", h)
		}
		if delta != nil {
			out[h] = delta
		}
	}
	return out, nil
}

func (r *Registry) candidates(updates []storage.DatabaseTableUpdate) map[hash.QueryHash]*ExecutionUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[hash.QueryHash]*ExecutionUnit)
	for _, u := range updates {
		for h := range r.byTable[u.TableID] {
			if e, ok := r.entries[h]; ok {
				out[h] = e.unit
			}
		}
	}
	return out
}
