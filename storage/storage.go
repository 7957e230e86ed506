// Package storage is the execution core's storage-engine
// collaborator. The real storage engine (spec.md §1) is an external
// collaborator supplying transactional read access, table metadata,
// and per-transaction delta streams; this package is a minimal,
// in-process, single-writer implementation of that contract, enough
// to let ExecutionUnit read through something real in tests and the
// demo CLI.
package storage

import (
	"context"
	"sync"

	"github.com/mantisdb/livequery/dberror"
	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/vm"
)

// OpType is the operation carried by one TableOp: 0 is delete, 1 is
// insert, matching the wire encoding in spec.md §6.
type OpType uint8

const (
	OpDelete OpType = 0
	OpInsert OpType = 1
)

// TableOp is a single row-level change within a DatabaseTableUpdate.
type TableOp struct {
	OpType OpType
	Row    rel.Row
}

// DatabaseTableUpdate is the delta envelope produced by a committed
// transaction for one table, and the envelope ExecutionUnit.Eval /
// EvalIncr return for a subscriber.
type DatabaseTableUpdate struct {
	TableID   rel.TableID
	TableName string
	Ops       []TableOp
}

// RelationalDB is the subset of the storage engine's handle that the
// VM and the subscription core depend on: an address identifier and
// table metadata lookup.
type RelationalDB interface {
	vm.Catalog
	TableHeader(id rel.TableID) (rel.Header, bool)
}

// Tx is a read-only transaction view. Its lifetime must dominate any
// evaluation performed through it; the execution core never opens,
// commits, or aborts a Tx itself (spec.md §5).
type Tx interface {
	vm.TableReader
}

// Engine is the in-memory, single-writer relational storage engine.
// Writers are fully serialized by commitMu; readers see a
// snapshot taken at Begin, so concurrent evaluation never observes a
// partial commit. There is no WAL, checkpointing, or durability layer
// here — those are concerns of a persistent storage engine, which
// spec.md places outside this module's scope.
type Engine struct {
	address string

	mu      sync.RWMutex
	tables  map[rel.TableID]*table
	byName  map[string]rel.TableID
	nextID  rel.TableID
	commitMu sync.Mutex
}

type table struct {
	header  rel.Header
	rows    []rel.Row
	indexes map[string]bool // indexed column names
}

// NewEngine creates an empty engine identified by address.
func NewEngine(address string) *Engine {
	return &Engine{
		address: address,
		tables:  make(map[rel.TableID]*table),
		byName:  make(map[string]rel.TableID),
	}
}

func (e *Engine) Address() string { return e.address }

// CreateTable registers a new table with the given header and returns
// its id.
func (e *Engine) CreateTable(header rel.Header) (rel.TableID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.byName[header.TableName]; exists {
		return 0, dberror.Wrapf(dberror.ErrStorageRead, "table %q already exists", header.TableName)
	}
	e.nextID++
	id := e.nextID
	e.tables[id] = &table{header: header, indexes: make(map[string]bool)}
	e.byName[header.TableName] = id
	return id, nil
}

// CreateIndex marks column as indexed on tableID, enabling IndexSeek.
func (e *Engine) CreateIndex(tableID rel.TableID, column string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[tableID]
	if !ok {
		return dberror.Wrapf(dberror.ErrStorageRead, "unknown table id %d", tableID)
	}
	if _, ok := t.header.FindPosByName(column); !ok {
		return dberror.Wrapf(dberror.ErrStorageRead, "unknown column %q on table %q", column, t.header.TableName)
	}
	t.indexes[column] = true
	return nil
}

// TableHeader implements RelationalDB.
func (e *Engine) TableHeader(id rel.TableID) (rel.Header, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[id]
	if !ok {
		return rel.Header{}, false
	}
	return t.header, true
}

// TableIDByName resolves a table name to an id.
func (e *Engine) TableIDByName(name string) (rel.TableID, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.byName[name]
	return id, ok
}

// Begin opens a read-only snapshot transaction over the engine's
// current committed state.
func (e *Engine) Begin(ctx context.Context) (*EngineTx, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snapshot := make(map[rel.TableID][]rel.Row, len(e.tables))
	for id, t := range e.tables {
		rows := make([]rel.Row, len(t.rows))
		copy(rows, t.rows)
		snapshot[id] = rows
	}
	return &EngineTx{engine: e, snapshot: snapshot}, nil
}

// Commit applies ops to tableID as a single transaction and returns
// the DatabaseTableUpdate describing it, ready to be handed to a
// subscription.Registry for dispatch.
func (e *Engine) Commit(ctx context.Context, tableID rel.TableID, ops []TableOp) (DatabaseTableUpdate, error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	t, ok := e.tables[tableID]
	if !ok {
		e.mu.Unlock()
		return DatabaseTableUpdate{}, dberror.Wrapf(dberror.ErrStorageRead, "unknown table id %d", tableID)
	}
	for _, op := range ops {
		switch op.OpType {
		case OpInsert:
			t.rows = append(t.rows, op.Row)
		case OpDelete:
			t.rows = deleteRow(t.rows, op.Row)
		}
	}
	name := t.header.TableName
	e.mu.Unlock()

	return DatabaseTableUpdate{TableID: tableID, TableName: name, Ops: ops}, nil
}

func deleteRow(rows []rel.Row, target rel.Row) []rel.Row {
	for i, r := range rows {
		if rowEqual(r, target) {
			out := make([]rel.Row, 0, len(rows)-1)
			out = append(out, rows[:i]...)
			out = append(out, rows[i+1:]...)
			return out
		}
	}
	return rows
}

func rowEqual(a, b rel.Row) bool {
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}

// EngineTx is a snapshot-isolated read-only transaction handle over an
// Engine.
type EngineTx struct {
	engine   *Engine
	snapshot map[rel.TableID][]rel.Row
}

// Iter returns a row iterator over tableID's snapshot contents.
func (tx *EngineTx) Iter(ctx context.Context, tableID rel.TableID) (vm.RowIter, error) {
	rows, ok := tx.snapshot[tableID]
	if !ok {
		return nil, dberror.Wrapf(dberror.ErrStorageRead, "unknown table id %d", tableID)
	}
	return &snapshotIter{rows: rows}, nil
}

// IndexSeek returns rows from tableID's snapshot whose column equals
// value. The in-memory engine always has every row available, so this
// is a linear scan with an equality filter rather than a true index
// probe; an index must still have been registered via CreateIndex to
// use this method, keeping the index-side/probe-side distinction a
// join plan depends on meaningful even without a real index structure.
func (tx *EngineTx) IndexSeek(ctx context.Context, tableID rel.TableID, column string, value any) (vm.RowIter, error) {
	tx.engine.mu.RLock()
	t, ok := tx.engine.tables[tableID]
	tx.engine.mu.RUnlock()
	if !ok {
		return nil, dberror.Wrapf(dberror.ErrStorageRead, "unknown table id %d", tableID)
	}
	if !t.indexes[column] {
		return nil, dberror.Wrapf(dberror.ErrStorageRead, "column %q is not indexed on table %q", column, t.header.TableName)
	}
	pos, ok := t.header.FindPosByName(column)
	if !ok {
		return nil, dberror.Wrapf(dberror.ErrStorageRead, "unknown column %q", column)
	}
	rows := tx.snapshot[tableID]
	var out []rel.Row
	for _, r := range rows {
		if r.Values[pos] == value {
			out = append(out, r)
		}
	}
	return &snapshotIter{rows: out}, nil
}

type snapshotIter struct {
	rows []rel.Row
	pos  int
}

func (it *snapshotIter) Next() (rel.Row, bool, error) {
	if it.pos >= len(it.rows) {
		return rel.Row{}, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}
