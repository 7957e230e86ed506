// Package rel defines the relational value model shared by the
// storage engine, the VM, and the subscription core: table
// identities, row headers, rows, and the binding of in-memory sources
// into a physical plan.
package rel

import "fmt"

// OpTypeColumn is the trailing synthetic column incremental Select
// plans use to carry each row's insert/delete operation through the
// pipeline. It is always the last column of the augmented schema.
const OpTypeColumn = "__op_type"

// TableID identifies a concrete database table.
type TableID uint32

// Field describes one column of a Header.
type Field struct {
	Name string
}

// Header describes the shape of a table or an intermediate result:
// the table it originated from (for diagnostics) and its ordered list
// of fields. Field position is significant — a [Row]'s values are
// positional, matching the field order of the Header that produced it.
type Header struct {
	TableName string
	Fields    []Field
}

// NewHeader builds a Header from field names.
func NewHeader(tableName string, fieldNames ...string) Header {
	fields := make([]Field, len(fieldNames))
	for i, n := range fieldNames {
		fields[i] = Field{Name: n}
	}
	return Header{TableName: tableName, Fields: fields}
}

// FindPosByName returns the position of the named field, and whether
// it was found.
func (h Header) FindPosByName(name string) (int, bool) {
	for i, f := range h.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// WithColumn returns a new Header with an additional trailing field.
// The receiver's Fields slice is never mutated.
func (h Header) WithColumn(name string) Header {
	fields := make([]Field, len(h.Fields)+1)
	copy(fields, h.Fields)
	fields[len(h.Fields)] = Field{Name: name}
	return Header{TableName: h.TableName, Fields: fields}
}

// Project returns a new Header containing only the named columns, in
// the order requested.
func (h Header) Project(names []string) (Header, error) {
	fields := make([]Field, len(names))
	for i, n := range names {
		if _, ok := h.FindPosByName(n); !ok {
			return Header{}, fmt.Errorf("rel: unknown column %q in table %q", n, h.TableName)
		}
		fields[i] = Field{Name: n}
	}
	return Header{TableName: h.TableName, Fields: fields}, nil
}

// Row is a single tuple of values, positional against some Header.
// It is the Go analogue of a ProductValue.
type Row struct {
	Values []any
}

// NewRow constructs a Row from literal values.
func NewRow(values ...any) Row {
	return Row{Values: values}
}

// Clone returns a deep-enough copy of the row for safe mutation
// (used when stripping or appending columns).
func (r Row) Clone() Row {
	values := make([]any, len(r.Values))
	copy(values, r.Values)
	return Row{Values: values}
}

// WithAppended returns a new row with v appended as the last value.
func (r Row) WithAppended(v any) Row {
	values := make([]any, len(r.Values)+1)
	copy(values, r.Values)
	values[len(r.Values)] = v
	return Row{Values: values}
}

// WithoutPos returns a new row with the value at pos removed, along
// with that value.
func (r Row) WithoutPos(pos int) (Row, any) {
	values := make([]any, 0, len(r.Values)-1)
	values = append(values, r.Values[:pos]...)
	values = append(values, r.Values[pos+1:]...)
	return Row{Values: values}, r.Values[pos]
}

// Project returns a new row containing only the values at the given
// positions, in order.
func (r Row) Project(positions []int) Row {
	values := make([]any, len(positions))
	for i, p := range positions {
		values[i] = r.Values[p]
	}
	return Row{Values: values}
}

// SourceKind distinguishes the two flavors of relational source a
// physical plan can read from.
type SourceKind int

const (
	// SourceDbTable reads rows from the storage engine.
	SourceDbTable SourceKind = iota
	// SourceMemTable reads rows from a transient, in-memory table
	// bound at evaluation time via a SourceSet.
	SourceMemTable
)

// DbTable names a concrete table in the storage engine.
type DbTable struct {
	TableID TableID
	Header  Header
}

// MemTable is a symbolic reference to an in-memory source within a
// physical plan; the concrete rows are supplied separately by a
// SourceSet at evaluation time.
type MemTable struct {
	SourceID uint32
	Header   Header
}

// SourceExpr is a tagged union of the two kinds of relational source.
type SourceExpr struct {
	Kind     SourceKind
	DbTable  *DbTable
	MemTable *MemTable
}

// NewDbSource builds a SourceExpr reading from a concrete table.
func NewDbSource(id TableID, header Header) SourceExpr {
	return SourceExpr{Kind: SourceDbTable, DbTable: &DbTable{TableID: id, Header: header}}
}

// NewMemSource builds a SourceExpr reading from a symbolic in-memory
// table identified by sourceID.
func NewMemSource(sourceID uint32, header Header) SourceExpr {
	return SourceExpr{Kind: SourceMemTable, MemTable: &MemTable{SourceID: sourceID, Header: header}}
}

// Header returns the header of whichever source variant this is.
func (s SourceExpr) Header() Header {
	if s.Kind == SourceDbTable {
		return s.DbTable.Header
	}
	return s.MemTable.Header
}

// GetDbTable returns the DbTable payload, or ok=false if s is a
// MemTable source.
func (s SourceExpr) GetDbTable() (*DbTable, bool) {
	if s.Kind == SourceDbTable {
		return s.DbTable, true
	}
	return nil, false
}

// MemTableData holds the concrete rows for one symbolic MemTable
// source, bound into a SourceSet at evaluation time.
type MemTableData struct {
	Header Header
	Rows   []Row
}

// SourceSet binds symbolic in-memory source identifiers within a
// physical plan to concrete in-memory tables at run time. The zero
// value is an empty set ready to use.
type SourceSet struct {
	tables map[uint32]*MemTableData
	nextID uint32
}

// AddMemTable registers data under a freshly allocated source id and
// returns the SourceExpr referencing it.
func (s *SourceSet) AddMemTable(data *MemTableData) SourceExpr {
	if s.tables == nil {
		s.tables = make(map[uint32]*MemTableData)
	}
	s.nextID++
	id := s.nextID
	s.tables[id] = data
	return SourceExpr{Kind: SourceMemTable, MemTable: &MemTable{SourceID: id, Header: data.Header}}
}

// Get returns the data bound to sourceID, if any.
func (s *SourceSet) Get(sourceID uint32) (*MemTableData, bool) {
	if s == nil || s.tables == nil {
		return nil, false
	}
	d, ok := s.tables[sourceID]
	return d, ok
}

// Len reports how many in-memory tables are bound.
func (s *SourceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tables)
}
