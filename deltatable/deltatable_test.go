package deltatable

import (
	"testing"

	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/storage"
)

func TestToMemTableWithOpTypeAppendsTagColumn(t *testing.T) {
	header := rel.NewHeader("orders", "id", "customer_id")
	update := storage.DatabaseTableUpdate{
		TableID:   1,
		TableName: "orders",
		Ops: []storage.TableOp{
			{OpType: storage.OpInsert, Row: rel.NewRow(int64(1), int64(3))},
			{OpType: storage.OpDelete, Row: rel.NewRow(int64(2), int64(4))},
		},
	}
	mem := ToMemTableWithOpType(header, update)

	if len(header.Fields) != 2 {
		t.Fatalf("expected the original header to be left untouched, got %d fields", len(header.Fields))
	}
	if _, ok := mem.Header.FindPosByName(OpTypeFieldName); !ok {
		t.Fatalf("expected the augmented header to carry %q", OpTypeFieldName)
	}
	if len(mem.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(mem.Rows))
	}
	if mem.Rows[0].Values[2] != uint8(storage.OpInsert) {
		t.Fatalf("expected first row tagged insert, got %v", mem.Rows[0].Values[2])
	}
	if mem.Rows[1].Values[2] != uint8(storage.OpDelete) {
		t.Fatalf("expected second row tagged delete, got %v", mem.Rows[1].Values[2])
	}
}
