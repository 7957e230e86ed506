package rel

import "testing"

func TestHeaderFindPosByName(t *testing.T) {
	h := NewHeader("orders", "id", "customer_id")
	pos, ok := h.FindPosByName("customer_id")
	if !ok || pos != 1 {
		t.Fatalf("expected customer_id at pos 1, got pos=%d ok=%v", pos, ok)
	}
	if _, ok := h.FindPosByName("missing"); ok {
		t.Fatalf("expected missing column to not be found")
	}
}

func TestHeaderWithColumnDoesNotMutate(t *testing.T) {
	h := NewHeader("orders", "id")
	augmented := h.WithColumn(OpTypeColumn)
	if len(h.Fields) != 1 {
		t.Fatalf("expected original header untouched, got %d fields", len(h.Fields))
	}
	if len(augmented.Fields) != 2 {
		t.Fatalf("expected augmented header to have 2 fields, got %d", len(augmented.Fields))
	}
	if augmented.Fields[1].Name != OpTypeColumn {
		t.Fatalf("expected trailing column %q, got %q", OpTypeColumn, augmented.Fields[1].Name)
	}
}

func TestHeaderProjectUnknownColumn(t *testing.T) {
	h := NewHeader("orders", "id", "customer_id")
	if _, err := h.Project([]string{"nope"}); err == nil {
		t.Fatalf("expected an error projecting an unknown column")
	}
}

func TestRowWithAppendedAndWithoutPos(t *testing.T) {
	r := NewRow(int64(1), int64(3))
	tagged := r.WithAppended(uint8(1))
	if len(tagged.Values) != 3 {
		t.Fatalf("expected 3 values after append, got %d", len(tagged.Values))
	}
	stripped, tag := tagged.WithoutPos(2)
	if tag.(uint8) != 1 {
		t.Fatalf("expected stripped tag of 1, got %v", tag)
	}
	if len(stripped.Values) != 2 || stripped.Values[0] != int64(1) || stripped.Values[1] != int64(3) {
		t.Fatalf("expected original row restored, got %+v", stripped)
	}
}

func TestRowCloneIsIndependent(t *testing.T) {
	r := NewRow(int64(1))
	clone := r.Clone()
	clone.Values[0] = int64(2)
	if r.Values[0] != int64(1) {
		t.Fatalf("expected original row unaffected by mutating the clone")
	}
}

func TestSourceSetAllocatesSequentialIDs(t *testing.T) {
	var sources SourceSet
	first := sources.AddMemTable(&MemTableData{Header: NewHeader("t")})
	second := sources.AddMemTable(&MemTableData{Header: NewHeader("t")})
	if first.MemTable.SourceID != 1 || second.MemTable.SourceID != 2 {
		t.Fatalf("expected sequential source ids 1 and 2, got %d and %d",
			first.MemTable.SourceID, second.MemTable.SourceID)
	}
	if sources.Len() != 2 {
		t.Fatalf("expected 2 bound tables, got %d", sources.Len())
	}
}

func TestSourceExprGetDbTable(t *testing.T) {
	db := NewDbSource(1, NewHeader("orders", "id"))
	if _, ok := db.GetDbTable(); !ok {
		t.Fatalf("expected a DbTable source to report ok")
	}
	mem := NewMemSource(1, NewHeader("orders", "id"))
	if _, ok := mem.GetDbTable(); ok {
		t.Fatalf("expected a MemTable source to not report a DbTable")
	}
}
