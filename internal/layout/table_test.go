package layout_test

import (
	"testing"

	"surge/internal/diag"
	"surge/internal/layout"
	"surge/internal/source"
	"surge/internal/types"
)

func newTestTable(t *testing.T) (*layout.Table, *types.Interner) {
	t.Helper()
	strs := source.NewInterner()
	in := types.NewInterner()
	in.Strings = strs
	tbl := layout.NewTable(layout.X86_64LinuxGNU(), in)
	return tbl, in
}

func TestTable_StructBackfillOrdersFields(t *testing.T) {
	tbl, in := newTestTable(t)

	name := in.Strings.Intern("Point")
	id := in.RegisterStruct(name, source.Span{})
	in.SetStructFields(id, []types.StructField{
		{Name: in.Strings.Intern("x"), Type: in.Builtins().Int32},
		{Name: in.Strings.Intern("y"), Type: in.Builtins().Int32},
	})

	sl := tbl.RegisterStructType(id)
	if sl == nil {
		t.Fatal("expected struct layout")
	}
	tbl.BackfillMissingOffsets()

	if sl.Size == nil || *sl.Size != 8 {
		t.Fatalf("expected size 8, got %v", sl.Size)
	}
	if sl.Align == nil || *sl.Align != 4 {
		t.Fatalf("expected align 4, got %v", sl.Align)
	}
	if sl.Fields[0].Offset == nil || *sl.Fields[0].Offset != 0 {
		t.Fatalf("expected field x at offset 0, got %v", sl.Fields[0].Offset)
	}
	if sl.Fields[1].Offset == nil || *sl.Fields[1].Offset != 4 {
		t.Fatalf("expected field y at offset 4, got %v", sl.Fields[1].Offset)
	}
}

func TestTable_LayoutForNameDisambiguatesTrailingFragment(t *testing.T) {
	tbl, in := newTestTable(t)

	name := in.Strings.Intern("pkg::Widget")
	id := in.RegisterStruct(name, source.Span{})
	in.SetStructFields(id, []types.StructField{{Name: in.Strings.Intern("n"), Type: in.Builtins().Int32}})
	tbl.RegisterStructType(id)
	tbl.BackfillMissingOffsets()

	l, ok := tbl.LayoutForName("Widget")
	if !ok {
		t.Fatal("expected trailing-fragment match for Widget")
	}
	if l.Name() != "pkg::Widget" {
		t.Fatalf("expected pkg::Widget, got %s", l.Name())
	}
}

func TestTable_AutoTraitsMeetOverFields(t *testing.T) {
	tbl, in := newTestTable(t)

	name := in.Strings.Intern("Pair")
	id := in.RegisterStruct(name, source.Span{})
	strField := in.Builtins().String
	in.SetStructFields(id, []types.StructField{
		{Name: in.Strings.Intern("a"), Type: in.Builtins().Int32},
		{Name: in.Strings.Intern("b"), Type: strField},
	})
	tbl.RegisterStructType(id)
	tbl.BackfillMissingOffsets()
	tbl.FinalizeAutoTraits()

	traits := tbl.AutoTraitsForType(id)
	if traits.Copy != layout.No {
		t.Fatalf("expected Copy=No because one field is String, got %v", traits.Copy)
	}
}

func TestTable_NullableLayoutPlacesHasValueAtZero(t *testing.T) {
	tbl, in := newTestTable(t)

	l := tbl.EnsureNullableLayout(in.Builtins().Int32)
	if l.Kind != layout.RecordStruct {
		t.Fatal("expected struct record for nullable")
	}
	f := l.Struct.Fields[0]
	if f.Name != "HasValue" || f.Offset == nil || *f.Offset != 0 {
		t.Fatalf("expected HasValue at offset 0, got %+v", f)
	}
}

func TestTable_MmioOverlapReported(t *testing.T) {
	tbl, in := newTestTable(t)

	name := in.Strings.Intern("Regs")
	id := in.RegisterStruct(name, source.Span{})
	in.SetStructFields(id, []types.StructField{
		{Name: in.Strings.Intern("ctrl"), Type: in.Builtins().Uint32},
		{Name: in.Strings.Intern("status"), Type: in.Builtins().Uint32},
	})
	sl := tbl.RegisterStructType(id)
	sl.Fields[0].Mmio = &layout.FieldMmio{Offset: 0, Width: 32, Access: layout.MmioReadWrite}
	sl.Fields[1].Mmio = &layout.FieldMmio{Offset: 2, Width: 32, Access: layout.MmioReadOnly}
	sl.Mmio = true
	tbl.BackfillMissingOffsets()

	var found bool
	for _, d := range tbl.Diagnostics() {
		if d.Code == diag.LayoutMmioOverlap {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a LayoutMmioOverlap diagnostic, got %d diagnostics", len(tbl.Diagnostics()))
	}
}
