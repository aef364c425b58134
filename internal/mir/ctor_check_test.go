package mir_test

import (
	"testing"

	"surge/internal/diag"
	"surge/internal/layout"
	"surge/internal/mir"
	"surge/internal/source"
)

func newCtorLayout() *layout.StructLayout {
	return &layout.StructLayout{
		Name: "Point",
		Fields: []layout.FieldLayout{
			{Name: "x", Index: 0, IsRequired: true},
			{Name: "y", Index: 1, IsRequired: true},
		},
	}
}

func selfField(local mir.LocalID, idx int) mir.Place {
	return mir.Place{Kind: mir.PlaceLocal, Local: local, Proj: []mir.PlaceProj{{Kind: mir.PlaceProjField, FieldIdx: idx}}}
}

func TestCheckConstructorFieldInit_AllPathsAssigned(t *testing.T) {
	self := mir.LocalID(0)
	f := &mir.Func{
		ScopeLocal: self,
		Entry:      0,
		Blocks: []mir.Block{
			{ID: 0, Instrs: []mir.Instr{
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{Dst: selfField(self, 0)}},
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{Dst: selfField(self, 1)}},
			}, Term: mir.Terminator{Kind: mir.TermReturn}},
		},
	}
	var diags []*diag.Diagnostic
	mir.CheckConstructorFieldInit(f, self, newCtorLayout(), &diags)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %d: %+v", len(diags), diags)
	}
}

func TestCheckConstructorFieldInit_MissingOnOnePath(t *testing.T) {
	self := mir.LocalID(0)
	f := &mir.Func{
		ScopeLocal: self,
		Entry:      0,
		Span:       source.Span{},
		Blocks: []mir.Block{
			{ID: 0, Instrs: []mir.Instr{
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{Dst: selfField(self, 0)}},
			}, Term: mir.Terminator{Kind: mir.TermIf, If: mir.IfTerm{Then: 1, Else: 2}}},
			{ID: 1, Instrs: []mir.Instr{
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{Dst: selfField(self, 1)}},
			}, Term: mir.Terminator{Kind: mir.TermGoto, Goto: mir.GotoTerm{Target: 3}}},
			{ID: 2, Term: mir.Terminator{Kind: mir.TermGoto, Goto: mir.GotoTerm{Target: 3}}},
			{ID: 3, Term: mir.Terminator{Kind: mir.TermReturn}},
		},
	}
	var diags []*diag.Diagnostic
	mir.CheckConstructorFieldInit(f, self, newCtorLayout(), &diags)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic for field y unassigned on the else path, got %d", len(diags))
	}
	if diags[0].Code != diag.MirCtorFieldNotAssigned {
		t.Fatalf("expected MirCtorFieldNotAssigned, got %v", diags[0].Code)
	}
}
