package borrowck_test

import (
	"testing"

	"surge/internal/borrowck"
	"surge/internal/diag"
	"surge/internal/layout"
	"surge/internal/mir"
	"surge/internal/source"
	"surge/internal/types"
)

func newLayoutTable(t *testing.T) (*layout.Table, *types.Interner) {
	t.Helper()
	strs := source.NewInterner()
	in := types.NewInterner()
	in.Strings = strs
	return layout.NewTable(layout.X86_64LinuxGNU(), in), in
}

func hasCode(res *borrowck.Result, code diag.Code) bool {
	for _, d := range res.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

func localPlace(id mir.LocalID) mir.Place {
	return mir.Place{Kind: mir.PlaceLocal, Local: id}
}

// out-parameter-not-assigned: a function with an Out local never assigned
// before Return must diagnose BorrowOutNotAssigned.
func TestBorrowCheck_OutParamNotAssigned(t *testing.T) {
	tbl, _ := newLayoutTable(t)
	f := &mir.Func{
		Entry: 0,
		Locals: []mir.Local{
			{Name: "result", Flags: mir.LocalFlagParamOut},
		},
		ParamCount: 1,
		Blocks: []mir.Block{
			{ID: 0, Term: mir.Terminator{Kind: mir.TermReturn}},
		},
	}
	res := borrowck.BorrowCheckFunctionWithLayouts(f, tbl)
	if !hasCode(res, diag.BorrowOutNotAssigned) {
		t.Fatalf("expected BorrowOutNotAssigned, got %+v", res.Diagnostics)
	}
}

// immutable reassignment: writing to a non-mutable local twice diagnoses
// BorrowImmutableWrite on the second write.
func TestBorrowCheck_ImmutableReassignment(t *testing.T) {
	tbl, _ := newLayoutTable(t)
	self := mir.LocalID(0)
	f := &mir.Func{
		Entry: 0,
		Locals: []mir.Local{
			{Name: "x"},
		},
		Blocks: []mir.Block{
			{ID: 0, Instrs: []mir.Instr{
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{Dst: localPlace(self)}},
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{Dst: localPlace(self)}},
			}, Term: mir.Terminator{Kind: mir.TermReturn}},
		},
	}
	res := borrowck.BorrowCheckFunctionWithLayouts(f, tbl)
	if !hasCode(res, diag.BorrowImmutableWrite) {
		t.Fatalf("expected BorrowImmutableWrite on the second assignment, got %+v", res.Diagnostics)
	}
}

// use-of-uninitialized: reading a local before any assignment diagnoses
// BorrowUninitializedUse.
func TestBorrowCheck_UseOfUninitialized(t *testing.T) {
	tbl, _ := newLayoutTable(t)
	x := mir.LocalID(0)
	y := mir.LocalID(1)
	f := &mir.Func{
		Entry: 0,
		Locals: []mir.Local{
			{Name: "x"},
			{Name: "y"},
		},
		Blocks: []mir.Block{
			{ID: 0, Instrs: []mir.Instr{
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
					Dst: localPlace(y),
					Src: mir.RValue{Kind: mir.RValueUse, Use: mir.Operand{Kind: mir.OperandCopy, Place: localPlace(x)}},
				}},
			}, Term: mir.Terminator{Kind: mir.TermReturn}},
		},
	}
	res := borrowck.BorrowCheckFunctionWithLayouts(f, tbl)
	if !hasCode(res, diag.BorrowUninitializedUse) {
		t.Fatalf("expected BorrowUninitializedUse, got %+v", res.Diagnostics)
	}
}

// unique-borrow-across-await: borrowing a local uniquely and then awaiting
// while it is still active (not pinned) diagnoses BorrowAcrossAwait.
func TestBorrowCheck_UniqueBorrowAcrossAwait(t *testing.T) {
	tbl, _ := newLayoutTable(t)
	fut := mir.LocalID(0)
	tmp := mir.LocalID(1)
	f := &mir.Func{
		Entry:   0,
		IsAsync: true,
		Locals: []mir.Local{
			{Name: "fut"},
			{Name: "tmp"},
		},
		Blocks: []mir.Block{
			{ID: 0, Instrs: []mir.Instr{
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{Dst: localPlace(fut)}},
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
					Dst: localPlace(tmp),
					Src: mir.RValue{Kind: mir.RValueUse, Use: mir.Operand{
						Kind: mir.OperandBorrow,
						Borrow: mir.BorrowOperand{
							ID: 1, Kind: mir.BorrowUnique, Place: localPlace(fut),
						},
					}},
				}},
				{Kind: mir.InstrAwait, Await: mir.AwaitInstr{Task: mir.Operand{Kind: mir.OperandCopy, Place: localPlace(fut)}}},
			}, Term: mir.Terminator{Kind: mir.TermReturn}},
		},
	}
	res := borrowck.BorrowCheckFunctionWithLayouts(f, tbl)
	if !hasCode(res, diag.BorrowAcrossAwait) {
		t.Fatalf("expected BorrowAcrossAwait, got %+v", res.Diagnostics)
	}
}

// pinned unique borrow without ThreadSafe: the borrowed local is `@pinned`
// but its type's ThreadSafe trait is No (Rc<T>), so await must still
// diagnose, citing BorrowPinnedNotThreadSafe instead of BorrowAcrossAwait.
func TestBorrowCheck_PinnedUniqueBorrowNotThreadSafe(t *testing.T) {
	tbl, in := newLayoutTable(t)
	rcTy := in.Intern(types.MakeRc(in.Builtins().Int32))
	fut := mir.LocalID(0)
	tmp := mir.LocalID(1)
	f := &mir.Func{
		Entry:   0,
		IsAsync: true,
		Locals: []mir.Local{
			{Name: "fut", Type: rcTy, Flags: mir.LocalFlagPinned},
			{Name: "tmp"},
		},
		Blocks: []mir.Block{
			{ID: 0, Instrs: []mir.Instr{
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{Dst: localPlace(fut)}},
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
					Dst: localPlace(tmp),
					Src: mir.RValue{Kind: mir.RValueUse, Use: mir.Operand{
						Kind: mir.OperandBorrow,
						Borrow: mir.BorrowOperand{
							ID: 1, Kind: mir.BorrowUnique, Place: localPlace(fut),
						},
					}},
				}},
				{Kind: mir.InstrAwait, Await: mir.AwaitInstr{Task: mir.Operand{Kind: mir.OperandCopy, Place: localPlace(fut)}}},
			}, Term: mir.Terminator{Kind: mir.TermReturn}},
		},
	}
	res := borrowck.BorrowCheckFunctionWithLayouts(f, tbl)
	if !hasCode(res, diag.BorrowPinnedNotThreadSafe) {
		t.Fatalf("expected BorrowPinnedNotThreadSafe, got %+v", res.Diagnostics)
	}
}

// union-view-mismatch: writing view index 1 after view index 0 was last
// active on the same union-typed local diagnoses BorrowUnionViewMismatch.
func TestBorrowCheck_UnionViewMismatch(t *testing.T) {
	tbl, in := newLayoutTable(t)
	name := in.Strings.Intern("AnyValue")
	unionID := in.RegisterUnion(name, source.Span{})
	in.SetUnionMembers(unionID, []types.UnionMember{
		{Kind: types.UnionMemberType, Type: in.Builtins().Int32},
		{Kind: types.UnionMemberType, Type: in.Builtins().Bool},
	})

	u := mir.LocalID(0)
	f := &mir.Func{
		Entry: 0,
		Locals: []mir.Local{
			{Name: "u", Type: unionID},
		},
		Blocks: []mir.Block{
			{ID: 0, Instrs: []mir.Instr{
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
					Dst: mir.Place{Kind: mir.PlaceLocal, Local: u, Proj: []mir.PlaceProj{{Kind: mir.PlaceProjField, FieldIdx: 0}}},
				}},
				{Kind: mir.InstrAssign, Assign: mir.AssignInstr{
					Dst: mir.Place{Kind: mir.PlaceLocal, Local: u, Proj: []mir.PlaceProj{{Kind: mir.PlaceProjField, FieldIdx: 1}}},
				}},
			}, Term: mir.Terminator{Kind: mir.TermReturn}},
		},
	}
	res := borrowck.BorrowCheckFunctionWithLayouts(f, tbl)
	if !hasCode(res, diag.BorrowUnionViewMismatch) {
		t.Fatalf("expected BorrowUnionViewMismatch, got %+v", res.Diagnostics)
	}
}
