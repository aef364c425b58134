package borrowck

import (
	"surge/internal/diag"
	"surge/internal/mir"
	"surge/internal/symbols"
	"surge/internal/types"
)

// transferInstr applies the per-statement transfer rules of §4.5 to one
// instruction, mutating s in place.
func (c *checker) transferInstr(block mir.BlockID, stmt int, instr *mir.Instr, s *BorrowState) {
	switch instr.Kind {
	case mir.InstrAssign:
		c.readOperand(block, stmt, instr.Assign.Src.Use, s)
		c.readRValue(block, stmt, &instr.Assign.Src, s)
		c.transferAssign(block, stmt, instr.Assign.Dst, &instr.Assign.Src, s)
	case mir.InstrCall:
		c.transferCall(block, stmt, &instr.Call, s)
	case mir.InstrDrop:
		c.releasePlaceLoans(instr.Drop.Place, s)
		c.markMoved(instr.Drop.Place, s)
	case mir.InstrEndBorrow:
		c.releasePlaceLoans(instr.EndBorrow.Place, s)
	case mir.InstrAwait:
		c.readOperand(block, stmt, instr.Await.Task, s)
		c.checkAwait(block, stmt, s)
		if instr.Await.Dst.IsValid() {
			c.assignPlace(block, stmt, instr.Await.Dst, s)
		}
	case mir.InstrSpawn:
		c.readOperand(block, stmt, instr.Spawn.Value, s)
		if instr.Spawn.Dst.IsValid() {
			c.assignPlace(block, stmt, instr.Spawn.Dst, s)
		}
	case mir.InstrPoll:
		c.readOperand(block, stmt, instr.Poll.Task, s)
		if instr.Poll.Dst.IsValid() {
			c.assignPlace(block, stmt, instr.Poll.Dst, s)
		}
	case mir.InstrJoinAll:
		c.readOperand(block, stmt, instr.JoinAll.Scope, s)
		if instr.JoinAll.Dst.IsValid() {
			c.assignPlace(block, stmt, instr.JoinAll.Dst, s)
		}
	case mir.InstrChanSend:
		c.readOperand(block, stmt, instr.ChanSend.Channel, s)
		c.readOperand(block, stmt, instr.ChanSend.Value, s)
	case mir.InstrChanRecv:
		c.readOperand(block, stmt, instr.ChanRecv.Channel, s)
		if instr.ChanRecv.Dst.IsValid() {
			c.assignPlace(block, stmt, instr.ChanRecv.Dst, s)
		}
	case mir.InstrTimeout:
		c.readOperand(block, stmt, instr.Timeout.Task, s)
		c.readOperand(block, stmt, instr.Timeout.Ms, s)
		if instr.Timeout.Dst.IsValid() {
			c.assignPlace(block, stmt, instr.Timeout.Dst, s)
		}
	case mir.InstrSelect:
		for _, arm := range instr.Select.Arms {
			c.readOperand(block, stmt, arm.Task, s)
			c.readOperand(block, stmt, arm.Channel, s)
			c.readOperand(block, stmt, arm.Value, s)
			c.readOperand(block, stmt, arm.Ms, s)
		}
		if instr.Select.Dst.IsValid() {
			c.assignPlace(block, stmt, instr.Select.Dst, s)
		}
	}
}

// readRValue walks the operand positions an RValue carries beyond .Use
// (binary/unary/cast/literal/field/index/tag/type-test components), so
// initialization and move checks see every operand, not only a bare Use.
func (c *checker) readRValue(block mir.BlockID, stmt int, rv *mir.RValue, s *BorrowState) {
	switch rv.Kind {
	case mir.RValueUnaryOp:
		c.readOperand(block, stmt, rv.Unary.Operand, s)
	case mir.RValueBinaryOp:
		c.readOperand(block, stmt, rv.Binary.Left, s)
		c.readOperand(block, stmt, rv.Binary.Right, s)
	case mir.RValueCast:
		c.readOperand(block, stmt, rv.Cast.Value, s)
	case mir.RValueStructLit:
		for _, fld := range rv.StructLit.Fields {
			c.readOperand(block, stmt, fld.Value, s)
		}
	case mir.RValueArrayLit:
		for _, e := range rv.ArrayLit.Elems {
			c.readOperand(block, stmt, e, s)
		}
	case mir.RValueTupleLit:
		for _, e := range rv.TupleLit.Elems {
			c.readOperand(block, stmt, e, s)
		}
	case mir.RValueField:
		c.readOperand(block, stmt, rv.Field.Object, s)
	case mir.RValueIndex:
		c.readOperand(block, stmt, rv.Index.Object, s)
		c.readOperand(block, stmt, rv.Index.Index, s)
	case mir.RValueTagTest:
		c.readOperand(block, stmt, rv.TagTest.Value, s)
	case mir.RValueTagPayload:
		c.readOperand(block, stmt, rv.TagPayload.Value, s)
	case mir.RValueIterInit:
		c.readOperand(block, stmt, rv.IterInit.Iterable, s)
	case mir.RValueIterNext:
		c.readOperand(block, stmt, rv.IterNext.Iter, s)
	case mir.RValueTypeTest:
		c.readOperand(block, stmt, rv.TypeTest.Value, s)
	case mir.RValueHeirTest:
		c.readOperand(block, stmt, rv.HeirTest.Value, s)
	}
}

// readOperand checks initialization, records moves, and realizes Borrow
// operands as fresh active loans.
func (c *checker) readOperand(block mir.BlockID, stmt int, op mir.Operand, s *BorrowState) {
	if op.IsPending() {
		// Pending operands are already diagnosed upstream; skip analysis
		// of this subtree entirely, per the escape-hatch contract.
		return
	}
	switch op.Kind {
	case mir.OperandCopy, mir.OperandMove:
		c.checkInitialized(block, stmt, op.Place, s)
		if op.Kind == mir.OperandMove {
			c.markMoved(op.Place, s)
		}
	case mir.OperandAddrOf, mir.OperandAddrOfMut:
		c.checkInitialized(block, stmt, op.Place, s)
	case mir.OperandBorrow:
		c.realizeBorrow(block, stmt, op.Borrow, s)
	}
}

func (c *checker) checkInitialized(block mir.BlockID, stmt int, p mir.Place, s *BorrowState) {
	if p.Kind != mir.PlaceLocal {
		return
	}
	f, ok := s.Locals[p.Local]
	if !ok {
		return
	}
	if f.Init == Uninit {
		if c.seen.seen(ErrorKey{block, stmt, ErrorUninitializedUse}) {
			return
		}
		c.fresh(errDiag(diag.BorrowUninitializedUse,
			"use of possibly uninitialized binding `"+fmtPlace(p)+"`"))
	}
}

func (c *checker) markMoved(p mir.Place, s *BorrowState) {
	if p.Kind != mir.PlaceLocal || len(p.Proj) != 0 {
		return
	}
	f, ok := s.Locals[p.Local]
	if !ok {
		return
	}
	f.Init = Uninit
	f.LastMoveStmt++
	s.Locals[p.Local] = f
}

func (c *checker) realizeBorrow(block mir.BlockID, stmt int, b mir.BorrowOperand, s *BorrowState) {
	for id, loan := range s.ActiveLoans {
		if !placesEqual(loan.Place, b.Place) {
			continue
		}
		if loan.Kind == mir.BorrowShared && b.Kind == mir.BorrowShared {
			continue
		}
		if c.seen.seen(ErrorKey{block, stmt, ErrorBorrowConflict}) {
			continue
		}
		c.fresh(errDiag(diag.BorrowConflict,
			"cannot borrow `"+fmtPlace(b.Place)+"` while a conflicting borrow is active"))
		_ = id
	}
	if b.Kind == mir.BorrowUnique && b.Place.Kind == mir.PlaceLocal {
		if f, ok := s.Locals[b.Place.Local]; ok && !f.Mutable && len(b.Place.Proj) == 0 {
			if !c.seen.seen(ErrorKey{block, stmt, ErrorImmutableReassign}) {
				c.fresh(errDiag(diag.BorrowImmutableWrite,
					"mutable borrow of immutable binding `"+fmtPlace(b.Place)+"`"))
			}
		}
	}
	s.ActiveLoans[b.ID] = LoanInfo{
		Kind: b.Kind, Place: b.Place, Region: b.Region,
		OriginBlock: block, OriginStmt: stmt, Presence: LoanPresent,
	}
}

func (c *checker) releasePlaceLoans(p mir.Place, s *BorrowState) {
	for id, loan := range s.ActiveLoans {
		if placesEqual(loan.Place, p) {
			delete(s.ActiveLoans, id)
		}
	}
	if p.Kind == mir.PlaceLocal {
		delete(s.UnionLocals, p.Local)
	}
}

func (c *checker) assignPlace(block mir.BlockID, stmt int, p mir.Place, s *BorrowState) {
	if p.Kind != mir.PlaceLocal {
		return
	}
	f, ok := s.Locals[p.Local]
	if !ok {
		f = LocalFacts{}
	}
	f.Init = Init
	f.AssignmentCount++
	f.LastAssignmentStmt = stmt
	s.Locals[p.Local] = f
}

// transferAssign implements the Assign transfer: reassignment-to-immutable,
// write-while-loaned, nullable bookkeeping, and union active-view tracking,
// then marks the destination Init.
func (c *checker) transferAssign(block mir.BlockID, stmt int, dst mir.Place, src *mir.RValue, s *BorrowState) {
	if dst.Kind != mir.PlaceLocal {
		return
	}
	f, ok := s.Locals[dst.Local]
	if !ok {
		f = LocalFacts{}
	}

	if len(dst.Proj) == 0 {
		if f.IsParamIn {
			if !c.seen.seen(ErrorKey{block, stmt, ErrorImmutableParamWrite}) {
				c.fresh(errDiag(diag.BorrowImmutableWrite, "cannot assign to `in` parameter `"+fmtPlace(dst)+"`"))
			}
		} else if !f.Mutable && f.AssignmentCount >= 1 {
			if !c.seen.seen(ErrorKey{block, stmt, ErrorImmutableReassign}) {
				c.fresh(errDiag(diag.BorrowImmutableWrite, "cannot reassign immutable binding `"+fmtPlace(dst)+"`"))
			}
		}
	}

	for id, loan := range s.ActiveLoans {
		if !placesEqual(loan.Place, dst) {
			continue
		}
		if loan.Kind == mir.BorrowShared && src.Kind == mir.RValueUse && src.Use.Kind == mir.OperandCopy {
			continue
		}
		if !c.seen.seen(ErrorKey{block, stmt, ErrorBorrowConflict}) {
			c.fresh(errDiag(diag.BorrowConflict, "cannot write to `"+fmtPlace(dst)+"` while borrowed"))
		}
		_ = id
	}

	if f.Nullable {
		switch {
		case src.Kind == mir.RValueUse && src.Use.Kind == mir.OperandConst && src.Use.Const.Kind == mir.ConstNothing:
			f.NullState = IsNull
		case src.Kind == mir.RValueUse && !src.Use.IsPending():
			f.NullState = NonNull
		default:
			f.NullState = NullUnknown
		}
	} else if src.Kind == mir.RValueUse && src.Use.Kind == mir.OperandConst && src.Use.Const.Kind == mir.ConstNothing {
		if !c.seen.seen(ErrorKey{block, stmt, ErrorNullIntoNonNullable}) {
			c.fresh(errDiag(diag.BorrowUninitializedUse, "cannot assign null into non-nullable place `"+fmtPlace(dst)+"`"))
		}
	}

	if len(dst.Proj) == 1 && dst.Proj[0].Kind == mir.PlaceProjField {
		c.transferUnionFieldWrite(block, stmt, dst, dst.Proj[0].FieldIdx, s)
	}

	f.Init = Init
	f.AssignmentCount++
	f.LastAssignmentStmt = stmt
	s.Locals[dst.Local] = f
}

func (c *checker) transferUnionFieldWrite(block mir.BlockID, stmt int, dst mir.Place, idx int, s *BorrowState) {
	if !c.isUnionLocal(dst.Local) {
		return
	}
	cur := s.UnionLocals[dst.Local]
	if cur != nil && cur.ActiveKind == UnionActiveField && cur.ActiveIdx != idx {
		if !c.seen.seen(ErrorKey{block, stmt, ErrorUnionViewMismatch}) {
			c.fresh(errDiag(diag.BorrowUnionViewMismatch,
				"writing view index "+itoa(idx)+" while view index "+itoa(cur.ActiveIdx)+" was last active on `"+fmtPlace(dst)+"`"))
		}
	}
	s.UnionLocals[dst.Local] = &UnionLocalInfo{ActiveKind: UnionActiveField, ActiveIdx: idx}
}

func (c *checker) isUnionLocal(id mir.LocalID) bool {
	if c.layouts == nil || int(id) >= len(c.f.Locals) {
		return false
	}
	in := c.layouts.Types()
	if in == nil {
		return false
	}
	t, ok := in.Lookup(c.f.Locals[id].Type)
	return ok && t.Kind == types.KindUnion
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// transferCall implements the Call transfer: reads args per their operand
// kind, recognizes the span-view intrinsic shape to record a synthetic
// borrow on the backing argument, and treats the destination (if any) as an
// assignment at the call's completion point.
func (c *checker) transferCall(block mir.BlockID, stmt int, call *mir.CallInstr, s *BorrowState) {
	for _, arg := range call.Args {
		c.readOperand(block, stmt, arg, s)
	}
	if call.Callee.Kind == mir.CalleeSym || call.Callee.Kind == mir.CalleeValue {
		if symbols.IsSpanIntrinsicName(call.Callee.Name) && len(call.Args) > 0 && call.HasDst {
			root := call.Args[0]
			if root.Kind == mir.OperandCopy || root.Kind == mir.OperandMove ||
				root.Kind == mir.OperandAddrOf || root.Kind == mir.OperandAddrOfMut {
				c.nextBID++
				kind := mir.BorrowShared
				s.ActiveLoans[c.nextBID] = LoanInfo{
					Kind: kind, Place: root.Place, OriginBlock: block, OriginStmt: stmt,
					Presence: LoanPresent, HasView: true, AssociatedView: call.Dst.Local,
				}
			}
		}
	}
	if call.HasDst {
		c.assignPlace(block, stmt, call.Dst, s)
	}
}
