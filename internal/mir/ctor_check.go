package mir

import (
	"surge/internal/diag"
	"surge/internal/layout"
)

// fieldBits is a bitset over a constructor's required fields, one bit per
// index into StructLayout.Fields. 64 required fields is far past any
// realistic constructor; a struct with more is tracked with the low 64 bits
// only, which only weakens (never falsely strengthens) the check.
type fieldBits uint64

func (b fieldBits) has(i int) bool {
	if i < 0 || i >= 64 {
		return true
	}
	return b&(1<<uint(i)) != 0
}

func (b fieldBits) set(i int) fieldBits {
	if i < 0 || i >= 64 {
		return b
	}
	return b | (1 << uint(i))
}

func (b fieldBits) meet(o fieldBits) fieldBits {
	return b & o
}

// CheckConstructorFieldInit runs the required-field-assignment dataflow
// (constructor field-init check) over a single function: a forward, all-
// paths-must-assign analysis of which required struct fields have been
// written by the time the function returns, generalized from MovePlan's
// per-local move-state tracking (surge/internal/hir/moveplan.go) from
// "is this local moved" to "is this required field assigned".
//
// self identifies the constructor's own local — the implicit `out` parameter
// Module Lowering synthesizes for a FuncKindConstructor func, or the async
// ScopeLocal for callers that still model self that way; sl is the struct
// layout of the type being constructed. Diagnostics are appended to diags
// for every return path that reaches a required, non-nullable field still
// unassigned.
func CheckConstructorFieldInit(f *Func, self LocalID, sl *layout.StructLayout, diags *[]*diag.Diagnostic) {
	if f == nil || sl == nil || self == NoLocalID {
		return
	}
	required := make([]int, 0, len(sl.Fields))
	for i, fl := range sl.Fields {
		if fl.IsRequired && !fl.IsNullable {
			required = append(required, i)
		}
	}
	if len(required) == 0 {
		return
	}

	all := fieldBits(0)
	for _, i := range required {
		all = all.set(i)
	}

	// in[b]: fields assigned on every path reaching the start of b.
	// Top of the lattice (before any info) is "all assigned" so the meet
	// at merge points only removes bits predecessors disagree on.
	in := make(map[BlockID]fieldBits, len(f.Blocks))
	out := make(map[BlockID]fieldBits, len(f.Blocks))
	visited := make(map[BlockID]bool, len(f.Blocks))

	preds := make(map[BlockID][]BlockID, len(f.Blocks))
	for i := range f.Blocks {
		b := &f.Blocks[i]
		for _, succ := range blockSuccessors(b) {
			preds[succ] = append(preds[succ], b.ID)
		}
	}

	worklist := []BlockID{f.Entry}
	blockByID := make(map[BlockID]*Block, len(f.Blocks))
	for i := range f.Blocks {
		blockByID[f.Blocks[i].ID] = &f.Blocks[i]
	}

	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		b := blockByID[id]
		if b == nil {
			continue
		}

		var inSet fieldBits
		if id == f.Entry {
			inSet = 0
		} else if ps := preds[id]; len(ps) == 0 {
			inSet = 0
		} else {
			inSet = all
			any := false
			for _, p := range ps {
				if !visited[p] {
					continue
				}
				any = true
				inSet = inSet.meet(out[p])
			}
			if !any {
				inSet = 0
			}
		}

		assigned := inSet
		for _, instr := range b.Instrs {
			if instr.Kind != InstrAssign {
				continue
			}
			dst := instr.Assign.Dst
			if dst.Kind != PlaceLocal || dst.Local != self || len(dst.Proj) != 1 {
				continue
			}
			proj := dst.Proj[0]
			if proj.Kind != PlaceProjField {
				continue
			}
			assigned = assigned.set(proj.FieldIdx)
		}

		changed := !visited[id] || assigned != out[id]
		visited[id] = true
		in[id] = inSet
		out[id] = assigned

		if changed {
			for _, succ := range blockSuccessors(b) {
				worklist = append(worklist, succ)
			}
		}
	}

	for i := range f.Blocks {
		b := &f.Blocks[i]
		if b.Term.Kind != TermReturn || !visited[b.ID] {
			continue
		}
		final := out[b.ID]
		for _, idx := range required {
			if final.has(idx) {
				continue
			}
			fl := sl.Fields[idx]
			if diags != nil {
				*diags = append(*diags, &diag.Diagnostic{
					Severity: diag.SevError,
					Code:     diag.MirCtorFieldNotAssigned,
					Message:  "constructor does not assign required field `" + fl.Name + "` on all return paths",
					Primary:  f.Span,
				})
			}
		}
	}
}

func blockSuccessors(b *Block) []BlockID {
	switch b.Term.Kind {
	case TermGoto:
		return []BlockID{b.Term.Goto.Target}
	case TermIf:
		return []BlockID{b.Term.If.Then, b.Term.If.Else}
	case TermSwitchTag:
		out := make([]BlockID, 0, len(b.Term.SwitchTag.Cases)+1)
		for _, c := range b.Term.SwitchTag.Cases {
			out = append(out, c.Target)
		}
		if b.Term.SwitchTag.Default != NoBlockID {
			out = append(out, b.Term.SwitchTag.Default)
		}
		return out
	default:
		return nil
	}
}
