package borrowck

import (
	"fmt"

	"surge/internal/diag"
	"surge/internal/layout"
	"surge/internal/mir"
	"surge/internal/types"
)

// Result is the outcome of checking one function or a whole module.
type Result struct {
	Diagnostics []*diag.Diagnostic
}

func (r *Result) report(d diag.Diagnostic) {
	cp := d
	r.Diagnostics = append(r.Diagnostics, &cp)
}

// checker carries the fixed inputs and mutable bookkeeping for one function.
type checker struct {
	f       *mir.Func
	layouts *layout.Table
	result  *Result
	seen    errorSet
	nextBID mir.BorrowID
}

// BorrowCheckFunctionWithLayouts runs the fixpoint dataflow over f and
// returns every diagnostic the transfer functions raised, deduplicated by
// ErrorKey so a block visited many times during convergence is never
// reported more than once per error site.
func BorrowCheckFunctionWithLayouts(f *mir.Func, layouts *layout.Table) *Result {
	res := &Result{}
	if f == nil {
		return res
	}
	c := &checker{f: f, layouts: layouts, result: res, seen: make(errorSet)}
	c.run()
	return res
}

// BorrowCheckModule checks every function in m and concatenates their
// diagnostics; it does not stop at the first function with errors, matching
// the single-threaded cooperative model of §5 where one worker still visits
// every function in sequence.
func BorrowCheckModule(m *mir.Module, layouts *layout.Table) *Result {
	res := &Result{}
	if m == nil {
		return res
	}
	for _, f := range m.Funcs {
		sub := BorrowCheckFunctionWithLayouts(f, layouts)
		res.Diagnostics = append(res.Diagnostics, sub.Diagnostics...)
	}
	return res
}

func (c *checker) entryState() *BorrowState {
	s := newBorrowState()
	for i, l := range c.f.Locals {
		id := mir.LocalID(i)
		facts := LocalFacts{
			Mutable:    l.Flags&mir.LocalFlagMut != 0,
			Pinned:     l.Flags&mir.LocalFlagPinned != 0,
			IsParamIn:  l.Flags&mir.LocalFlagParamIn != 0,
			IsParamRef: l.Flags&mir.LocalFlagParamRef != 0,
			IsParamOut: l.Flags&mir.LocalFlagParamOut != 0,
			Nullable:   c.isNullableLocal(id),
		}
		isParam := int(id) < c.f.ParamCount
		switch {
		case facts.IsParamOut:
			facts.Init = Uninit
			facts.RequiresInit = true
		case isParam:
			facts.Init = Init
			facts.AssignmentCount = 1
		default:
			facts.Init = Uninit
		}
		if facts.Nullable {
			facts.NullState = NullUnknown
		}
		s.Locals[id] = facts
	}
	return s
}

func (c *checker) isNullableLocal(id mir.LocalID) bool {
	if c.layouts == nil || int(id) >= len(c.f.Locals) {
		return false
	}
	in := c.layouts.Types()
	if in == nil {
		return false
	}
	ty := c.f.Locals[id].Type
	t, ok := in.Lookup(ty)
	if !ok {
		return false
	}
	return t.Kind == types.KindNullable
}

// run drives the worklist fixpoint: visit the entry block, propagate exit
// states to successors, re-visit any block whose computed exit state
// changed, until quiescence. Blocks unreachable from Entry never get an
// in-state and are skipped, matching a frozen, already-validated CFG.
func (c *checker) run() {
	if len(c.f.Blocks) == 0 {
		return
	}
	blockByID := make(map[mir.BlockID]*mir.Block, len(c.f.Blocks))
	preds := make(map[mir.BlockID][]mir.BlockID, len(c.f.Blocks))
	for i := range c.f.Blocks {
		b := &c.f.Blocks[i]
		blockByID[b.ID] = b
	}
	for i := range c.f.Blocks {
		b := &c.f.Blocks[i]
		for _, succ := range successors(b) {
			preds[succ] = append(preds[succ], b.ID)
		}
	}

	exitStates := make(map[mir.BlockID]*BorrowState, len(c.f.Blocks))
	visited := make(map[mir.BlockID]bool, len(c.f.Blocks))
	worklist := []mir.BlockID{c.f.Entry}
	queued := map[mir.BlockID]bool{c.f.Entry: true}

	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		queued[id] = false

		b := blockByID[id]
		if b == nil {
			continue
		}

		var in *BorrowState
		if id == c.f.Entry {
			in = c.entryState()
		} else {
			ps := preds[id]
			predStates := make([]*BorrowState, 0, len(ps))
			for _, p := range ps {
				if st, ok := exitStates[p]; ok {
					predStates = append(predStates, st)
				}
			}
			if len(predStates) == 0 {
				continue
			}
			in = joinStates(predStates)
		}

		out := c.transferBlock(b, in)
		prev, had := exitStates[id]
		visited[id] = true
		if had && statesEqual(prev, out) {
			continue
		}
		exitStates[id] = out
		for _, succ := range successors(b) {
			if !queued[succ] {
				queued[succ] = true
				worklist = append(worklist, succ)
			}
		}
	}
}

func successors(b *mir.Block) []mir.BlockID {
	switch b.Term.Kind {
	case mir.TermGoto:
		return []mir.BlockID{b.Term.Goto.Target}
	case mir.TermIf:
		return []mir.BlockID{b.Term.If.Then, b.Term.If.Else}
	case mir.TermSwitchTag:
		out := make([]mir.BlockID, 0, len(b.Term.SwitchTag.Cases)+1)
		for _, cs := range b.Term.SwitchTag.Cases {
			out = append(out, cs.Target)
		}
		if b.Term.SwitchTag.Default != mir.NoBlockID {
			out = append(out, b.Term.SwitchTag.Default)
		}
		return out
	default:
		return nil
	}
}

// transferBlock runs every per-statement transfer in order, then the
// per-terminator transfer, returning the resulting exit state.
func (c *checker) transferBlock(b *mir.Block, in *BorrowState) *BorrowState {
	s := in.clone()
	for i := range b.Instrs {
		c.transferInstr(b.ID, i, &b.Instrs[i], s)
	}
	c.transferTerminator(b, s)
	return s
}

func (c *checker) fresh(d diag.Diagnostic) {
	c.result.report(d)
}

func errDiag(code diag.Code, msg string) diag.Diagnostic {
	return diag.Diagnostic{Severity: diag.SevError, Code: code, Message: msg}
}

func fmtPlace(p mir.Place) string {
	if p.Kind == mir.PlaceLocal {
		return fmt.Sprintf("_%d", p.Local)
	}
	return fmt.Sprintf("g%d", p.Global)
}
