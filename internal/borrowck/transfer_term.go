package borrowck

import (
	"surge/internal/diag"
	"surge/internal/mir"
	"surge/internal/types"
)

// transferTerminator implements the per-terminator rules: discriminant
// initialization for branches, and the Return contract (non-unit result
// slot must be Init, every Out parameter must be Init on every path).
func (c *checker) transferTerminator(b *mir.Block, s *BorrowState) {
	switch b.Term.Kind {
	case mir.TermIf:
		c.checkInitialized(b.ID, len(b.Instrs), b.Term.If.Cond.Place, s)
	case mir.TermSwitchTag:
		c.checkInitialized(b.ID, len(b.Instrs), b.Term.SwitchTag.Value.Place, s)
	case mir.TermReturn:
		c.checkReturn(b, s)
	}
}

func (c *checker) checkReturn(b *mir.Block, s *BorrowState) {
	stmt := len(b.Instrs)
	if c.f.Result != types.NoTypeID && b.Term.Return.HasValue {
		c.checkInitialized(b.ID, stmt, b.Term.Return.Value.Place, s)
	}
	for i, l := range c.f.Locals {
		id := mir.LocalID(i)
		if l.Flags&mir.LocalFlagParamOut == 0 {
			continue
		}
		f, ok := s.Locals[id]
		if !ok || f.Init != Init {
			if c.seen.seen(ErrorKey{b.ID, stmt, ErrorOutNotAssigned}) {
				continue
			}
			c.fresh(errDiag(diag.BorrowOutNotAssigned,
				"out parameter `"+l.Name+"` was not assigned on every return path"))
		}
	}
}
