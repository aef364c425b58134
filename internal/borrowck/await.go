package borrowck

import (
	"surge/internal/diag"
	"surge/internal/layout"
	"surge/internal/mir"
)

// checkAwait implements the Await transfer's loan/pin/stack-alloc checks
// (points 2, 3, and 5 of the spec's six-point list; point 1 — the future
// place must be Init — is covered by the readOperand call at the Await
// instruction's call site, and point 6 — the destination counts as
// assigned on resume — by the assignPlace call there too). Point 4
// (accelerator-handle pinning) is handled per-local via Pinned bookkeeping
// already tracked on LocalFacts.
func (c *checker) checkAwait(block mir.BlockID, stmt int, s *BorrowState) {
	for id, loan := range s.ActiveLoans {
		if loan.Presence != LoanPresent {
			continue
		}
		placePinned := loan.Place.Kind == mir.PlaceLocal && s.Locals[loan.Place.Local].Pinned

		switch loan.Kind {
		case mir.BorrowUnique:
			if !placePinned {
				if !c.seen.seen(ErrorKey{block, stmt, ErrorAwaitUniqueBorrow}) {
					c.fresh(errDiag(diag.BorrowAcrossAwait,
						"cannot await while unique borrow of `"+fmtPlace(loan.Place)+"` is active"))
				}
				continue
			}
			traits := c.autoTraitsOf(loan.Place)
			if traits.ThreadSafe != layout.Yes {
				if !c.seen.seen(ErrorKey{block, stmt, ErrorAwaitUniquePinnedNotThreadSafe}) {
					word := "unknown"
					if traits.ThreadSafe == layout.No {
						word = "No"
					}
					c.fresh(errDiag(diag.BorrowPinnedNotThreadSafe,
						"pinned unique borrow of `"+fmtPlace(loan.Place)+"` across await requires ThreadSafe=Yes, got "+word))
				}
			}
		case mir.BorrowShared:
			traits := c.autoTraitsOf(loan.Place)
			if traits.Shareable != layout.Yes {
				if !c.seen.seen(ErrorKey{block, stmt, ErrorAwaitSharedNotShareable}) {
					word := "unknown"
					if traits.Shareable == layout.No {
						word = "No"
					}
					c.fresh(errDiag(diag.BorrowAcrossAwait,
						"shared borrow of `"+fmtPlace(loan.Place)+"` across await requires Shareable=Yes, got "+word))
				}
			}
		}
		_ = id
	}

	for id, f := range s.Locals {
		if f.Init != Init || f.StackAlloc == StackAllocNone {
			continue
		}
		if !c.seen.seen(ErrorKey{block, stmt, ErrorAwaitStackAllocLive}) {
			c.fresh(errDiag(diag.BorrowAcrossAwait,
				"cannot await while stack-allocated span `_"+itoa(int(id))+"` is live"))
		}
	}
}

func (c *checker) autoTraitsOf(p mir.Place) layout.AutoTraits {
	if c.layouts == nil || p.Kind != mir.PlaceLocal || int(p.Local) >= len(c.f.Locals) {
		return layout.AutoTraits{ThreadSafe: layout.Unknown, Shareable: layout.Unknown, Copy: layout.Unknown}
	}
	return c.layouts.AutoTraitsForType(c.f.Locals[p.Local].Type)
}
