// Package borrowck implements the forward dataflow that enforces ownership,
// borrowing, initialization, union-discriminant, and async-safety rules over
// a completed MIR function.
package borrowck

import "surge/internal/mir"

// InitState tracks whether a local has a value at a given program point.
type InitState uint8

const (
	// Uninit: no predecessor path has assigned this local.
	Uninit InitState = iota
	// Maybe: some but not all predecessor paths have assigned this local.
	Maybe
	// Init: every predecessor path has assigned this local.
	Init
)

func joinInit(a, b InitState) InitState {
	if a == b {
		return a
	}
	return Maybe
}

// NullState tracks the nullable-bookkeeping lattice for `T?`-typed locals.
type NullState uint8

const (
	// NullUnknown: no conclusion can be drawn; treat as possibly null.
	NullUnknown NullState = iota
	// IsNull: definitely the null/HasValue=false state.
	IsNull
	// NonNull: definitely holds a value.
	NonNull
)

func joinNull(a, b NullState) NullState {
	if a == b {
		return a
	}
	return NullUnknown
}

// StackAllocState tracks whether a place's value (typically a Span) points
// at a stack allocation that must not outlive its frame.
type StackAllocState uint8

const (
	// StackAllocNone: not stack-allocation-derived.
	StackAllocNone StackAllocState = iota
	// StackAllocOrigin: the allocation site itself.
	StackAllocOrigin
	// StackAllocPropagated: derived from a StackAllocOrigin/Propagated value.
	StackAllocPropagated
)

func joinStackAlloc(a, b StackAllocState) StackAllocState {
	if a == b {
		return a
	}
	return StackAllocNone
}

// LocalFacts is the per-local component of a BorrowState.
type LocalFacts struct {
	Init               InitState
	RequiresInit       bool
	AssignmentCount    int
	LastAssignmentStmt int
	LastMoveStmt       int
	Mutable            bool
	Pinned             bool
	Nullable           bool
	NullState          NullState
	StackAlloc         StackAllocState
	IsParamIn          bool
	IsParamRef         bool
	IsParamOut         bool
}

func joinLocalFacts(a, b LocalFacts) LocalFacts {
	out := a
	out.Init = joinInit(a.Init, b.Init)
	if b.AssignmentCount > out.AssignmentCount {
		out.AssignmentCount = b.AssignmentCount
	}
	if b.LastMoveStmt > out.LastMoveStmt {
		out.LastMoveStmt = b.LastMoveStmt
	}
	out.NullState = joinNull(a.NullState, b.NullState)
	out.StackAlloc = joinStackAlloc(a.StackAlloc, b.StackAlloc)
	return out
}

// LoanPresence tracks whether a loan is known live on every predecessor path
// reaching a program point, or only some.
type LoanPresence uint8

const (
	// LoanPresent: live on every predecessor path.
	LoanPresent LoanPresence = iota
	// LoanMaybe: live on only some predecessor paths.
	LoanMaybe
)

// LoanInfo describes an active borrow.
type LoanInfo struct {
	Kind           mir.BorrowKind
	Place          mir.Place
	Region         mir.RegionID
	OriginBlock    mir.BlockID
	OriginStmt     int
	Presence       LoanPresence
	AssociatedView mir.LocalID
	HasView        bool
}

// UnionActiveKind distinguishes a union local's tracked active-view state.
type UnionActiveKind uint8

const (
	// UnionActiveNone: no view has been written yet.
	UnionActiveNone UnionActiveKind = iota
	// UnionActiveField: a specific view index is known active.
	UnionActiveField
	// UnionActiveUnknown: views differed across predecessors.
	UnionActiveUnknown
)

// UnionLocalInfo tracks which view of a union-typed local is active.
type UnionLocalInfo struct {
	ActiveKind UnionActiveKind
	ActiveIdx  int
}

func joinUnionLocal(a, b *UnionLocalInfo) *UnionLocalInfo {
	if a == nil || b == nil {
		return nil
	}
	if a.ActiveKind == b.ActiveKind && (a.ActiveKind != UnionActiveField || a.ActiveIdx == b.ActiveIdx) {
		cp := *a
		return &cp
	}
	return &UnionLocalInfo{ActiveKind: UnionActiveUnknown}
}

// BorrowState is the dataflow fact set carried between program points.
type BorrowState struct {
	Locals      map[mir.LocalID]LocalFacts
	ActiveLoans map[mir.BorrowID]LoanInfo
	UnionLocals map[mir.LocalID]*UnionLocalInfo
	UnsafeDepth uint32
}

func newBorrowState() *BorrowState {
	return &BorrowState{
		Locals:      make(map[mir.LocalID]LocalFacts),
		ActiveLoans: make(map[mir.BorrowID]LoanInfo),
		UnionLocals: make(map[mir.LocalID]*UnionLocalInfo),
	}
}

func (s *BorrowState) clone() *BorrowState {
	if s == nil {
		return newBorrowState()
	}
	out := &BorrowState{
		Locals:      make(map[mir.LocalID]LocalFacts, len(s.Locals)),
		ActiveLoans: make(map[mir.BorrowID]LoanInfo, len(s.ActiveLoans)),
		UnionLocals: make(map[mir.LocalID]*UnionLocalInfo, len(s.UnionLocals)),
		UnsafeDepth: s.UnsafeDepth,
	}
	for k, v := range s.Locals {
		out.Locals[k] = v
	}
	for k, v := range s.ActiveLoans {
		out.ActiveLoans[k] = v
	}
	for k, v := range s.UnionLocals {
		out.UnionLocals[k] = v
	}
	return out
}

// joinStates computes the componentwise meet of a block's predecessor exit
// states, per spec's join rules: init lattice per-local, assignment_count
// as a max, active loans degrade to Maybe unless present on every
// predecessor, union active-view state collapses to Unknown on disagreement,
// and unsafe_depth takes the minimum (being safe dominates).
func joinStates(preds []*BorrowState) *BorrowState {
	if len(preds) == 0 {
		return newBorrowState()
	}
	out := preds[0].clone()
	for _, p := range preds[1:] {
		merged := newBorrowState()
		for id, f := range out.Locals {
			if g, ok := p.Locals[id]; ok {
				merged.Locals[id] = joinLocalFacts(f, g)
			} else {
				merged.Locals[id] = f
			}
		}
		for id, g := range p.Locals {
			if _, ok := merged.Locals[id]; !ok {
				merged.Locals[id] = g
			}
		}

		for id, loan := range out.ActiveLoans {
			other, ok := p.ActiveLoans[id]
			if !ok {
				continue
			}
			combined := loan
			if loan.Presence == LoanPresent && other.Presence == LoanPresent {
				combined.Presence = LoanPresent
			} else {
				combined.Presence = LoanMaybe
			}
			if loan.HasView != other.HasView || loan.AssociatedView != other.AssociatedView {
				combined.HasView = false
				combined.AssociatedView = 0
			}
			merged.ActiveLoans[id] = combined
		}
		for id, loan := range p.ActiveLoans {
			if _, ok := out.ActiveLoans[id]; !ok {
				l := loan
				l.Presence = LoanMaybe
				merged.ActiveLoans[id] = l
			}
		}

		for id, u := range out.UnionLocals {
			if v, ok := p.UnionLocals[id]; ok {
				merged.UnionLocals[id] = joinUnionLocal(u, v)
			} else {
				merged.UnionLocals[id] = u
			}
		}
		for id, v := range p.UnionLocals {
			if _, ok := out.UnionLocals[id]; !ok {
				merged.UnionLocals[id] = v
			}
		}

		if p.UnsafeDepth < out.UnsafeDepth {
			merged.UnsafeDepth = p.UnsafeDepth
		} else {
			merged.UnsafeDepth = out.UnsafeDepth
		}
		out = merged
	}
	return out
}

func placesEqual(a, b mir.Place) bool {
	if a.Kind != b.Kind || a.Local != b.Local || a.Global != b.Global || len(a.Proj) != len(b.Proj) {
		return false
	}
	for i := range a.Proj {
		if a.Proj[i] != b.Proj[i] {
			return false
		}
	}
	return true
}

func loansEqual(a, b LoanInfo) bool {
	return a.Kind == b.Kind && a.Region == b.Region && a.OriginBlock == b.OriginBlock &&
		a.OriginStmt == b.OriginStmt && a.Presence == b.Presence &&
		a.AssociatedView == b.AssociatedView && a.HasView == b.HasView && placesEqual(a.Place, b.Place)
}

func statesEqual(a, b *BorrowState) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Locals) != len(b.Locals) || len(a.ActiveLoans) != len(b.ActiveLoans) || a.UnsafeDepth != b.UnsafeDepth {
		return false
	}
	for id, f := range a.Locals {
		g, ok := b.Locals[id]
		if !ok || f != g {
			return false
		}
	}
	for id, l := range a.ActiveLoans {
		m, ok := b.ActiveLoans[id]
		if !ok || !loansEqual(l, m) {
			return false
		}
	}
	return true
}
