package mir

// BorrowID identifies a borrow introduced by a Borrow operand. Monotonic
// within a function; never reused once assigned.
type BorrowID int32

// RegionID identifies the abstract lifetime a borrow is checked against.
// Monotonic within a function, same numbering space as BorrowID but kept
// distinct to avoid accidental cross-use.
type RegionID int32

const (
	// NoBorrowID indicates no borrow.
	NoBorrowID BorrowID = -1
	// NoRegionID indicates no region.
	NoRegionID RegionID = -1
)

// BorrowKind distinguishes the three ways a place can be borrowed.
type BorrowKind uint8

const (
	// BorrowShared is a read-only borrow; any number may coexist.
	BorrowShared BorrowKind = iota
	// BorrowUnique is an exclusive, mutable borrow.
	BorrowUnique
	// BorrowRaw is an unchecked borrow used for FFI/unsafe boundaries; the
	// borrow checker records it but never diagnoses conflicts against it.
	BorrowRaw
)

// BorrowOperand captures a Borrow of a Place: a fresh BorrowId/RegionVar pair
// naming the loan, realized by an EndBorrow instruction when the loan's
// region ends.
type BorrowOperand struct {
	ID     BorrowID
	Region RegionID
	Kind   BorrowKind
	Place  Place
}

// MmioAccessKind distinguishes the two directions an Mmio operand can move
// data: a volatile load from a hardware register, or a volatile store to one.
type MmioAccessKind uint8

const (
	// MmioLoad reads a volatile register.
	MmioLoad MmioAccessKind = iota
	// MmioStore writes a volatile register.
	MmioStore
)

// MmioOperand represents a volatile access to a memory-mapped register field,
// distinguished from an ordinary Copy/Move because it must never be
// reordered, coalesced, or elided by later passes.
type MmioOperand struct {
	Access MmioAccessKind
	Place  Place
	Offset int
	Width  int
}

// PendingCategory classifies why a subexpression could not be lowered,
// matching the failure taxonomy the Body Builder reports alongside it.
type PendingCategory uint8

const (
	// PendingUnresolvedName: a name the Body Builder could not resolve to a
	// symbol (forward-reference cycle, unknown identifier after sema).
	PendingUnresolvedName PendingCategory = iota
	// PendingUnresolvedOverload: overload resolution did not narrow to one
	// candidate by the time lowering ran.
	PendingUnresolvedOverload
	// PendingIncompleteGeneric: a generic instantiation is missing type
	// arguments needed to size/lower the expression.
	PendingIncompleteGeneric
	// PendingUnsupportedConstruct: a syntactically valid construct this
	// lowerer does not yet implement.
	PendingUnsupportedConstruct
)

// PendingInfo is the escape hatch the Body Builder uses when a subexpression
// or statement cannot be lowered: it preserves a human-readable repr (and
// the category that produced it) so the surrounding function still has a
// well-formed body. Downstream borrow checking treats any place/terminator
// touching a Pending operand as already diagnosed and skips it.
type PendingInfo struct {
	Category PendingCategory
	Repr     string
}
