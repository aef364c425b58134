package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
//
// The set mirrors the Ty sum type: primitives and structural shapes are
// carried inline on Type; nominal and compound shapes (struct/class/enum/
// union/alias/tuple/fn/generic param) store their detail in a side table on
// the Interner, indexed by Payload.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindUnknown
	KindNothing
	KindBool
	KindString
	KindStr
	KindInt
	KindUint
	KindFloat
	KindArray
	KindPointer
	KindReference
	KindOwn
	KindStruct
	KindClass
	KindEnum
	KindUnion
	KindAlias
	KindTuple
	KindFn
	KindGenericParam
	KindConst
	KindNullable
	KindRc
	KindArc
	KindVec
	KindSpan
	KindReadOnlySpan
	KindVector
	KindTraitObject
	KindDelegate
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindUnknown:
		return "unknown"
	case KindNothing:
		return "nothing"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindStr:
		return "str"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindArray:
		return "array"
	case KindPointer:
		return "pointer"
	case KindReference:
		return "reference"
	case KindOwn:
		return "own"
	case KindStruct:
		return "struct"
	case KindClass:
		return "class"
	case KindEnum:
		return "enum"
	case KindUnion:
		return "union"
	case KindAlias:
		return "alias"
	case KindTuple:
		return "tuple"
	case KindFn:
		return "fn"
	case KindGenericParam:
		return "generic_param"
	case KindConst:
		return "const"
	case KindNullable:
		return "nullable"
	case KindRc:
		return "rc"
	case KindArc:
		return "arc"
	case KindVec:
		return "vec"
	case KindSpan:
		return "span"
	case KindReadOnlySpan:
		return "readonly_span"
	case KindVector:
		return "vector"
	case KindTraitObject:
		return "trait_object"
	case KindDelegate:
		return "delegate"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers/floats.
type Width uint8

const (
	WidthAny Width = 0
	Width8   Width = 8
	Width16  Width = 16
	Width32  Width = 32
	Width64  Width = 64
)

// ArrayDynamicLength marks slices with unknown compile-time length.
const ArrayDynamicLength = ^uint32(0)

// PointerQualifier annotates a raw pointer with an MMIO/volatility qualifier.
type PointerQualifier uint8

const (
	// QualifierNone is a plain pointer with no special ABI meaning.
	QualifierNone PointerQualifier = iota
	// QualifierVolatile marks accesses that must not be reordered or elided.
	QualifierVolatile
	// QualifierMmio marks a pointer into a memory-mapped register block.
	QualifierMmio
)

// Type is a compact descriptor for any supported type.
//
// Elem/Count/Width/Mutable are reused across kinds the way the teacher's
// original descriptor reused them for Array/Pointer/Reference/Own; Payload
// indexes into the Interner's per-kind side table (structs, unions, enums,
// aliases, tuples, fns, params, or the kind-specific tables added for
// nullable/rc/arc/span/vector/trait-object/delegate).
type Type struct {
	Kind      Kind
	Elem      TypeID
	Count     uint32 // array length, or lane count for KindVector
	Width     Width  // numeric primitives
	Mutable   bool   // references, unique pointers
	Payload   uint32 // index into the Interner's side table for Kind
	Qualifier PointerQualifier
}

// Descriptor helpers ---------------------------------------------------------

// MakeInt describes a signed integer of the given width (WidthAny for "int").
func MakeInt(width Width) Type {
	return Type{Kind: KindInt, Width: width}
}

// MakeUint describes an unsigned integer type.
func MakeUint(width Width) Type {
	return Type{Kind: KindUint, Width: width}
}

// MakeFloat describes a floating-point type.
func MakeFloat(width Width) Type {
	return Type{Kind: KindFloat, Width: width}
}

// MakeArray describes an array/slice of element type. Use ArrayDynamicLength
// for open-ended slices (T[]).
func MakeArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}

// MakePointer describes an immutable, unqualified raw pointer *T.
func MakePointer(elem TypeID) Type {
	return Type{Kind: KindPointer, Elem: elem}
}

// MakePointerQualified describes a raw pointer with mutability and an
// MMIO/volatile qualifier (spec.md §3.1 Pointer{element, mutable, qualifiers}).
func MakePointerQualified(elem TypeID, mutable bool, q PointerQualifier) Type {
	return Type{Kind: KindPointer, Elem: elem, Mutable: mutable, Qualifier: q}
}

// MakeReference describes &T or &mut T depending on the mutable flag.
func MakeReference(elem TypeID, mutable bool) Type {
	return Type{Kind: KindReference, Elem: elem, Mutable: mutable}
}

// MakeOwn describes own T.
func MakeOwn(elem TypeID) Type {
	return Type{Kind: KindOwn, Elem: elem}
}

// MakeNullable describes T? — an optional wrapper around elem.
func MakeNullable(elem TypeID) Type {
	return Type{Kind: KindNullable, Elem: elem}
}

// MakeRc describes Rc<T> — single-threaded shared ownership.
func MakeRc(elem TypeID) Type {
	return Type{Kind: KindRc, Elem: elem}
}

// MakeArc describes Arc<T> — thread-safe shared ownership.
func MakeArc(elem TypeID) Type {
	return Type{Kind: KindArc, Elem: elem}
}

// MakeVec describes Vec<T> — a growable owned sequence.
func MakeVec(elem TypeID) Type {
	return Type{Kind: KindVec, Elem: elem}
}

// MakeSpan describes Span<T> — a mutable view over contiguous elements.
func MakeSpan(elem TypeID) Type {
	return Type{Kind: KindSpan, Elem: elem}
}

// MakeReadOnlySpan describes ReadOnlySpan<T>.
func MakeReadOnlySpan(elem TypeID) Type {
	return Type{Kind: KindReadOnlySpan, Elem: elem}
}

// MakeVector describes a fixed-lane SIMD vector of elem, lanes wide.
func MakeVector(elem TypeID, lanes uint32) Type {
	return Type{Kind: KindVector, Elem: elem, Count: lanes}
}
