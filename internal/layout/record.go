package layout

import "surge/internal/types"

// TriState is a three-valued auto-trait answer (spec.md §3.3).
type TriState uint8

const (
	Unknown TriState = iota
	Yes
	No
)

// meet combines two tristate answers: No dominates Unknown dominates Yes.
func meet(a, b TriState) TriState {
	if a == No || b == No {
		return No
	}
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return Yes
}

// AutoTraits is the {thread_safe, shareable, copy} triple.
type AutoTraits struct {
	ThreadSafe TriState
	Shareable  TriState
	Copy       TriState
}

// AutoTraitOverride records an explicit per-type override; a nil field means
// "not overridden, derive as usual."
type AutoTraitOverride struct {
	ThreadSafe *TriState
	Shareable  *TriState
	Copy       *TriState
}

func (o *AutoTraitOverride) apply(computed AutoTraits) AutoTraits {
	if o == nil {
		return computed
	}
	if o.ThreadSafe != nil {
		computed.ThreadSafe = *o.ThreadSafe
	}
	if o.Shareable != nil {
		computed.Shareable = *o.Shareable
	}
	if o.Copy != nil {
		computed.Copy = *o.Copy
	}
	return computed
}

// TypeFlags is a bitset of derived type classifications.
type TypeFlags uint32

const (
	TypeFlagFallible TypeFlags = 1 << iota
)

// MmioAccess restricts how an MMIO-tagged field may be touched.
type MmioAccess uint8

const (
	MmioReadWrite MmioAccess = iota
	MmioReadOnly
	MmioWriteOnly
)

// FieldMmio is the bit-level MMIO descriptor for one field (spec.md §3.2).
type FieldMmio struct {
	Offset int // bit offset from the struct base
	Width  int // bit width; must be a multiple of 8
	Access MmioAccess
}

// FieldLayout describes one field inside a StructLayout/EnumVariantLayout.
type FieldLayout struct {
	Name        string
	Ty          types.TypeID
	Index       int
	Offset      *int
	DisplayName string
	IsRequired  bool
	IsNullable  bool
	IsReadonly  bool
	ViewOf      string // for union-derived fields: name of the view this aliases
	Mmio        *FieldMmio
}

// ClassKind distinguishes an ordinary class from an Exception/Error type.
type ClassKind uint8

const (
	ClassKindClass ClassKind = iota
	ClassKindError
)

// ClassLayoutInfo is the class-specific annex to a StructLayout.
type ClassLayoutInfo struct {
	Kind         ClassKind
	Bases        []string // canonical names, nearest-first
	VtableOffset *int
}

// StructLayout is the tagged record for struct- and class-shaped types.
type StructLayout struct {
	Name       string
	Repr       types.Repr
	Packing    *int // min(natural_align, packing) cap, spec.md §3.2
	Fields     []FieldLayout
	Positional []int // Fields indices in declared constructor-positional order
	IsList     bool
	Size       *int
	Align      *int
	Flags      TypeFlags
	AutoTraits AutoTraits
	Overrides  *AutoTraitOverride
	Mmio       bool // true if any field carries Mmio metadata
	Dispose    bool
	Class      *ClassLayoutInfo
}

// EnumVariantLayout describes one enum variant, including any tuple/record payload.
type EnumVariantLayout struct {
	Name         string
	Index        int
	Discriminant int64
	Fields       []FieldLayout
	Positional   []int
}

// EnumLayout is the tagged record for enum-shaped types.
type EnumLayout struct {
	Name       string
	Repr       types.Repr
	Underlying types.TypeID
	Signed     bool
	Bits       int
	Variants   []EnumVariantLayout
	Size       *int
	Align      *int
	AutoTraits AutoTraits
	Overrides  *AutoTraitOverride
	IsFlags    bool
}

// UnionViewMode distinguishes a mutable (Value) union view from a Readonly one.
type UnionViewMode uint8

const (
	UnionViewValue UnionViewMode = iota
	UnionViewReadonly
)

// UnionView describes one view/variant of a tagged union.
type UnionView struct {
	Name  string
	Ty    types.TypeID
	Index int
	Mode  UnionViewMode
}

// UnionLayout is the tagged record for union-shaped (tagged-view) types.
type UnionLayout struct {
	Name  string
	Repr  types.Repr
	Views []UnionView
	Size  *int
	Align *int
}

// RecordKind tags which variant a Layout record carries.
type RecordKind uint8

const (
	RecordStruct RecordKind = iota
	RecordEnum
	RecordUnion
)

// Layout is the `StructLayout | EnumLayout | UnionLayout` tagged family
// (spec.md §3.2), keyed in the Table by its canonical Name.
type Layout struct {
	Kind   RecordKind
	Struct *StructLayout
	Enum   *EnumLayout
	Union  *UnionLayout
}

// Name returns the canonical name shared as both the Table key and the
// record's own `name` field (spec.md §3.2 invariant).
func (l *Layout) Name() string {
	if l == nil {
		return ""
	}
	switch l.Kind {
	case RecordStruct:
		if l.Struct != nil {
			return l.Struct.Name
		}
	case RecordEnum:
		if l.Enum != nil {
			return l.Enum.Name
		}
	case RecordUnion:
		if l.Union != nil {
			return l.Union.Name
		}
	}
	return ""
}

// Size returns the finalized size, or nil if backfill has not converged yet.
func (l *Layout) Size() *int {
	if l == nil {
		return nil
	}
	switch l.Kind {
	case RecordStruct:
		return l.Struct.Size
	case RecordEnum:
		return l.Enum.Size
	case RecordUnion:
		return l.Union.Size
	}
	return nil
}

// Align returns the finalized alignment, or nil if backfill has not converged yet.
func (l *Layout) Align() *int {
	if l == nil {
		return nil
	}
	switch l.Kind {
	case RecordStruct:
		return l.Struct.Align
	case RecordEnum:
		return l.Enum.Align
	case RecordUnion:
		return l.Union.Align
	}
	return nil
}

// AutoTraits returns the record's computed auto-trait triple; unions always
// answer Copy = No per spec.md §3.3.
func (l *Layout) AutoTraitsTriple() AutoTraits {
	if l == nil {
		return AutoTraits{}
	}
	switch l.Kind {
	case RecordStruct:
		return l.Struct.AutoTraits
	case RecordEnum:
		return l.Enum.AutoTraits
	case RecordUnion:
		return AutoTraits{ThreadSafe: Unknown, Shareable: Unknown, Copy: No}
	}
	return AutoTraits{}
}
