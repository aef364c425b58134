package layout

import (
	"fmt"
	"sync"

	"surge/internal/types"
)

// Process-level caches for generated async/span layouts (spec.md §5, §9):
// these are keyed purely by canonical name, so every Table in the process
// shares the synthesis work for a given `Future<T>`/`Task<T>`/`Span<T>`
// shape rather than recomputing it per invocation.
var (
	genericLayoutMu    sync.RWMutex
	genericLayoutCache = make(map[string]*Layout, 64)
)

func getGenericLayout(name string) (*Layout, bool) {
	genericLayoutMu.RLock()
	defer genericLayoutMu.RUnlock()
	l, ok := genericLayoutCache[name]
	return l, ok
}

func putGenericLayout(l *Layout) {
	genericLayoutMu.Lock()
	defer genericLayoutMu.Unlock()
	genericLayoutCache[l.Name()] = l
}

func field(name string, ty types.TypeID, idx int) FieldLayout {
	return FieldLayout{Name: name, Ty: ty, Index: idx, IsRequired: true}
}

// ensureSynthesized is the common idempotent-synthesis path: look up by
// name in both the Table and the process-level generic cache, else build,
// backfill immediately (a synthesized record has no pending dependents so a
// single pass always converges), and store in both places.
func (t *Table) ensureSynthesized(name string, build func() *StructLayout) *Layout {
	if l, ok := t.getExact(name); ok {
		return l
	}
	if l, ok := getGenericLayout(name); ok {
		t.put(l)
		return l
	}
	sl := build()
	sl.Name = name
	l := &Layout{Kind: RecordStruct, Struct: sl}
	t.backfillStructLike(sl)
	t.put(l)
	putGenericLayout(l)
	return l
}

// EnsureNullableLayout synthesizes `T?` as `{bool HasValue, T Value}`, with
// HasValue always at offset 0 (spec.md §3.2).
func (t *Table) EnsureNullableLayout(inner types.TypeID) *Layout {
	name := types.CanonicalName(t.types, t.types.Intern(types.MakeNullable(inner)))
	return t.ensureSynthesized(name, func() *StructLayout {
		return &StructLayout{
			Fields: []FieldLayout{
				{Name: "HasValue", Ty: t.types.Builtins().Bool, Index: 0, IsRequired: true},
				field("Value", inner, 1),
			},
		}
	})
}

// EnsureTupleLayout synthesizes the unnamed struct shape of a KindTuple TypeID.
func (t *Table) EnsureTupleLayout(tuple types.TypeID) *Layout {
	name := t.canonicalName(tuple)
	return t.ensureSynthesized(name, func() *StructLayout {
		info, _ := t.types.TupleInfo(tuple)
		sl := &StructLayout{}
		if info == nil {
			return sl
		}
		sl.Fields = make([]FieldLayout, len(info.Elems))
		sl.Positional = make([]int, len(info.Elems))
		for i, e := range info.Elems {
			nm := fmt.Sprintf("Item%d", i+1)
			if i < len(info.Names) && info.Names[i] != 0 {
				if s, ok := t.types.Strings.Lookup(info.Names[i]); ok && s != "" {
					nm = s
				}
			}
			sl.Fields[i] = field(nm, e, i)
			sl.Positional[i] = i
		}
		return sl
	})
}

// EnsureArrayLayout synthesizes a fixed-length array's struct-free layout;
// arrays are not struct records in this table, callers use SizeAndAlignForTy
// directly, but this still registers a named record for layout_for_name
// disambiguation against generic-bracket names.
func (t *Table) EnsureArrayLayout(elem types.TypeID, count uint32) *Layout {
	arrID := t.types.Intern(types.MakeArray(elem, count))
	name := t.canonicalName(arrID)
	return t.ensureSynthesized(name, func() *StructLayout {
		s, a := t.SizeAndAlignForTy(arrID)
		return &StructLayout{Size: &s, Align: &a}
	})
}

func (t *Table) ensureSpanLike(elem types.TypeID, readOnly bool) *Layout {
	var id types.TypeID
	if readOnly {
		id = t.types.Intern(types.MakeReadOnlySpan(elem))
	} else {
		id = t.types.Intern(types.MakeSpan(elem))
	}
	name := t.canonicalName(id)
	return t.ensureSynthesized(name, func() *StructLayout {
		ptrTy := t.types.Intern(types.MakePointer(elem))
		uintTy := t.types.Builtins().Uint
		return &StructLayout{
			Fields: []FieldLayout{
				field("Ptr", ptrTy, 0),
				field("Len", uintTy, 1),
				field("ElemSize", uintTy, 2),
				field("ElemAlign", uintTy, 3),
			},
		}
	})
}

// EnsureSpanLayout synthesizes `Span<T>` as `{ptr, len, elem_size, elem_align}`.
func (t *Table) EnsureSpanLayout(elem types.TypeID) *Layout {
	return t.ensureSpanLike(elem, false)
}

// EnsureReadonlySpanLayout synthesizes `ReadOnlySpan<T>` with the same shape as Span<T>.
func (t *Table) EnsureReadonlySpanLayout(elem types.TypeID) *Layout {
	return t.ensureSpanLike(elem, true)
}

// EnsureFnLayout synthesizes the pointer-sized layout record for a first-class
// function-value type, keyed by its canonical `fn(...) -> R` name.
func (t *Table) EnsureFnLayout(fn types.TypeID) *Layout {
	name := t.canonicalName(fn)
	return t.ensureSynthesized(name, func() *StructLayout {
		s, a := t.SizeAndAlignForTy(fn)
		return &StructLayout{Size: &s, Align: &a}
	})
}

// EnsureDelegateLayout synthesizes the named-delegate record: same pointer
// shape as Fn, registered under the delegate's own declared name.
func (t *Table) EnsureDelegateLayout(name string) *Layout {
	return t.ensureSynthesized(name, func() *StructLayout {
		s, a := t.engine.ptrLayout().Size, t.engine.ptrLayout().Align
		return &StructLayout{Size: &s, Align: &a}
	})
}

// EnsureInterfaceLayout synthesizes the fat-pointer record for a trait
// object/interface reference: {data ptr, vtable ptr}.
func (t *Table) EnsureInterfaceLayout(name string) *Layout {
	return t.ensureSynthesized(name, func() *StructLayout {
		ptrSize := t.engine.ptrLayout().Size
		ptrAlign := t.engine.ptrLayout().Align
		size := ptrSize * 2
		return &StructLayout{Size: &size, Align: &ptrAlign}
	})
}

// EnsureFutureLayout synthesizes `Future<T>` as
// `{FutureHeader header, bool Completed, T Result}` (spec.md §4.2).
func (t *Table) EnsureFutureLayout(result types.TypeID) *Layout {
	name := fmt.Sprintf("Future<%s>", t.canonicalName(result))
	return t.ensureSynthesized(name, func() *StructLayout {
		headerName := "FutureHeader"
		var headerTy types.TypeID
		if hl, ok := t.getExact(headerName); ok && hl.Kind == RecordStruct {
			headerTy = result // placeholder; FutureHeader itself has no TypeID, referenced by name only.
			_ = headerTy
		}
		boolTy := t.types.Builtins().Bool
		return &StructLayout{
			Fields: []FieldLayout{
				{Name: "Header", Index: 0, IsRequired: true, DisplayName: headerName},
				field("Completed", boolTy, 1),
				field("Result", result, 2),
			},
		}
	})
}

// EnsureTaskLayout synthesizes `Task<T>` as
// `{FutureHeader header, uint Flags, Future<T> InnerFuture}`.
func (t *Table) EnsureTaskLayout(result types.TypeID) *Layout {
	name := fmt.Sprintf("Task<%s>", t.canonicalName(result))
	return t.ensureSynthesized(name, func() *StructLayout {
		inner := t.EnsureFutureLayout(result)
		uintTy := t.types.Builtins().Uint
		sl := &StructLayout{
			Fields: []FieldLayout{
				{Name: "Header", Index: 0, IsRequired: true, DisplayName: "FutureHeader"},
				field("Flags", uintTy, 1),
				{Name: "InnerFuture", Index: 2, IsRequired: true, DisplayName: inner.Name()},
			},
		}
		return sl
	})
}
