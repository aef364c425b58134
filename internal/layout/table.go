package layout

import (
	"sort"
	"strings"
	"sync"

	"surge/internal/diag"
	"surge/internal/source"
	"surge/internal/types"
)

// Table is the Type Layout Table (spec.md §4.2): the registry of tagged
// `StructLayout | EnumLayout | UnionLayout` records keyed by canonical name,
// built on top of the raw size/align arithmetic in LayoutEngine.
type Table struct {
	engine *LayoutEngine
	types  *types.Interner

	mu     sync.RWMutex
	byName map[string]*Layout
	order  []string // insertion order, walked by backfill/finalize passes

	diags []*diag.Diagnostic
}

// NewTable constructs an empty Table bound to a Target/Interner pair and
// pre-registers the built-in layouts (spec.md §4.2's pre-registration list).
func NewTable(target Target, typesIn *types.Interner) *Table {
	t := &Table{
		engine: New(target, typesIn),
		types:  typesIn,
		byName: make(map[string]*Layout, 256),
	}
	registerBuiltins(t)
	return t
}

// Engine exposes the underlying raw size/align engine, e.g. for callers that
// only need `size_and_align_for_ty` without a full tagged record.
func (t *Table) Engine() *LayoutEngine { return t.engine }

// Types exposes the type interner this table was built against, e.g. for
// callers (the borrow checker) that need to classify a TypeID's Kind without
// duplicating a second interner handle.
func (t *Table) Types() *types.Interner { return t.types }

// Diagnostics returns layout-inconsistency diagnostics accumulated since
// construction (MMIO overlap, recursive-unsized types, packing conflicts).
// Failure semantics per spec.md §4.2: the record still materializes with
// best-effort fields alongside the diagnostic.
func (t *Table) Diagnostics() []*diag.Diagnostic {
	return t.diags
}

func (t *Table) report(d diag.Diagnostic) {
	t.diags = append(t.diags, &d)
}

func (t *Table) put(l *Layout) {
	name := l.Name()
	if name == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byName[name]; !exists {
		t.order = append(t.order, name)
	}
	t.byName[name] = l
}

func (t *Table) getExact(name string) (*Layout, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.byName[name]
	return l, ok
}

// trailingFragment returns the portion of a canonical name after its last
// top-level `::`, ignoring anything inside generic angle brackets.
func trailingFragment(name string) string {
	depth := 0
	lastSep := -1
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 && i+1 < len(name) && name[i+1] == ':' {
				lastSep = i
				i++
			}
		}
	}
	if lastSep < 0 {
		return name
	}
	return name[lastSep+2:]
}

func isClassRecord(l *Layout) bool {
	return l.Kind == RecordStruct && l.Struct != nil && l.Struct.Class != nil
}

// LayoutForName resolves a name to a layout record using the disambiguation
// rules of spec.md §4.2: exact match wins; otherwise match on the trailing
// fragment, preferring fully-qualified keys over short ones and preferring
// non-class over class when both exist, breaking ties lexicographically.
func (t *Table) LayoutForName(name string) (*Layout, bool) {
	name = types.NormalizePath(name)
	if l, ok := t.getExact(name); ok {
		return l, true
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidates []*Layout
	for _, n := range t.order {
		l := t.byName[n]
		if trailingFragment(n) == name {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		qi := strings.Contains(candidates[i].Name(), "::")
		qj := strings.Contains(candidates[j].Name(), "::")
		if qi != qj {
			return qi // qualified first
		}
		ci := isClassRecord(candidates[i])
		cj := isClassRecord(candidates[j])
		if ci != cj {
			return !ci // non-class first
		}
		return candidates[i].Name() < candidates[j].Name()
	})
	return candidates[0], true
}

// SizeAndAlignForTy is the recursion-safe size/align query; a cycle returns
// (pointer_size, pointer_align) as a break, matching LayoutEngine's
// canonicalizing cycle guard.
func (t *Table) SizeAndAlignForTy(id types.TypeID) (int, int) {
	l := t.engine.LayoutOf(id)
	return l.Size, l.Align
}

func (t *Table) fieldName(id source.StringID) string {
	if t.types == nil || t.types.Strings == nil {
		return ""
	}
	s, _ := t.types.Strings.Lookup(id)
	return s
}

func (t *Table) canonicalName(id types.TypeID) string {
	return types.CanonicalName(t.types, id)
}

// RegisterStructType builds (or returns the existing) StructLayout skeleton
// for a struct/class TypeID from the Interner's StructInfo, to be completed
// by BackfillMissingOffsets. Field offsets are left nil until backfill.
func (t *Table) RegisterStructType(id types.TypeID) *StructLayout {
	name := t.canonicalName(id)
	if existing, ok := t.getExact(name); ok && existing.Kind == RecordStruct {
		return existing.Struct
	}
	info, ok := t.types.StructInfo(id)
	if !ok || info == nil {
		return nil
	}
	attrs, _ := t.types.TypeLayoutAttrs(id)
	sl := &StructLayout{
		Name:   name,
		Repr:   attrs.Repr,
		Fields: make([]FieldLayout, len(info.Fields)),
	}
	if attrs.Packed {
		one := 1
		sl.Packing = &one
	} else if attrs.AlignOverride != nil {
		sl.Packing = nil
	}
	positional := make([]int, 0, len(info.Fields))
	for i, f := range info.Fields {
		fl := FieldLayout{
			Name:       t.fieldName(f.Name),
			Ty:         f.Type,
			Index:      i,
			IsRequired: true,
			IsNullable: isNullableType(t.types, f.Type),
		}
		if f.Layout.AlignOverride != nil {
			v := *f.Layout.AlignOverride
			fl.Offset = nil
			_ = v // consumed during backfill via TypeLayoutAttrs/per-field override lookup
		}
		sl.Fields[i] = fl
		positional = append(positional, i)
	}
	sl.Positional = positional
	t.put(&Layout{Kind: RecordStruct, Struct: sl})
	return sl
}

// RegisterClassType is RegisterStructType plus the ClassLayoutInfo annex.
func (t *Table) RegisterClassType(id types.TypeID) *StructLayout {
	name := t.canonicalName(id)
	info, ok := t.types.ClassInfo(id)
	if !ok || info == nil {
		return nil
	}
	sl := t.registerClassFields(id, name, info)
	bases := make([]string, 0, len(info.Bases))
	for _, b := range t.types.ClassBasesTransitive(id) {
		bases = append(bases, t.canonicalName(b))
	}
	kind := ClassKindClass
	if info.IsError {
		kind = ClassKindError
	}
	sl.Class = &ClassLayoutInfo{Kind: kind, Bases: bases}
	sl.Dispose = info.HasDispose
	return sl
}

func (t *Table) registerClassFields(id types.TypeID, name string, _ *types.ClassInfo) *StructLayout {
	if existing, ok := t.getExact(name); ok && existing.Kind == RecordStruct {
		return existing.Struct
	}
	sl := &StructLayout{Name: name}
	t.put(&Layout{Kind: RecordStruct, Struct: sl})
	return sl
}

func isNullableType(in *types.Interner, id types.TypeID) bool {
	tt, ok := in.Lookup(id)
	return ok && tt.Kind == types.KindNullable
}

// RegisterEnumType builds the EnumLayout skeleton from EnumInfo.
func (t *Table) RegisterEnumType(id types.TypeID) *EnumLayout {
	name := t.canonicalName(id)
	if existing, ok := t.getExact(name); ok && existing.Kind == RecordEnum {
		return existing.Enum
	}
	info, ok := t.types.EnumInfo(id)
	if !ok || info == nil {
		return nil
	}
	el := &EnumLayout{
		Name:       name,
		Underlying: info.BaseType,
		Variants:   make([]EnumVariantLayout, len(info.Variants)),
	}
	if info.BaseType != types.NoTypeID {
		if bt, ok := t.types.Lookup(info.BaseType); ok {
			el.Signed = bt.Kind == types.KindInt
			el.Bits = int(bt.Width)
		}
	} else {
		el.Signed = true
		el.Bits = 32
	}
	for i, v := range info.Variants {
		el.Variants[i] = EnumVariantLayout{
			Name:         t.fieldName(v.Name),
			Index:        i,
			Discriminant: v.IntValue,
		}
	}
	t.put(&Layout{Kind: RecordEnum, Enum: el})
	return el
}

// RegisterUnionType builds the UnionLayout skeleton from UnionInfo.
func (t *Table) RegisterUnionType(id types.TypeID) *UnionLayout {
	name := t.canonicalName(id)
	if existing, ok := t.getExact(name); ok && existing.Kind == RecordUnion {
		return existing.Union
	}
	info, ok := t.types.UnionInfo(id)
	if !ok || info == nil {
		return nil
	}
	ul := &UnionLayout{Name: name, Views: make([]UnionView, 0, len(info.Members))}
	for i, m := range info.Members {
		switch m.Kind {
		case types.UnionMemberType:
			ul.Views = append(ul.Views, UnionView{
				Name: t.canonicalName(m.Type), Ty: m.Type, Index: i, Mode: UnionViewValue,
			})
		case types.UnionMemberTag:
			ul.Views = append(ul.Views, UnionView{
				Name: t.fieldName(m.TagName), Index: i, Mode: UnionViewValue,
			})
		case types.UnionMemberNothing:
			ul.Views = append(ul.Views, UnionView{Name: "nothing", Index: i, Mode: UnionViewValue})
		}
	}
	t.put(&Layout{Kind: RecordUnion, Union: ul})
	return ul
}

// TypeRequiresDrop reports whether a TypeID requires drop: it contains
// String, Vec, Rc/Arc, TraitObject, has a dispose, or any field transitively
// does (spec.md §4.2). Pointers, references, Span/ReadOnlySpan, Fn, and
// value primitives never require drop.
func (t *Table) TypeRequiresDrop(id types.TypeID) bool {
	return t.typeRequiresDrop(id, make(map[types.TypeID]bool, 8))
}

func (t *Table) typeRequiresDrop(id types.TypeID, seen map[types.TypeID]bool) bool {
	if id == types.NoTypeID || seen[id] {
		return false
	}
	seen[id] = true
	tt, ok := t.types.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case types.KindString, types.KindVec, types.KindRc, types.KindArc, types.KindTraitObject:
		return true
	case types.KindPointer, types.KindReference, types.KindSpan, types.KindReadOnlySpan, types.KindFn,
		types.KindBool, types.KindInt, types.KindUint, types.KindFloat, types.KindUnit, types.KindNothing,
		types.KindStr, types.KindConst, types.KindGenericParam:
		return false
	case types.KindOwn, types.KindNullable, types.KindVector:
		return t.typeRequiresDrop(tt.Elem, seen)
	case types.KindArray:
		return t.typeRequiresDrop(tt.Elem, seen)
	case types.KindTuple:
		if info, ok := t.types.TupleInfo(id); ok && info != nil {
			for _, e := range info.Elems {
				if t.typeRequiresDrop(e, seen) {
					return true
				}
			}
		}
		return false
	case types.KindStruct:
		if info, ok := t.types.StructInfo(id); ok && info != nil {
			for _, f := range info.Fields {
				if t.typeRequiresDrop(f.Type, seen) {
					return true
				}
			}
		}
		return false
	case types.KindClass:
		if info, ok := t.types.ClassInfo(id); ok && info != nil {
			if info.HasDispose {
				return true
			}
		}
		return true // any type containing/being a class requires drop
	case types.KindUnion:
		return true
	case types.KindEnum:
		return false
	default:
		return false
	}
}

// TypeRequiresDropByName answers type_requires_drop(name) by first resolving
// through LayoutForName.
func (t *Table) TypeRequiresDropByName(name string) bool {
	l, ok := t.LayoutForName(name)
	if !ok {
		return false
	}
	if l.Kind == RecordStruct && l.Struct.Dispose {
		return true
	}
	return l.Kind == RecordUnion || (l.Kind == RecordStruct && l.Struct.Class != nil)
}
