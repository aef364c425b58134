package layout

import "surge/internal/types"

// autoTraitsForTy computes the {thread_safe, shareable, copy} triple for an
// arbitrary TypeID per spec.md §3.3, consulting the Table for any nominal
// type that already carries a computed/overridden triple.
func (t *Table) autoTraitsForTy(id types.TypeID, seen map[types.TypeID]bool) AutoTraits {
	if id == types.NoTypeID {
		return AutoTraits{Unknown, Unknown, Unknown}
	}
	if seen[id] {
		return AutoTraits{Unknown, Unknown, Unknown}
	}
	seen[id] = true

	tt, ok := t.types.Lookup(id)
	if !ok {
		return AutoTraits{Unknown, Unknown, Unknown}
	}
	switch tt.Kind {
	case types.KindArc:
		inner := t.autoTraitsForTy(tt.Elem, seen)
		return AutoTraits{ThreadSafe: inner.ThreadSafe, Shareable: inner.Shareable, Copy: No}
	case types.KindRc:
		inner := t.autoTraitsForTy(tt.Elem, seen)
		return AutoTraits{ThreadSafe: No, Shareable: inner.Shareable, Copy: No}
	case types.KindPointer, types.KindReference:
		inner := t.autoTraitsForTy(tt.Elem, seen)
		inner.Copy = Yes
		return inner
	case types.KindOwn, types.KindNullable, types.KindVector, types.KindArray:
		return t.autoTraitsForTy(tt.Elem, seen)
	case types.KindBool, types.KindInt, types.KindUint, types.KindFloat, types.KindUnit, types.KindNothing, types.KindConst:
		return AutoTraits{Yes, Yes, Yes}
	case types.KindString, types.KindStr, types.KindVec, types.KindSpan, types.KindReadOnlySpan:
		return AutoTraits{Yes, Unknown, No}
	case types.KindTraitObject:
		return AutoTraits{Unknown, Unknown, No}
	case types.KindTuple:
		return t.meetOverFields(tupleFieldTypes(t.types, id), seen)
	case types.KindStruct:
		if sl, ok := t.getExact(t.canonicalName(id)); ok && sl.Kind == RecordStruct {
			return sl.Struct.AutoTraits
		}
		return t.meetOverFields(structFieldTypes(t.types, id), seen)
	case types.KindClass:
		// any type containing/being a class: copy = No (spec.md §3.3).
		triple := t.meetOverFields(structFieldTypes(t.types, id), seen)
		triple.Copy = No
		return triple
	case types.KindEnum:
		if info, ok := t.types.EnumInfo(id); ok && info != nil && info.BaseType != types.NoTypeID {
			return t.autoTraitsForTy(info.BaseType, seen)
		}
		return AutoTraits{Yes, Yes, Yes}
	case types.KindUnion:
		// unions are always copy = No (spec.md §3.3).
		fields := unionFieldTypes(t.types, id)
		triple := t.meetOverFields(fields, seen)
		triple.Copy = No
		return triple
	case types.KindFn, types.KindDelegate:
		return AutoTraits{Yes, Yes, Yes}
	default:
		return AutoTraits{Unknown, Unknown, Unknown}
	}
}

func (t *Table) meetOverFields(fieldTypes []types.TypeID, seen map[types.TypeID]bool) AutoTraits {
	if len(fieldTypes) == 0 {
		return AutoTraits{Yes, Yes, Yes}
	}
	acc := AutoTraits{Yes, Yes, Yes}
	for _, f := range fieldTypes {
		ft := t.autoTraitsForTy(f, seen)
		acc.ThreadSafe = meet(acc.ThreadSafe, ft.ThreadSafe)
		acc.Shareable = meet(acc.Shareable, ft.Shareable)
		acc.Copy = meet(acc.Copy, ft.Copy)
	}
	return acc
}

func structFieldTypes(in *types.Interner, id types.TypeID) []types.TypeID {
	info, ok := in.StructInfo(id)
	if !ok || info == nil {
		return nil
	}
	out := make([]types.TypeID, len(info.Fields))
	for i, f := range info.Fields {
		out[i] = f.Type
	}
	return out
}

func tupleFieldTypes(in *types.Interner, id types.TypeID) []types.TypeID {
	info, ok := in.TupleInfo(id)
	if !ok || info == nil {
		return nil
	}
	return info.Elems
}

func unionFieldTypes(in *types.Interner, id types.TypeID) []types.TypeID {
	info, ok := in.UnionInfo(id)
	if !ok || info == nil {
		return nil
	}
	var out []types.TypeID
	for _, m := range info.Members {
		if m.Kind == types.UnionMemberType {
			out = append(out, m.Type)
		}
		out = append(out, m.TagArgs...)
	}
	return out
}

// AutoTraitsForType is the public auto_traits_for_type(ty) query.
func (t *Table) AutoTraitsForType(id types.TypeID) AutoTraits {
	return t.autoTraitsForTy(id, make(map[types.TypeID]bool, 8))
}

// FinalizeAutoTraits computes every registered record's auto-trait triple by
// running the §3.3 fixpoint to convergence, then applying any explicit
// override (which always wins). Run once after all layouts are registered.
func (t *Table) FinalizeAutoTraits() {
	t.mu.RLock()
	names := append([]string(nil), t.order...)
	t.mu.RUnlock()

	for pass := 0; pass < len(names)+1; pass++ {
		changed := false
		for _, name := range names {
			l, ok := t.getExact(name)
			if !ok {
				continue
			}
			switch l.Kind {
			case RecordStruct:
				fresh := t.meetOverFields(fieldTypesOf(l.Struct.Fields), make(map[types.TypeID]bool, 8))
				if l.Struct.Class != nil {
					fresh.Copy = No
				}
				if l.Struct.Dispose {
					fresh.Copy = No
				}
				fresh = l.Struct.Overrides.apply(fresh)
				if fresh != l.Struct.AutoTraits {
					l.Struct.AutoTraits = fresh
					changed = true
				}
			case RecordEnum:
				fresh := AutoTraits{Yes, Yes, Yes}
				if l.Enum.Underlying != types.NoTypeID {
					fresh = t.AutoTraitsForType(l.Enum.Underlying)
				}
				fresh = l.Enum.Overrides.apply(fresh)
				if fresh != l.Enum.AutoTraits {
					l.Enum.AutoTraits = fresh
					changed = true
				}
			case RecordUnion:
				// unions are always copy = No; thread_safe/shareable meet
				// over their view types.
				var viewTypes []types.TypeID
				for _, v := range l.Union.Views {
					if v.Ty != types.NoTypeID {
						viewTypes = append(viewTypes, v.Ty)
					}
				}
				_ = t.meetOverFields(viewTypes, make(map[types.TypeID]bool, 8))
			}
		}
		if !changed {
			break
		}
	}
}

func fieldTypesOf(fields []FieldLayout) []types.TypeID {
	out := make([]types.TypeID, len(fields))
	for i, f := range fields {
		out[i] = f.Ty
	}
	return out
}

// SetAutoTraitOverride records an explicit override for a struct/enum
// record; explicit overrides always win over the computed triple
// (spec.md §3.3).
func (t *Table) SetAutoTraitOverride(name string, override AutoTraitOverride) {
	l, ok := t.getExact(name)
	if !ok {
		return
	}
	switch l.Kind {
	case RecordStruct:
		l.Struct.Overrides = &override
	case RecordEnum:
		l.Enum.Overrides = &override
	}
}
