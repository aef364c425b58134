package layout

import "surge/internal/types"

// layoutFields runs the declared-order/packed field-placement arithmetic
// shared by structs, enum variants, and synthesized records — the same
// algorithm as LayoutEngine.structLayoutWithAttrs (compute.go), generalized
// to operate on named FieldLayout records and to write offsets back in
// place instead of returning parallel slices.
//
// Returns (size, align, changed) where changed reports whether any
// offset/size/align value differs from what the fields already carried —
// the signal BackfillMissingOffsets uses to detect a quiescent pass.
func (t *Table) layoutFields(fields []FieldLayout, repr types.Repr, packing *int, alignOverride *int) (int, int, bool) {
	changed := false
	if packing != nil {
		size := 0
		for i := range fields {
			fsize, _ := t.SizeAndAlignForTy(fields[i].Ty)
			if fields[i].Offset == nil || *fields[i].Offset != size {
				off := size
				fields[i].Offset = &off
				changed = true
			}
			size += fsize
		}
		return size, 1, changed
	}

	// Default vs C both use declaration order here; C additionally disables
	// any future reordering pass, which this table does not perform (fields
	// are never reordered after RegisterStructType).
	size := 0
	align := 1
	for i := range fields {
		fsize, falign := t.SizeAndAlignForTy(fields[i].Ty)
		if falign <= 0 {
			falign = 1
		}
		size = roundUp(size, falign)
		if fields[i].Offset == nil || *fields[i].Offset != size {
			off := size
			fields[i].Offset = &off
			changed = true
		}
		size += fsize
		align = maxInt(align, falign)
	}
	size = roundUp(size, align)
	if alignOverride != nil {
		align = maxInt(align, *alignOverride)
		size = roundUp(size, align)
	}
	return size, align, changed
}

func packingCap(sl *StructLayout) *int {
	if sl.Packing == nil {
		return nil
	}
	return sl.Packing
}

func (t *Table) backfillStructLike(sl *StructLayout) bool {
	size, align, changed := t.layoutFields(sl.Fields, sl.Repr, packingCap(sl), nil)
	if sl.Size == nil || *sl.Size != size {
		v := size
		sl.Size = &v
		changed = true
	}
	if sl.Align == nil || *sl.Align != align {
		v := align
		sl.Align = &v
		changed = true
	}
	for i := range sl.Fields {
		if sl.Fields[i].Mmio != nil {
			sl.Mmio = true
		}
	}
	return changed
}

func (t *Table) backfillEnumVariant(ev *EnumVariantLayout) bool {
	if len(ev.Fields) == 0 {
		return false
	}
	_, _, changed := t.layoutFields(ev.Fields, types.ReprDefault, nil, nil)
	return changed
}

func (t *Table) backfillEnum(el *EnumLayout) bool {
	changed := false
	bits := el.Bits
	if bits == 0 {
		bits = 32
	}
	size := bits / 8
	if size <= 0 {
		size = 4
	}
	if el.Size == nil || *el.Size != size {
		v := size
		el.Size = &v
		changed = true
	}
	if el.Align == nil || *el.Align != size {
		v := size
		el.Align = &v
		changed = true
	}
	for i := range el.Variants {
		if t.backfillEnumVariant(&el.Variants[i]) {
			changed = true
		}
	}
	return changed
}

func (t *Table) backfillUnion(ul *UnionLayout) bool {
	changed := false
	maxSize, maxAlign := 0, 1
	for _, v := range ul.Views {
		if v.Ty == types.NoTypeID {
			continue
		}
		s, a := t.SizeAndAlignForTy(v.Ty)
		if a <= 0 {
			a = 1
		}
		maxSize = maxInt(maxSize, s)
		maxAlign = maxInt(maxAlign, a)
	}
	tagSize, tagAlign := 4, 4
	payloadOffset := roundUp(tagSize, maxAlign)
	overallAlign := maxInt(tagAlign, maxAlign)
	size := roundUp(payloadOffset+maxSize, overallAlign)
	if ul.Size == nil || *ul.Size != size {
		v := size
		ul.Size = &v
		changed = true
	}
	if ul.Align == nil || *ul.Align != overallAlign {
		v := overallAlign
		ul.Align = &v
		changed = true
	}
	return changed
}

// BackfillMissingOffsets iterates backfill_struct_like over every registered
// struct/class/enum/union until a quiescent pass or |types| iterations,
// matching spec.md §4.2's convergence contract.
func (t *Table) BackfillMissingOffsets() {
	t.mu.RLock()
	names := append([]string(nil), t.order...)
	t.mu.RUnlock()

	maxPasses := len(names)
	if maxPasses == 0 {
		return
	}
	for pass := 0; pass < maxPasses; pass++ {
		anyChanged := false
		for _, name := range names {
			l, ok := t.getExact(name)
			if !ok {
				continue
			}
			var changed bool
			switch l.Kind {
			case RecordStruct:
				changed = t.backfillStructLike(l.Struct)
			case RecordEnum:
				changed = t.backfillEnum(l.Enum)
			case RecordUnion:
				changed = t.backfillUnion(l.Union)
			}
			anyChanged = anyChanged || changed
		}
		if !anyChanged {
			break
		}
	}
	t.validateMmio()
}
