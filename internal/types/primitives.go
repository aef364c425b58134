package types

// PrimitiveInfo is the (size, align, signed?, wrapper) tuple the Primitive
// Registry resolves a scalar name to (spec.md §4.1).
type PrimitiveInfo struct {
	Size          int
	Align         int
	Signed        bool
	IsFloat       bool
	WrapperStdType string
}

// PrimitiveRegistry maps canonical scalar names and their aliases to
// PrimitiveInfo, parameterized by the target's pointer width/alignment. It
// is a static table seeded at construction; unknown names yield no answer,
// and the caller treats the name as a possible nominal type instead.
type PrimitiveRegistry struct {
	ptrSize  int
	ptrAlign int
	byName   map[string]PrimitiveInfo
}

// NewPrimitiveRegistry seeds the registry for the given pointer size/align
// (in bytes), following the teacher's Width-keyed primitive set plus the
// alias spellings spec.md §4.1 calls out (sbyte/i8, long/i64, nuint/usize, …).
func NewPrimitiveRegistry(ptrSize, ptrAlign int) *PrimitiveRegistry {
	r := &PrimitiveRegistry{ptrSize: ptrSize, ptrAlign: ptrAlign, byName: make(map[string]PrimitiveInfo, 64)}

	reg := func(names []string, info PrimitiveInfo) {
		for _, n := range names {
			r.byName[n] = info
		}
	}

	reg([]string{"bool"}, PrimitiveInfo{Size: 1, Align: 1})
	reg([]string{"int8", "i8", "sbyte"}, PrimitiveInfo{Size: 1, Align: 1, Signed: true})
	reg([]string{"int16", "i16", "short"}, PrimitiveInfo{Size: 2, Align: 2, Signed: true})
	reg([]string{"int32", "i32"}, PrimitiveInfo{Size: 4, Align: 4, Signed: true})
	reg([]string{"int64", "i64", "long"}, PrimitiveInfo{Size: 8, Align: 8, Signed: true})
	reg([]string{"int", "isize", "nint"}, PrimitiveInfo{Size: ptrSize, Align: ptrAlign, Signed: true})

	reg([]string{"uint8", "u8", "byte"}, PrimitiveInfo{Size: 1, Align: 1})
	reg([]string{"uint16", "u16", "ushort"}, PrimitiveInfo{Size: 2, Align: 2})
	reg([]string{"uint32", "u32"}, PrimitiveInfo{Size: 4, Align: 4})
	reg([]string{"uint64", "u64", "ulong"}, PrimitiveInfo{Size: 8, Align: 8})
	reg([]string{"uint", "usize", "nuint"}, PrimitiveInfo{Size: ptrSize, Align: ptrAlign})

	reg([]string{"float16", "f16", "half"}, PrimitiveInfo{Size: 2, Align: 2, Signed: true, IsFloat: true})
	reg([]string{"float32", "f32", "float"}, PrimitiveInfo{Size: 4, Align: 4, Signed: true, IsFloat: true})
	reg([]string{"float64", "f64", "double"}, PrimitiveInfo{Size: 8, Align: 8, Signed: true, IsFloat: true})

	// decimal is a 128-bit software type; layout.builtins pre-registers its
	// StructLayout, but the registry still answers scalar-ish size queries.
	reg([]string{"decimal"}, PrimitiveInfo{Size: 16, Align: 8, Signed: true, IsFloat: true, WrapperStdType: "DecimalValue"})

	reg([]string{"char"}, PrimitiveInfo{Size: 4, Align: 4, WrapperStdType: "rune"})

	return r
}

// Lookup resolves a primitive name (exact or alias spelling) to its info.
// Returns ok=false for any name the registry doesn't recognize — the caller
// should then treat the name as nominal, per spec.md §4.1's error behavior.
func (r *PrimitiveRegistry) Lookup(name string) (PrimitiveInfo, bool) {
	if r == nil {
		return PrimitiveInfo{}, false
	}
	info, ok := r.byName[name]
	return info, ok
}

// ConfigurePointerWidth updates the pointer-derived entries (int/uint/isize/
// usize/nint/nuint) in place. Mirrors spec.md §6's configure_pointer_width:
// a process-wide setting applied once per invocation before any layout
// synthesis runs.
func (r *PrimitiveRegistry) ConfigurePointerWidth(size, align int) {
	if r == nil {
		return
	}
	r.ptrSize, r.ptrAlign = size, align
	for _, n := range []string{"int", "isize", "nint"} {
		r.byName[n] = PrimitiveInfo{Size: size, Align: align, Signed: true}
	}
	for _, n := range []string{"uint", "usize", "nuint"} {
		r.byName[n] = PrimitiveInfo{Size: size, Align: align}
	}
}
