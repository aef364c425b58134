package layout

import "surge/internal/types"

// registerBuiltins pre-registers the built-in layouts spec.md §4.2 requires
// exist before any user type is registered: string value types, shared-
// ownership handles, async machinery descriptors, the decimal family, span/
// pointer records, memory-space markers, and accelerator handles.
func registerBuiltins(t *Table) {
	bi := t.types.Builtins()
	ptr := t.engine.ptrLayout()
	uintTy := bi.Uint

	reg := func(name string, fields []FieldLayout) *StructLayout {
		sl := &StructLayout{Name: name, Fields: fields}
		t.backfillStructLike(sl)
		t.put(&Layout{Kind: RecordStruct, Struct: sl})
		return sl
	}

	// string / str value types: {ptr, len} handles over UTF-8 bytes. Renamed
	// from the original ChicStr/ChicString to this module's own names while
	// keeping the same two-field shape.
	reg("SurgeStr", []FieldLayout{
		field("Ptr", t.types.Intern(types.MakePointer(bi.Uint8)), 0),
		field("Len", uintTy, 1),
	})
	reg("SurgeString", []FieldLayout{
		field("Ptr", t.types.Intern(types.MakePointer(bi.Uint8)), 0),
		field("Len", uintTy, 1),
		field("Cap", uintTy, 2),
	})

	// Rc/Arc control block: {StrongCount, WeakCount, ValuePtr}.
	reg("RcBox", []FieldLayout{
		field("StrongCount", uintTy, 0),
		field("WeakCount", uintTy, 1),
		field("ValuePtr", t.types.Intern(types.MakePointer(bi.Uint8)), 2),
	})
	reg("ArcBox", []FieldLayout{
		field("StrongCount", uintTy, 0),
		field("WeakCount", uintTy, 1),
		field("ValuePtr", t.types.Intern(types.MakePointer(bi.Uint8)), 2),
	})

	// Inline byte blocks used as the storage behind small-buffer optimizations.
	for _, n := range []int{16, 32, 64} {
		size := n
		align := 1
		t.put(&Layout{Kind: RecordStruct, Struct: &StructLayout{
			Name: inlineBlockName(n), Size: &size, Align: &align,
		}})
	}

	// Startup descriptor: argv/argc/env handed to the entrypoint.
	reg("StartupInfo", []FieldLayout{
		field("Argc", uintTy, 0),
		field("Argv", t.types.Intern(types.MakePointer(bi.Uint8)), 1),
		field("Envp", t.types.Intern(types.MakePointer(bi.Uint8)), 2),
	})

	// Async descriptors.
	reg("FutureHeader", []FieldLayout{
		field("State", uintTy, 0),
		field("WakerPtr", t.types.Intern(types.MakePointer(bi.Uint8)), 1),
	})
	boolTy := bi.Bool
	reg("Future", []FieldLayout{
		{Name: "Header", Index: 0, IsRequired: true, DisplayName: "FutureHeader"},
	})
	t.EnsureFutureLayout(boolTy)
	t.EnsureFutureLayout(bi.Int)
	reg("Task", []FieldLayout{
		{Name: "Header", Index: 0, IsRequired: true, DisplayName: "FutureHeader"},
		field("Flags", uintTy, 1),
	})
	t.EnsureTaskLayout(boolTy)
	t.EnsureTaskLayout(bi.Int)
	reg("RuntimeContext", []FieldLayout{
		field("WorkerID", uintTy, 0),
		field("SchedulerPtr", t.types.Intern(types.MakePointer(bi.Uint8)), 1),
	})

	// Decimal family: 128-bit software decimal plus its auxiliary enums/results.
	reg("decimal", []FieldLayout{
		field("Lo", bi.Uint64, 0),
		field("Hi", bi.Uint64, 1),
	})
	reg("DecimalRoundingMode", []FieldLayout{field("Mode", bi.Uint8, 0)})
	reg("DecimalStatus", []FieldLayout{field("Code", bi.Uint8, 0)})
	reg("DecimalIntrinsicResult", []FieldLayout{
		field("ValueLo", bi.Uint64, 0),
		field("ValueHi", bi.Uint64, 1),
		field("Status", bi.Uint8, 2),
	})
	reg("DecimalCall", []FieldLayout{
		field("Lhs", bi.Uint64, 0),
		field("Rhs", bi.Uint64, 1),
	})
	reg("Decimal128Parts", []FieldLayout{
		field("Low", bi.Uint64, 0),
		field("Mid", bi.Uint64, 1),
		field("High", bi.Uint64, 2),
		field("Flags", bi.Uint32, 3),
	})

	// Span/value-pointer records (generic Span<T>/ReadOnlySpan<T> are
	// synthesized lazily; this is the untyped raw-byte variant used by the
	// ABI layer before monomorphization).
	reg("RawSpan", []FieldLayout{
		field("Ptr", t.types.Intern(types.MakePointer(bi.Uint8)), 0),
		field("Len", uintTy, 1),
	})
	reg("ValuePointer", []FieldLayout{
		field("Ptr", t.types.Intern(types.MakePointer(bi.Uint8)), 0),
		field("TypeTag", uintTy, 1),
	})

	// Memory-space markers: zero-sized phantom tags used only at the type
	// level to distinguish pointer provenance.
	for _, n := range []string{"Pinned", "Unified"} {
		size, align := 0, 1
		t.put(&Layout{Kind: RecordStruct, Struct: &StructLayout{Name: n, Size: &size, Align: &align}})
	}
	reg("RegionHandle", []FieldLayout{field("ID", uintTy, 0)})

	// Accelerator handles: opaque pointer-sized resource handles.
	for _, n := range []string{"Stream", "Event", "Host", "PinnedHost", "Gpu", "Npu"} {
		s, a := ptr.Size, ptr.Align
		t.put(&Layout{Kind: RecordStruct, Struct: &StructLayout{Name: n, Size: &s, Align: &a}})
	}
}

func inlineBlockName(n int) string {
	switch n {
	case 16:
		return "InlineBlock16"
	case 32:
		return "InlineBlock32"
	case 64:
		return "InlineBlock64"
	default:
		return "InlineBlock"
	}
}
