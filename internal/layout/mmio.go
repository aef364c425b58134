package layout

import (
	"fmt"

	"surge/internal/diag"
	"surge/internal/source"
)

// validateMmio checks every MMIO-tagged struct for the invariants of
// spec.md §3.2: fields have non-overlapping [offset, offset+width/8) ranges,
// width is a multiple of 8 bits, offset is aligned to width/8, and the
// declared base never exceeds the struct's size when known. Violations are
// reported, not panicked — the record still materializes (§4.2 failure
// semantics).
func (t *Table) validateMmio() {
	t.mu.RLock()
	names := append([]string(nil), t.order...)
	t.mu.RUnlock()

	for _, name := range names {
		l, ok := t.getExact(name)
		if !ok || l.Kind != RecordStruct || !l.Struct.Mmio {
			continue
		}
		t.validateMmioStruct(l.Struct)
	}
}

type mmioRange struct {
	field      string
	start, end int
}

func (t *Table) validateMmioStruct(sl *StructLayout) {
	var ranges []mmioRange
	for _, f := range sl.Fields {
		if f.Mmio == nil {
			continue
		}
		if f.Mmio.Width%8 != 0 {
			t.report(diag.Diagnostic{
				Severity: diag.SevError,
				Code:     diag.LayoutMmioWidthInvalid,
				Message:  fmt.Sprintf("MMIO field %q on %s has width %d which is not a multiple of 8 bits", f.Name, sl.Name, f.Mmio.Width),
				Primary:  source.Span{},
			})
			continue
		}
		byteWidth := f.Mmio.Width / 8
		if byteWidth > 0 && f.Mmio.Offset%byteWidth != 0 {
			t.report(diag.Diagnostic{
				Severity: diag.SevError,
				Code:     diag.LayoutMmioOffsetUnaligned,
				Message:  fmt.Sprintf("MMIO field %q on %s has offset %d not aligned to its width %d", f.Name, sl.Name, f.Mmio.Offset, f.Mmio.Width),
			})
			continue
		}
		ranges = append(ranges, mmioRange{field: f.Name, start: f.Mmio.Offset, end: f.Mmio.Offset + byteWidth})
		if sl.Size != nil && f.Mmio.Offset+byteWidth > *sl.Size {
			t.report(diag.Diagnostic{
				Severity: diag.SevError,
				Code:     diag.LayoutMmioBaseOversize,
				Message:  fmt.Sprintf("MMIO field %q on %s exceeds the declared struct size %d", f.Name, sl.Name, *sl.Size),
			})
		}
	}
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].start < ranges[j].end && ranges[j].start < ranges[i].end {
				t.report(diag.Diagnostic{
					Severity: diag.SevError,
					Code:     diag.LayoutMmioOverlap,
					Message:  fmt.Sprintf("MMIO fields %q and %q on %s overlap", ranges[i].field, ranges[j].field, sl.Name),
				})
			}
		}
	}
}
