package layout

import "strings"

// FinalizeTypeFlags applies fallible-type tagging (spec.md §4.2): a type
// whose canonical short name ends in "Exception", or whose chain of
// class.bases transitively does, or whose short name equals "Result",
// carries TypeFlagFallible. Closes the hierarchy by iterating until no
// struct gains the flag from a freshly-tagged base.
func (t *Table) FinalizeTypeFlags() {
	t.mu.RLock()
	names := append([]string(nil), t.order...)
	t.mu.RUnlock()

	for pass := 0; pass < len(names)+1; pass++ {
		changed := false
		for _, name := range names {
			l, ok := t.getExact(name)
			if !ok || l.Kind != RecordStruct {
				continue
			}
			sl := l.Struct
			if sl.Flags&TypeFlagFallible != 0 {
				continue
			}
			short := trailingFragment(sl.Name)
			if strings.HasSuffix(short, "Exception") || short == "Result" {
				sl.Flags |= TypeFlagFallible
				changed = true
				continue
			}
			if sl.Class != nil {
				for _, base := range sl.Class.Bases {
					if bl, ok := t.getExact(base); ok && bl.Kind == RecordStruct && bl.Struct.Flags&TypeFlagFallible != 0 {
						sl.Flags |= TypeFlagFallible
						changed = true
						break
					}
				}
			}
		}
		if !changed {
			break
		}
	}
}
