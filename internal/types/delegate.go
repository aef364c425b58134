package types //nolint:revive

import (
	"fmt"

	"fortio.org/safecast"

	"surge/internal/source"
)

// DelegateInfo stores metadata for a nominal delegate type — a named
// function-pointer-shaped type (distinct from an anonymous KindFn value so
// it gets its own Layout Table entry and display name, per spec.md §4.2's
// ensure_delegate_layout).
type DelegateInfo struct {
	Name source.StringID
	Decl source.Span
	Fn   TypeID // underlying KindFn signature
}

// RegisterDelegate allocates a nominal delegate type slot.
func (in *Interner) RegisterDelegate(name source.StringID, decl source.Span, fn TypeID) TypeID {
	slot := in.appendDelegateInfo(DelegateInfo{Name: name, Decl: decl, Fn: fn})
	return in.internRaw(Type{Kind: KindDelegate, Payload: slot})
}

// DelegateInfo retrieves delegate metadata by TypeID.
func (in *Interner) DelegateInfo(id TypeID) (*DelegateInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindDelegate || int(tt.Payload) >= len(in.delegates) {
		return nil, false
	}
	return &in.delegates[tt.Payload], true
}

func (in *Interner) appendDelegateInfo(info DelegateInfo) uint32 {
	in.delegates = append(in.delegates, info)
	slot, err := safecast.Conv[uint32](len(in.delegates) - 1)
	if err != nil {
		panic(fmt.Errorf("delegate info overflow: %w", err))
	}
	return slot
}
