package types

import (
	"fmt"

	"fortio.org/safecast"

	"surge/internal/source"
)

// TupleInfo stores the element types for a tuple type, and optionally a
// parallel slice of field names for named tuples (spec.md §3.1
// Tuple{elements, optional element names}).
type TupleInfo struct {
	Elems []TypeID
	Names []source.StringID // nil, or len(Names) == len(Elems)
}

// RegisterTuple creates or finds an existing unnamed tuple type.
func (in *Interner) RegisterTuple(elems []TypeID) TypeID {
	return in.RegisterNamedTuple(elems, nil)
}

// RegisterNamedTuple creates or finds a tuple type, optionally with per-element names.
func (in *Interner) RegisterNamedTuple(elems []TypeID, names []source.StringID) TypeID {
	slot := in.appendTupleInfo(TupleInfo{Elems: cloneTypeArgs(elems), Names: cloneStringIDs(names)})
	return in.internRaw(Type{Kind: KindTuple, Payload: slot})
}

// TupleInfo returns the element types (and optional names) for a tuple TypeID.
func (in *Interner) TupleInfo(id TypeID) (*TupleInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindTuple {
		return nil, false
	}
	if int(tt.Payload) >= len(in.tuples) {
		return nil, false
	}
	return &in.tuples[tt.Payload], true
}

func (in *Interner) appendTupleInfo(info TupleInfo) uint32 {
	if in.tuples == nil {
		in.tuples = append(in.tuples, TupleInfo{})
	}
	in.tuples = append(in.tuples, TupleInfo{
		Elems: cloneTypeArgs(info.Elems),
		Names: cloneStringIDs(info.Names),
	})
	slot, err := safecast.Conv[uint32](len(in.tuples) - 1)
	if err != nil {
		panic(fmt.Errorf("tuple info overflow: %w", err))
	}
	return slot
}

func cloneStringIDs(ids []source.StringID) []source.StringID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]source.StringID, len(ids))
	copy(out, ids)
	return out
}
