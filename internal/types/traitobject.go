package types //nolint:revive

import (
	"fmt"

	"fortio.org/safecast"

	"surge/internal/source"
)

// TraitObjectInfo stores metadata for a TraitObject{trait path} type —
// a dynamically-dispatched existential reference to any type implementing
// the named trait/contract.
type TraitObjectInfo struct {
	TraitPath source.StringID
}

// RegisterTraitObject creates or finds a trait-object type for the given trait path.
func (in *Interner) RegisterTraitObject(traitPath source.StringID) TypeID {
	if in != nil {
		for id := TypeID(1); int(id) < len(in.types); id++ {
			tt := in.types[id]
			if tt.Kind != KindTraitObject || int(tt.Payload) >= len(in.traitObjects) {
				continue
			}
			if in.traitObjects[tt.Payload].TraitPath == traitPath {
				return id
			}
		}
	}
	slot := in.appendTraitObjectInfo(TraitObjectInfo{TraitPath: traitPath})
	return in.internRaw(Type{Kind: KindTraitObject, Payload: slot})
}

// TraitObjectInfo retrieves trait-object metadata by TypeID.
func (in *Interner) TraitObjectInfo(id TypeID) (*TraitObjectInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindTraitObject || int(tt.Payload) >= len(in.traitObjects) {
		return nil, false
	}
	return &in.traitObjects[tt.Payload], true
}

func (in *Interner) appendTraitObjectInfo(info TraitObjectInfo) uint32 {
	in.traitObjects = append(in.traitObjects, info)
	slot, err := safecast.Conv[uint32](len(in.traitObjects) - 1)
	if err != nil {
		panic(fmt.Errorf("trait object info overflow: %w", err))
	}
	return slot
}
