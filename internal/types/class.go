package types //nolint:revive

import (
	"fmt"

	"fortio.org/safecast"

	"surge/internal/source"
)

// ClassInfo stores metadata for a reference ("class") type: a nominal type
// with base classes, possibly a dispose method, possibly an exception base
// (spec.md §3.2 ClassLayoutInfo{kind, bases, vtable_offset?}).
type ClassInfo struct {
	Name       source.StringID
	Decl       source.Span
	Bases      []TypeID
	TypeArgs   []TypeID
	HasDispose bool
	IsError    bool // Exception-derived: layout.FALLIBLE tagging consults this
}

// RegisterClass allocates a nominal class type slot and returns its TypeID.
func (in *Interner) RegisterClass(name source.StringID, decl source.Span) TypeID {
	slot := in.appendClassInfo(ClassInfo{Name: name, Decl: decl})
	return in.internRaw(Type{Kind: KindClass, Payload: slot})
}

// RegisterClassInstance allocates a class instantiation with type arguments.
func (in *Interner) RegisterClassInstance(name source.StringID, decl source.Span, args []TypeID) TypeID {
	slot := in.appendClassInfo(ClassInfo{Name: name, Decl: decl, TypeArgs: cloneTypeArgs(args)})
	return in.internRaw(Type{Kind: KindClass, Payload: slot})
}

// SetClassBases records the direct base classes of a class type.
func (in *Interner) SetClassBases(typeID TypeID, bases []TypeID) {
	info := in.classInfo(typeID)
	if info == nil {
		return
	}
	info.Bases = cloneTypeArgs(bases)
}

// SetClassDispose records whether the class declares a dispose method.
func (in *Interner) SetClassDispose(typeID TypeID, hasDispose bool) {
	info := in.classInfo(typeID)
	if info == nil {
		return
	}
	info.HasDispose = hasDispose
}

// SetClassIsError marks the class as deriving (transitively) from the
// built-in Exception base.
func (in *Interner) SetClassIsError(typeID TypeID, isError bool) {
	info := in.classInfo(typeID)
	if info == nil {
		return
	}
	info.IsError = isError
}

// ClassInfo returns metadata for the provided class TypeID.
func (in *Interner) ClassInfo(typeID TypeID) (*ClassInfo, bool) {
	info := in.classInfo(typeID)
	if info == nil {
		return nil, false
	}
	return info, true
}

// ClassBasesTransitive walks the base-class chain, closing over every
// ancestor. Guards against cyclic base lists the way layout recursion does.
func (in *Interner) ClassBasesTransitive(typeID TypeID) []TypeID {
	seen := make(map[TypeID]struct{}, 8)
	var out []TypeID
	var walk func(TypeID)
	walk = func(id TypeID) {
		info := in.classInfo(id)
		if info == nil {
			return
		}
		for _, base := range info.Bases {
			if _, ok := seen[base]; ok {
				continue
			}
			seen[base] = struct{}{}
			out = append(out, base)
			walk(base)
		}
	}
	walk(typeID)
	return out
}

func (in *Interner) classInfo(typeID TypeID) *ClassInfo {
	if typeID == NoTypeID {
		return nil
	}
	tt, ok := in.Lookup(typeID)
	if !ok || tt.Kind != KindClass {
		return nil
	}
	if int(tt.Payload) >= len(in.classes) {
		return nil
	}
	return &in.classes[tt.Payload]
}

func (in *Interner) appendClassInfo(info ClassInfo) uint32 {
	if in.classes == nil {
		in.classes = append(in.classes, ClassInfo{})
	}
	in.classes = append(in.classes, ClassInfo{
		Name:       info.Name,
		Decl:       info.Decl,
		Bases:      cloneTypeArgs(info.Bases),
		TypeArgs:   cloneTypeArgs(info.TypeArgs),
		HasDispose: info.HasDispose,
		IsError:    info.IsError,
	})
	slot, err := safecast.Conv[uint32](len(in.classes) - 1)
	if err != nil {
		panic(fmt.Errorf("class info overflow: %w", err))
	}
	return slot
}
