package types //nolint:revive

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// Abi identifies the calling convention of a function type.
type Abi uint8

const (
	// AbiDefault is the language's native calling convention.
	AbiDefault Abi = iota
	// AbiC is the platform C calling convention (for extern "C" functions).
	AbiC
	// AbiSystemV is the explicit x86_64 System V convention.
	AbiSystemV
)

// Effects enumerates side-effect annotations tracked on a function type
// signature (async/throws are surfaced here rather than as separate
// booleans so FnInfo has one extensible flag field, the way the teacher's
// SymbolFlags/LocalFlags bitsets are structured elsewhere in this package).
type Effects uint8

const (
	// EffectNone marks a plain, synchronous, non-throwing function.
	EffectNone Effects = 0
	// EffectAsync marks a function returning Future<T>/Task<T>.
	EffectAsync Effects = 1 << iota
	// EffectThrows marks a function with a `throws` clause.
	EffectThrows
	// EffectGenerator marks a function containing `yield`.
	EffectGenerator
)

// FnInfo stores metadata for function types.
type FnInfo struct {
	Params   []TypeID // parameter types (in order)
	Result   TypeID   // return type
	Abi      Abi
	Effects  Effects
	Variadic bool
}

// RegisterFn creates or finds a function type with the default ABI and no effects.
func (in *Interner) RegisterFn(params []TypeID, result TypeID) TypeID {
	return in.RegisterFnFull(params, result, AbiDefault, EffectNone, false)
}

// RegisterFnFull creates or finds a fully-specified function type
// (spec.md §3.1 Fn{params, ret, abi, effects, variadic}).
func (in *Interner) RegisterFnFull(params []TypeID, result TypeID, abi Abi, effects Effects, variadic bool) TypeID {
	if in != nil {
		for id := TypeID(1); int(id) < len(in.types); id++ {
			tt := in.types[id]
			if tt.Kind != KindFn {
				continue
			}
			if int(tt.Payload) >= len(in.fns) {
				continue
			}
			info := in.fns[tt.Payload]
			if info.Result == result && info.Abi == abi && info.Effects == effects &&
				info.Variadic == variadic && slices.Equal(info.Params, params) {
				return id
			}
		}
	}
	slot := in.appendFnInfo(FnInfo{
		Params:   cloneTypeArgs(params),
		Result:   result,
		Abi:      abi,
		Effects:  effects,
		Variadic: variadic,
	})
	return in.internRaw(Type{Kind: KindFn, Payload: slot})
}

// FnInfo retrieves function type metadata by TypeID.
func (in *Interner) FnInfo(id TypeID) (*FnInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindFn {
		return nil, false
	}
	if int(tt.Payload) >= len(in.fns) {
		return nil, false
	}
	return &in.fns[tt.Payload], true
}

func (in *Interner) appendFnInfo(info FnInfo) uint32 {
	in.fns = append(in.fns, FnInfo{
		Params:   cloneTypeArgs(info.Params),
		Result:   info.Result,
		Abi:      info.Abi,
		Effects:  info.Effects,
		Variadic: info.Variadic,
	})
	slot, err := safecast.Conv[uint32](len(in.fns) - 1)
	if err != nil {
		panic(fmt.Errorf("fn info overflow: %w", err))
	}
	return slot
}
