package mir

import (
	"surge/internal/source"
	"surge/internal/symbols"
	"surge/internal/types"
)

// FuncKind classifies the member shape a Func was lowered from: a plain
// function, a bound method, a type's constructor (the only kind
// CheckConstructorFieldInit runs against), a property accessor/mutator, a
// destructor, or a lambda closure body.
type FuncKind uint8

const (
	FuncKindFunction FuncKind = iota
	FuncKindMethod
	FuncKindConstructor
	FuncKindPropertyGet
	FuncKindPropertySet
	FuncKindDestructor
	FuncKindLambda
)

func (k FuncKind) String() string {
	switch k {
	case FuncKindMethod:
		return "method"
	case FuncKindConstructor:
		return "constructor"
	case FuncKindPropertyGet:
		return "property-get"
	case FuncKindPropertySet:
		return "property-set"
	case FuncKindDestructor:
		return "destructor"
	case FuncKindLambda:
		return "lambda"
	default:
		return "function"
	}
}

// Func represents a function in MIR.
type Func struct {
	ID   FuncID
	Sym  symbols.SymbolID
	Name string
	Span source.Span
	Kind FuncKind

	Result         types.TypeID
	IsAsync        bool
	Failfast       bool
	AsyncLoweredV2 bool
	ParamCount     int

	Locals []Local
	Blocks []Block
	Entry  BlockID

	ScopeLocal LocalID
}
