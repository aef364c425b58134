package mir

import (
	"surge/internal/diag"
	"surge/internal/layout"
	"surge/internal/source"
	"surge/internal/symbols"
	"surge/internal/types"
)

// Global represents a module-level global binding: a declared `static`/`const`
// slot, or a compiler-synthesized static string literal.
type Global struct {
	Sym   symbols.SymbolID
	Type  types.TypeID
	Name  string
	IsMut bool
	Span  source.Span
}

// TagCaseMeta describes one discriminated-union case for union-tag lowering:
// its source tag name, the synthesized symbol standing in for it, and the
// payload types carried alongside the tag.
type TagCaseMeta struct {
	TagName      string
	TagSym       symbols.SymbolID
	PayloadTypes []types.TypeID
}

// ModuleMeta carries module-wide lowering artefacts that outlive any single
// function: the legacy size/align engine still used by callers that haven't
// moved to the Type Layout Table, the Table itself (queried on demand by
// Module Lowering and the Body Builder, per the re-entrant layout-query
// contract), per-instantiation type arguments, and union tag bookkeeping
// consumed by the async state-machine lowering.
type ModuleMeta struct {
	Layout       *layout.LayoutEngine
	LayoutTable  *layout.Table
	FuncTypeArgs map[symbols.SymbolID][]types.TypeID
	TagLayouts   map[types.TypeID][]TagCaseMeta
	TagNames     map[symbols.SymbolID]string
	TagAliases   map[symbols.SymbolID]symbols.SymbolID
}

// Module is the lowered translation unit: every function body plus the
// globals they reference, keyed both by the dense FuncID the lowerer
// assigns and by the original source symbol.
type Module struct {
	Funcs     map[FuncID]*Func
	FuncBySym map[symbols.SymbolID]FuncID
	Globals   []Global
	Meta      *ModuleMeta

	// Diagnostics accumulates lowering-time findings that aren't tied to a
	// single function return value: constructor field-initialization
	// failures (CheckConstructorFieldInit) and layout-table inconsistencies
	// surfaced while Module Lowering queried LayoutTable for a function's
	// locals.
	Diagnostics []*diag.Diagnostic
}
