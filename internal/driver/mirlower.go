package driver

import (
	"fmt"

	"surge/internal/borrowck"
	"surge/internal/layout"
	"surge/internal/mir"
	"surge/internal/mono"
	"surge/internal/sema"
)

// LowerModule monomorphizes an analyzed HIR module and lowers the result to
// MIR, in one call. It is the orchestration-level entry point Module
// Lowering is driven from; DiagnoseResult carries everything it needs
// (HIR, the instantiation map, the sema result) once EmitInstantiations and
// EmitHIR were requested on the DiagnoseOptions that produced it.
func LowerModule(result *DiagnoseResult, opts mono.Options) (*mir.Module, error) {
	if result == nil || result.HIR == nil || result.Instantiations == nil || result.Sema == nil {
		return nil, fmt.Errorf("driver: LowerModule requires HIR, instantiations, and sema results")
	}
	mm, err := mono.MonomorphizeModule(result.HIR, result.Instantiations, result.Sema, opts)
	if err != nil {
		return nil, fmt.Errorf("driver: monomorphizing for lowering: %w", err)
	}
	mod, err := mir.LowerModule(mm, result.Sema)
	if err != nil {
		return nil, fmt.Errorf("driver: lowering MIR: %w", err)
	}
	return mod, nil
}

// BorrowCheckModule runs the borrow checker over an already-lowered module,
// using its own Type Layout Table (mod.Meta.LayoutTable, built while
// lowering) unless a caller-supplied table overrides it — e.g. a caller that
// wants to borrow-check several modules against one shared table.
func BorrowCheckModule(mod *mir.Module, layouts *layout.Table) *borrowck.Result {
	if mod == nil {
		return &borrowck.Result{}
	}
	if layouts == nil && mod.Meta != nil {
		layouts = mod.Meta.LayoutTable
	}
	return borrowck.BorrowCheckModule(mod, layouts)
}
