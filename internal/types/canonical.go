package types

import (
	"strconv"
	"strings"
)

// CanonicalName renders the deterministic string form of a type used as the
// Layout Table's primary key (spec.md §3.1, §3.2). Nominal names are
// normalized to `::` separators regardless of whether the frontend used `.`
// or `::` in the source; structural types render a deterministic composed
// form matching their shape.
func CanonicalName(in *Interner, id TypeID) string {
	return canonicalDepth(in, id, 0)
}

// NormalizePath converts a `.`-or-`::`-separated path to the canonical
// `::`-separated form.
func NormalizePath(path string) string {
	if !strings.Contains(path, "::") && strings.Contains(path, ".") {
		return strings.ReplaceAll(path, ".", "::")
	}
	return path
}

func canonicalDepth(in *Interner, id TypeID, depth int) string {
	if id == NoTypeID {
		return "<invalid>"
	}
	if depth > 64 {
		return "<cycle>"
	}
	if in == nil {
		return "<invalid>"
	}
	tt, ok := in.Lookup(id)
	if !ok {
		return "<invalid>"
	}
	switch tt.Kind {
	case KindUnit:
		return "unit"
	case KindUnknown:
		return "unknown"
	case KindNothing:
		return "nothing"
	case KindBool:
		return "bool"
	case KindString:
		return "String"
	case KindStr:
		return "str"
	case KindInt:
		return canonicalIntName(tt.Width, true)
	case KindUint:
		return canonicalIntName(tt.Width, false)
	case KindFloat:
		return canonicalFloatName(tt.Width)
	case KindConst:
		return "const " + strconv.FormatUint(uint64(tt.Count), 10)
	case KindPointer:
		return "*" + canonicalDepth(in, tt.Elem, depth+1)
	case KindReference:
		if tt.Mutable {
			return "&mut " + canonicalDepth(in, tt.Elem, depth+1)
		}
		return "&" + canonicalDepth(in, tt.Elem, depth+1)
	case KindOwn:
		return "own " + canonicalDepth(in, tt.Elem, depth+1)
	case KindNullable:
		return canonicalDepth(in, tt.Elem, depth+1) + "?"
	case KindRc:
		return "Rc<" + canonicalDepth(in, tt.Elem, depth+1) + ">"
	case KindArc:
		return "Arc<" + canonicalDepth(in, tt.Elem, depth+1) + ">"
	case KindVec:
		return "Vec<" + canonicalDepth(in, tt.Elem, depth+1) + ">"
	case KindSpan:
		return "Span<" + canonicalDepth(in, tt.Elem, depth+1) + ">"
	case KindReadOnlySpan:
		return "ReadOnlySpan<" + canonicalDepth(in, tt.Elem, depth+1) + ">"
	case KindVector:
		return "Vector<" + canonicalDepth(in, tt.Elem, depth+1) + ", " + strconv.FormatUint(uint64(tt.Count), 10) + ">"
	case KindArray:
		elem := canonicalDepth(in, tt.Elem, depth+1)
		if tt.Count == ArrayDynamicLength {
			return "[" + elem + "]"
		}
		return "[" + elem + "; " + strconv.FormatUint(uint64(tt.Count), 10) + "]"
	case KindStruct:
		return canonicalNominal(in, nominalName(in, id), nominalArgs(in, id), depth)
	case KindClass:
		return canonicalNominal(in, nominalName(in, id), nominalArgs(in, id), depth)
	case KindEnum:
		return canonicalNominal(in, nominalName(in, id), nominalArgs(in, id), depth)
	case KindUnion:
		return canonicalNominal(in, nominalName(in, id), nominalArgs(in, id), depth)
	case KindAlias:
		return canonicalNominal(in, nominalName(in, id), nominalArgs(in, id), depth)
	case KindDelegate:
		info, ok := in.DelegateInfo(id)
		if !ok || info == nil {
			return "<delegate>"
		}
		return NormalizePath(lookupNameFallback(in.Strings, info.Name))
	case KindTraitObject:
		info, ok := in.TraitObjectInfo(id)
		if !ok || info == nil {
			return "dyn <unknown>"
		}
		return "dyn " + NormalizePath(lookupNameFallback(in.Strings, info.TraitPath))
	case KindTuple:
		info, ok := in.TupleInfo(id)
		if !ok || info == nil {
			return "()"
		}
		parts := make([]string, len(info.Elems))
		for i, e := range info.Elems {
			parts[i] = canonicalDepth(in, e, depth+1)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindFn:
		info, ok := in.FnInfo(id)
		if !ok || info == nil {
			return "fn()"
		}
		params := make([]string, len(info.Params))
		for i, p := range info.Params {
			params[i] = canonicalDepth(in, p, depth+1)
		}
		ret := canonicalDepth(in, info.Result, depth+1)
		variadic := ""
		if info.Variadic {
			variadic = ", ..."
		}
		return "fn(" + strings.Join(params, ", ") + variadic + ") -> " + ret
	case KindGenericParam:
		if info, ok := in.TypeParamInfo(id); ok && info != nil {
			if name, ok := lookupName(in.Strings, info.Name); ok {
				return name
			}
		}
		return "T"
	default:
		return "<invalid>"
	}
}

func nominalName(in *Interner, id TypeID) string {
	switch tt, _ := in.Lookup(id); tt.Kind {
	case KindStruct:
		if info, ok := in.StructInfo(id); ok && info != nil {
			return lookupNameFallback(in.Strings, info.Name)
		}
	case KindClass:
		if info, ok := in.ClassInfo(id); ok && info != nil {
			return lookupNameFallback(in.Strings, info.Name)
		}
	case KindEnum:
		if info, ok := in.EnumInfo(id); ok && info != nil {
			return lookupNameFallback(in.Strings, info.Name)
		}
	case KindUnion:
		if info, ok := in.UnionInfo(id); ok && info != nil {
			return lookupNameFallback(in.Strings, info.Name)
		}
	case KindAlias:
		if info, ok := in.AliasInfo(id); ok && info != nil {
			return lookupNameFallback(in.Strings, info.Name)
		}
	}
	return "?"
}

func nominalArgs(in *Interner, id TypeID) []TypeID {
	switch tt, _ := in.Lookup(id); tt.Kind {
	case KindStruct:
		return in.StructArgs(id)
	case KindClass:
		if info, ok := in.ClassInfo(id); ok && info != nil {
			return info.TypeArgs
		}
	case KindEnum:
		return in.EnumArgs(id)
	case KindUnion:
		return in.UnionArgs(id)
	case KindAlias:
		return in.AliasArgs(id)
	}
	return nil
}

func canonicalNominal(in *Interner, name string, args []TypeID, depth int) string {
	name = NormalizePath(name)
	if len(args) == 0 {
		return name
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = canonicalDepth(in, a, depth+1)
	}
	return name + "<" + strings.Join(parts, ", ") + ">"
}

func canonicalIntName(w Width, signed bool) string {
	prefix := "int"
	if !signed {
		prefix = "uint"
	}
	if w == WidthAny {
		return prefix
	}
	return prefix + strconv.FormatUint(uint64(w), 10)
}

func canonicalFloatName(w Width) string {
	if w == WidthAny {
		return "float"
	}
	return "float" + strconv.FormatUint(uint64(w), 10)
}
