package symbols

import "strings"

// SpanIntrinsicSuffixes names the runtime call suffixes the borrow checker
// recognizes as span-view constructors: a call whose callee name ends in one
// of these, whose first argument is an array/vec/span place, produces a
// Span/ReadOnlySpan backed by that argument rather than a fresh allocation,
// so the checker must record a synthetic borrow on the argument instead of
// treating the destination as independent.
var SpanIntrinsicSuffixes = []string{
	"chic_rt_span_slice_mut",
	"chic_rt_span_slice_readonly",
	"AsSpan",
	"AsReadOnlySpan",
}

// IsSpanIntrinsicName reports whether name matches one of SpanIntrinsicSuffixes.
func IsSpanIntrinsicName(name string) bool {
	for _, suffix := range SpanIntrinsicSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
