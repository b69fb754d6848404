package resolver

// Flags is the bitmask of query-construction options the stub listener hands to the resolver
// engine's NewQuery(). Naming follows the original SD_RESOLVED_* flag set.
type Flags uint

const (
	FlagAllProtocols Flags = 1 << iota
	FlagNoCNAME
	FlagNoSearch
	FlagNoValidate
	FlagRequirePrimary
	FlagClampTTL
)

// Has reports whether all bits of want are set in f.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// bypassFlags is the exact flag combination the query dispatcher submits when the client set both
// DO and CD (SPEC_FULL.md §4.3): forward verbatim, no CNAME chase, no search, no validation, pin to
// the primary upstream server, clamp TTL.
const bypassFlags = FlagAllProtocols | FlagNoCNAME | FlagNoSearch | FlagNoValidate | FlagRequirePrimary | FlagClampTTL

// IsBypass reports whether f is exactly the bypass flag combination, which is how an Engine
// implementation recognizes it must attempt to deliver a verbatim upstream packet via
// Query.CompleteBypass rather than an answer bag via Query.Complete.
func (f Flags) IsBypass() bool {
	return f == bypassFlags
}
