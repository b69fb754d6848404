package resolver

import (
	"github.com/markdingo/dnsstub/internal/dnsutil"

	"github.com/miekg/dns"
)

// AnswerFlags encodes where an AnswerItem originated in the resolver's own view of the DNS message
// it came from (if any), plus whether it has been authenticated. SectionMask isolates the
// section-origin bits from Authenticated so callers can strip section info without losing
// authentication state (see masking in assemble.go, mirroring DNS_ANSWER_MASK_SECTIONS).
type AnswerFlags uint

const (
	SectionNone AnswerFlags = 0

	SectionAnswer AnswerFlags = 1 << iota
	SectionAuthority
	SectionAdditional

	Authenticated

	// SectionMask isolates the three section-origin bits.
	SectionMask = SectionAnswer | SectionAuthority | SectionAdditional
)

// Section returns the section-origin bits only, with Authenticated and any future non-section bit
// masked out.
func (f AnswerFlags) Section() AnswerFlags {
	return f & SectionMask
}

// AnswerItem is a single RR delivered by the resolver engine, optionally carrying the RRSIG that
// covers it and the interface it was learned on (used for scoping, not emitted to the client).
type AnswerItem struct {
	RR      dns.RR
	Ifindex int
	Flags   AnswerFlags
	RRSIG   *dns.RRSIG
}

// Answer is the flat, unordered bag of RRs a resolver Query completes with.
type Answer []AnswerItem

// ContainsRR reports whether any item in a is identical (same owner/type/class/rdata, ignoring TTL)
// to rr. Used while collecting reply sections to avoid re-adding an RR already placed in a
// higher-priority section.
func (a Answer) ContainsRR(rr dns.RR) bool {
	for _, item := range a {
		if rrDataEqual(item.RR, rr) {
			return true
		}
	}

	return false
}

// rrDataEqual compares two RRs for equality ignoring TTL, the way dns_answer_contains does: same
// header name/class/type and identical rdata.
func rrDataEqual(a, b dns.RR) bool {
	ah, bh := a.Header(), b.Header()
	if !sameOwner(ah, bh) || ah.Rrtype != bh.Rrtype || ah.Class != bh.Class {
		return false
	}

	ac, bc := dns.Copy(a), dns.Copy(b)
	ac.Header().Ttl, bc.Header().Ttl = 0, 0

	return ac.String() == bc.String()
}

func sameOwner(a, b *dns.RR_Header) bool {
	return dns.CanonicalName(a.Name) == dns.CanonicalName(b.Name)
}

// Keys returns the distinct RRset keys present in a.
func (a Answer) Keys() []dnsutil.RRKey {
	seen := make(map[dnsutil.RRKey]bool)
	keys := make([]dnsutil.RRKey, 0, len(a))
	for _, item := range a {
		k := dnsutil.KeyOf(item.RR)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	return keys
}

// RemoveByKeys returns a copy of a with every item whose RRKey appears in keys removed. This is the
// cross-section cleanup pass: once an RRset has been placed in a higher-priority section (e.g.
// ANSWER), every occurrence of that RRset - regardless of individual RR content - must be purged
// from the lower-priority sections (AUTHORITY, ADDITIONAL) to preserve RRset atomicity.
func (a Answer) RemoveByKeys(keys []dnsutil.RRKey) Answer {
	if len(keys) == 0 {
		return a
	}

	drop := make(map[dnsutil.RRKey]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}

	out := make(Answer, 0, len(a))
	for _, item := range a {
		if drop[dnsutil.KeyOf(item.RR)] {
			continue
		}
		out = append(out, item)
	}

	return out
}
