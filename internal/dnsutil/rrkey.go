package dnsutil

import (
	"github.com/miekg/dns"
)

// RRKey identifies an RRset - not an individual RR - by owner name, type and class. Two RRs that
// differ only in rdata or TTL share the same RRKey. Used to dedup across reply sections without
// splitting an RRset across ANSWER and AUTHORITY, which would violate RRset atomicity.
type RRKey struct {
	Name  string // Canonicalized (lowercased, fully-qualified)
	Type  uint16
	Class uint16
}

// KeyOf extracts the RRKey of rr.
func KeyOf(rr dns.RR) RRKey {
	hdr := rr.Header()

	return RRKey{Name: dns.CanonicalName(hdr.Name), Type: hdr.Rrtype, Class: hdr.Class}
}

// dnssecTypes are the RR types that must only be emitted when the query requested DNSSEC records
// (the EDNS0 DO bit). RRSIG, NSEC and NSEC3 are true DNSSEC metadata; DS sits at a delegation point
// and is also gated the same way because the stub listener never validates, it merely forwards.
var dnssecTypes = map[uint16]bool{
	dns.TypeRRSIG: true,
	dns.TypeNSEC:  true,
	dns.TypeNSEC3: true,
	dns.TypeDS:    true,
}

// IsDNSSECType reports whether t is one of the RR types suppressed from a reply unless the
// requesting query carried the DO bit.
func IsDNSSECType(t uint16) bool {
	return dnssecTypes[t]
}

// CNAMETarget returns the redirect target of rr if it is a CNAME or DNAME, and ok=true. DNAME
// substitution (replacing the matched suffix of the owner name with the DNAME target) is the
// resolver engine's job, not the wire layer's - this only extracts the literal Target field.
func CNAMETarget(rr dns.RR) (target string, ok bool) {
	switch v := rr.(type) {
	case *dns.CNAME:
		return v.Target, true
	case *dns.DNAME:
		return v.Target, true
	}

	return "", false
}

// QuestionMatchesRR reports whether rr is a plausible answer to q: same class, same owner name
// (case-insensitive), and either an exact type match or q asked for ANY. The resolver engine is
// assumed to have already performed wildcard expansion, so no wildcard-specific matching is needed
// here - the RR's owner name as delivered is the name that must match.
func QuestionMatchesRR(q dns.Question, rr dns.RR) bool {
	hdr := rr.Header()
	if hdr.Class != q.Qclass {
		return false
	}
	if dns.CanonicalName(hdr.Name) != dns.CanonicalName(q.Name) {
		return false
	}

	return q.Qtype == dns.TypeANY || hdr.Rrtype == q.Qtype
}
