/*
Package dnsutil provides helper methods to manipulate a "github.com/miekg/dns.Msg" - locating and
building the OPT pseudo-RR and reducing TTLs for the bypass path. The caller is assumed to have
checked that the dns.Msg is a legitimate IN/Query prior to calling any of these functions.
*/
package dnsutil

import (
	"github.com/miekg/dns"
)

// FindOPT searches dns.Msg.Extra for the first occurrence of an OPT RR. There should only be one.
//
// Return *dns.OPT if found otherwise nil
func FindOPT(q *dns.Msg) *dns.OPT {
	for _, rr := range q.Extra { // Search Extra for OPT RRs
		if opt, ok := rr.(*dns.OPT); ok {
			return opt
		}
	}

	return nil
}

// ReduceTTL reduces the TTL in all the RRs in Answer, Ns and Extra that have a TTL greater than
// "minimum". "by" defines how much to reduce TTLs by and "minimum" is the lower limit that we'll
// ever let a TTL reduce to. It returns the number of RRs whose TTL was changed.
func ReduceTTL(msg *dns.Msg, by uint32, minimum uint32) int {
	changeCount := 0
	if len(msg.Answer) > 0 {
		changeCount += reduceRRSet(msg.Answer, int64(by), int64(minimum))
	}
	if len(msg.Ns) > 0 {
		changeCount += reduceRRSet(msg.Ns, int64(by), int64(minimum))
	}
	if len(msg.Extra) > 0 {
		changeCount += reduceRRSet(msg.Extra, int64(by), int64(minimum))
	}

	return changeCount
}

// Helper that does the actual TTL Reduction work for the supplied RRSet. Even tho the "by" and
// "minimum" are int64 parameters we know that they originated from a uint32 so calcs in 64bit
// comfortably fit the full range of possible values without contortions.
func reduceRRSet(rrset []dns.RR, by int64, minimum int64) int {
	changeCount := 0
	for _, rr := range rrset {
		hdr := rr.Header()
		ttl := int64(hdr.Ttl) // Do all calcs in 64bit signed to capture interim negatives
		if ttl > minimum {    // Cannot reduce a ttl if it's already at the minimum
			ttl -= by          // Could go negative here
			if ttl < minimum { // but this catches negatives as well as too small
				ttl = minimum
			}
			if uint32(ttl) != hdr.Ttl { // Only return if we actually changed the value
				hdr.Ttl = uint32(ttl)
				changeCount++
			}
		}
	}

	return changeCount
}

// NewOPT creates a populated msg.OPT RR as a zero-values struct is not a valid OPT. Note that
// SetUDPSize has to be set for some resolvers that are ECS aware. In particular unbound does not
// seem to like a UDP size of zero.
func NewOPT() *dns.OPT {
	optRR := &dns.OPT{}
	optRR.SetVersion(0)
	optRR.SetUDPSize(dns.DefaultMsgSize)
	optRR.Hdr.Name = "."
	optRR.Hdr.Rrtype = dns.TypeOPT

	return optRR
}
