package stub

import (
	"github.com/markdingo/dnsstub/internal/dnsutil"

	"github.com/miekg/dns"
)

// rawHeaderID/rawHeaderRD/rawHeaderOpcode pull fields directly out of the fixed 12-byte DNS header
// without going through a full dns.Msg.Unpack(), for use when parsing failed - id, RD and opcode are
// always at the same fixed offsets even in a packet we otherwise can't make sense of
// (RFC1035 §4.1.1).
func rawHeaderID(raw []byte) uint16 {
	if len(raw) < 2 {
		return 0
	}

	return uint16(raw[0])<<8 | uint16(raw[1])
}

func rawHeaderRD(raw []byte) bool {
	return len(raw) > 2 && raw[2]&0x01 != 0
}

// buildFormerrReply constructs a reply when the request packet could not be parsed at all: only
// the id is trustworthy, so the reply carries no question and no OPT.
func buildFormerrReply(raw []byte) *dns.Msg {
	m := new(dns.Msg)
	m.Id = rawHeaderID(raw)
	m.Response = true
	m.Opcode = dns.OpcodeQuery
	m.RecursionDesired = rawHeaderRD(raw)
	m.RecursionAvailable = true
	m.Rcode = dns.RcodeFormatError

	return m
}

// buildAdmissionRejection constructs a reply for a request that parsed successfully but was
// rejected during admission (BADVERS/REFUSED/etc). It carries the request's question back
// (RFC1035 requires QUESTION be echoed), preserves the client's CD/AD/DO per §4.5, and advertises
// the endpoint-appropriate max UDP size, clamping rcode to 4 bits if the client sent no OPT.
func buildAdmissionRejection(req *dns.Msg, endpoint *Endpoint, rcode int) *dns.Msg {
	m := new(dns.Msg)
	m.Id = req.Id
	m.Response = true
	m.Opcode = dns.OpcodeQuery
	m.RecursionDesired = req.RecursionDesired
	m.RecursionAvailable = true
	m.Question = req.Question

	opt := dnsutil.FindOPT(req)
	hasEDNS := opt != nil
	do := hasEDNS && opt.Do()

	if rcode > 0x0F && !hasEDNS {
		rcode = dns.RcodeServerFailure
	}
	m.Rcode = rcode

	if hasEDNS {
		reply := newReplyOPT(endpoint, do && req.CheckingDisabled)
		m.Extra = append(m.Extra, reply)
		if do {
			m.CheckingDisabled = req.CheckingDisabled
		}
	}

	return m
}

// newReplyOPT builds the OPT pseudo-RR this endpoint attaches to every EDNS-carrying reply: the
// endpoint's advertised max UDP size, and the DO bit mirrored per §4.4.3's edns0_do computation
// (callers pass the already-decided value in).
func newReplyOPT(endpoint *Endpoint, do bool) *dns.OPT {
	opt := &dns.OPT{}
	opt.Hdr.Name = "."
	opt.Hdr.Rrtype = dns.TypeOPT
	opt.SetVersion(0)
	opt.SetUDPSize(endpoint.AdvertiseSizeMax())
	if do {
		opt.SetDo()
	}

	return opt
}
