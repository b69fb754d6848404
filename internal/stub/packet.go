package stub

import (
	"net"

	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

// payloadSizeMax returns the capacity a reply packet must be built within: the client's advertised
// OPT size for UDP, 512 if no OPT, or the effectively unbounded TCP maximum - SPEC_FULL.md §4.4.3.
func payloadSizeMax(q *Query) int {
	if q.Request.Transport == TransportTCP {
		return int(consts.MaximumViableDNSMessage)
	}
	if q.requestHasOPT && int(q.requestAdvertisedSize) > 0 {
		return int(q.requestAdvertisedSize)
	}

	return consts.DNSTruncateThreshold
}

// buildReplyPacket implements §4.4.3's packet emission and truncation rules, given the three
// already deduplicated reply sections.
func (l *Listener) buildReplyPacket(q *Query, rcode int, edns0DO bool, answer, authority, additional resolver.Answer) *dns.Msg {
	m := new(dns.Msg)
	m.Id = q.requestID
	m.Response = true
	m.Opcode = dns.OpcodeQuery
	m.RecursionDesired = true
	m.RecursionAvailable = true
	m.Authoritative = false // This listener never synthesizes answers locally

	limit := payloadSizeMax(q)

	m.Question = []dns.Question{q.question}
	if msgLen(m) > limit {
		m.Truncated = true
	}

	for _, item := range answer {
		if !m.Truncated {
			candidate := append(append([]dns.RR{}, m.Answer...), item.RR)
			if sectionLen(m.Question, candidate, m.Ns, m.Extra) > limit {
				m.Truncated = true

				break
			}
		}
		m.Answer = append(m.Answer, item.RR)
	}

	if !q.requestHasOPT {
		edns0DO = false
	}

	if !m.Truncated {
		for _, item := range authority {
			candidate := append(append([]dns.RR{}, m.Ns...), item.RR)
			if sectionLen(m.Question, m.Answer, candidate, m.Extra) > limit {
				if edns0DO {
					m.Truncated = true
				}

				break
			}
			m.Ns = append(m.Ns, item.RR)
		}
	}

	if !m.Truncated {
		for _, item := range additional {
			candidate := append(append([]dns.RR{}, m.Extra...), item.RR)
			if sectionLen(m.Question, m.Answer, m.Ns, candidate) > limit {
				break // Additional silently drops remainder, never sets TC
			}
			m.Extra = append(m.Extra, item.RR)
		}
	}

	if rcode > 0x0F && !q.requestHasOPT {
		rcode = dns.RcodeServerFailure
	}
	m.Rcode = rcode & 0xFFF

	m.AuthenticatedData = q.requestAD && fullyAuthenticated(answer)
	m.CheckingDisabled = edns0DO && q.requestCD

	if q.requestHasOPT {
		opt := newReplyOPT(q.Endpoint, edns0DO)
		if q.Endpoint.Kind() == KindPrimary && q.Endpoint.NSID() != nil {
			opt.Option = append(opt.Option, &dns.EDNS0_NSID{Code: dns.EDNS0NSID, Nsid: hexEncode(q.Endpoint.NSID())})
		}
		if msgLen(appendOPT(m, opt)) > limit {
			m.Truncated = true
		} else {
			m.Extra = append(m.Extra, opt)
		}
	}

	return m
}

func appendOPT(m *dns.Msg, opt *dns.OPT) *dns.Msg {
	clone := m.Copy()
	clone.Extra = append(clone.Extra, opt)

	return clone
}

func hexEncode(b []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0x0F]
	}

	return string(out)
}

func msgLen(m *dns.Msg) int {
	raw, err := m.Pack()
	if err != nil {
		return 0
	}

	return len(raw)
}

func sectionLen(question []dns.Question, answer, ns, extra []dns.RR) int {
	m := &dns.Msg{
		MsgHdr:   dns.MsgHdr{},
		Question: question,
		Answer:   answer,
		Ns:       ns,
		Extra:    extra,
	}

	return msgLen(m)
}

// sendReply packs and writes the assembled reply back to the client over whichever transport the
// request arrived on, per §4.4.4.
func (l *Listener) sendReply(q *Query, m *dns.Msg) {
	raw, err := m.Pack()
	if err != nil {
		l.trace("stub: failed to pack reply: " + err.Error())

		return
	}

	if q.Stream != nil {
		if err := q.Stream.write(raw); err != nil {
			l.trace("stub: failed to write TCP reply: " + err.Error())
		}
		q.Stream.untrack(q)

		return
	}

	ep := q.Endpoint
	if ep.udpConn == nil {
		return
	}

	addr := &net.UDPAddr{IP: q.Request.SenderAddr, Port: int(q.Request.SenderPort)}
	if _, err := ep.udpConn.raw.WriteTo(raw, addr); err != nil {
		l.trace("stub: failed to write UDP reply: " + err.Error())
	}
}
