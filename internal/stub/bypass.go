package stub

import (
	"github.com/markdingo/dnsstub/internal/dnsutil"
	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

// completeBypass implements SPEC_FULL.md §4.5: when a query was started with DO+CD, the engine's
// upstream reply is forwarded almost verbatim instead of being torn down into an answer bag and
// reassembled. Four patches are applied to the upstream packet before it goes back to the client:
// the id is overwritten, the OPT's advertised UDP size is rewritten to this endpoint's own value,
// every TTL has already been lowered by the elapsed upstream round-trip time (see
// internal/resolver/engine's resolve()), and the packet is truncated with TC set if it would
// otherwise exceed what the client can receive. A missing or non-DNS upstream reply falls back to
// the normal assembly path, which maps the resolver's terminal state to an appropriate rcode.
func (l *Listener) completeBypass(q *Query, rq *resolver.Query) {
	full := rq.FullPacket()
	if full == nil {
		l.assembleAndSend(q, rq)

		return
	}

	l.sendReply(q, buildBypassReply(q, full))
	l.finishQuery(q)
}

// buildBypassReply applies the four bypass patches to the upstream packet full: id overwrite, OPT
// max-UDP-size rewrite, and truncate+TC on oversize (elapsed-time TTL reduction has already been
// applied by internal/resolver/engine before full ever reaches here).
func buildBypassReply(q *Query, full *dns.Msg) *dns.Msg {
	reply := full.Copy()
	reply.Id = q.requestID
	reply.Question = []dns.Question{q.question}

	if opt := dnsutil.FindOPT(reply); opt != nil {
		opt.SetUDPSize(q.Endpoint.AdvertiseSizeMax())
	}

	limit := payloadSizeMax(q)
	if msgLen(reply) > limit {
		reply.Truncated = true
		reply.Answer = nil
		reply.Ns = nil
		reply.Extra = nil
		if opt := dnsutil.FindOPT(full); opt != nil {
			patched := &dns.OPT{Hdr: opt.Hdr}
			patched.SetVersion(0)
			patched.SetUDPSize(q.Endpoint.AdvertiseSizeMax())
			if opt.Do() {
				patched.SetDo()
			}
			reply.Extra = append(reply.Extra, patched)
		}
	}

	return reply
}
