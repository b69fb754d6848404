package stub

import (
	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

// startQuery implements SPEC_FULL.md §4.3: decide bypass vs normal mode from the client's DO/CD
// bits and hand the question to the resolver engine with the matching flag set.
//
// FlagNoCNAME is always set. engine.Adapter delivers a single, already-fully-chased answer bag per
// completion (translateAnswer flattens the backend's entire reply in one shot), so the CNAME/DNAME
// chase happens once, in-bag, inside chaseAndCollectAnswer - never via Query.ProcessCNAME's
// Restart path, which is built for an engine that resolves one hop per completion and would
// otherwise race the in-bag chase and drop the CNAME record from the reply.
func (l *Listener) startQuery(q *Query, msg *dns.Msg) {
	flags := resolver.FlagAllProtocols | resolver.FlagNoCNAME | resolver.FlagNoSearch | resolver.FlagClampTTL

	if q.requestDO && q.requestCD {
		flags |= resolver.FlagNoValidate | resolver.FlagRequirePrimary
	} else if q.requestDO {
		flags |= resolver.FlagRequirePrimary
	}

	l.dispatchEngineQuery(q, msg.Question[0], flags)
}
