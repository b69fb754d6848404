package stub

import (
	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

// Query is one client-visible request in flight through the stub listener: admitted off the wire,
// handed to the resolver.Engine, and - once its single terminal completion arrives - assembled into
// a reply and written back out. Every Query carries FlagNoCNAME (see dispatch.go), so a CNAME/DNAME
// chain is always resolved and delivered in that one completion's answer bag rather than by
// restarting rq against a redirected name; chaseAndCollectAnswer walks the chain in-bag.
type Query struct {
	Request  *RequestPacket
	Stream   *Stream // nil for UDP queries
	Endpoint *Endpoint

	Flags resolver.Flags

	question              dns.Question
	requestID             uint16
	requestDO             bool // Client's request carried EDNS0 with the DO bit set
	requestCD             bool // Client's request carried the CD bit
	requestAD             bool // Client's request carried the AD bit
	requestHasOPT         bool
	requestAdvertisedSize uint16

	rq *resolver.Query // The resolver hop this Query is bound to

	dedupKey   dedupKey
	dedupTable *dedupTable
}

// Question returns the client's original question (the first hop's question - never a
// CNAME-redirected one, since that is what must appear in the reply's QUESTION section).
func (q *Query) Question() dns.Question { return q.question }

// finish releases this Query's dedup table entry. Safe to call multiple times.
func (q *Query) finish() {
	if q.dedupTable != nil {
		q.dedupTable.release(q)
	}
}
