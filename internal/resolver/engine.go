package resolver

import (
	"errors"

	"github.com/miekg/dns"
)

// errNoEngine is returned internally when a Query tries to restart itself (CNAME chase) without
// having been handed to an Engine via Start - a programming error in the caller, never a runtime
// condition a client can trigger.
var errNoEngine = errors.New("resolver: query has no associated engine")

// Engine is the resolver-facing boundary the stub listener is built against. It asks for
// resolution, never for caching, upstream server selection or DNSSEC validation policy - those
// remain entirely the engine's concern. An Engine implementation owns delivering exactly one
// terminal completion per Start or Restart call, asynchronously, via the CompletionFunc supplied to
// NewQuery.
type Engine interface {
	// NewQuery allocates a Query bound to this engine for the given question and flags. It does
	// not begin resolution.
	NewQuery(ref RequestRef, question dns.Question, flags Flags, onComplete CompletionFunc) *Query

	// Start begins resolution of q. The engine must eventually call the Query's completion
	// callback exactly once, on a different goroutine than the caller of Start.
	Start(q *Query) error

	// Restart resumes q against a new question after a CNAME/DNAME redirect. Semantically
	// equivalent to Start but reuses the existing Query and its redirect counter.
	Restart(q *Query, question dns.Question) error

	// Cancel abandons q, e.g. because the client's TCP stream closed or the UDP reply was never
	// going to be deliverable. The engine must not invoke q's completion callback after Cancel
	// returns, and any completion already in flight concurrent with Cancel is permitted to be
	// delivered or dropped at the engine's discretion.
	Cancel(q *Query)
}

// Bind associates q with the engine that produced it so that ProcessCNAME can call Restart without
// requiring callers to track the engine themselves. Engine implementations call this from inside
// NewQuery, right after constructing the Query with NewQuery.
func (q *Query) Bind(e Engine) {
	q.mu.Lock()
	q.engine = e
	q.mu.Unlock()
}
