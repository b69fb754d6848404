package resolver

import (
	"sync"

	"github.com/markdingo/dnsstub/internal/dnsutil"

	"github.com/miekg/dns"
)

// RequestRef is an opaque handle the stub listener passes to NewQuery and receives back unchanged
// on every completion callback, letting the listener recover which in-flight stub Query a resolver
// completion belongs to without the resolver package needing to know anything about stub types.
type RequestRef interface{}

// CompletionFunc is invoked by the resolver engine exactly once per terminal State, and potentially
// several times in total for a single Query when CNAME/DNAME chasing causes a restart (each restart
// ends in its own terminal completion, consumed by Query.ProcessCNAME). Implementations must not
// block.
type CompletionFunc func(q *Query)

// Query is a single in-flight (or completed) resolution of a possible CNAME/DNAME chain. A
// client-visible query that chases N redirects is one Query value: each redirect points it at the
// next name and restarts it, keeping its RequestRef and redirect counter.
type Query struct {
	Ref   RequestRef
	Flags Flags

	mu            sync.Mutex
	question      dns.Question
	redirectCount int
	state         State
	rcode         int
	answer        Answer
	fullPacket    *dns.Msg // Set only in bypass mode - see CompleteBypass
	onComplete    CompletionFunc

	engine Engine
}

// NewQuery constructs a Query value. Engines should use this rather than a bare struct literal so
// that future fields stay initialized consistently; it does not start resolution.
func NewQuery(ref RequestRef, question dns.Question, flags Flags, onComplete CompletionFunc) *Query {
	return &Query{
		Ref:        ref,
		Flags:      flags,
		question:   question,
		onComplete: onComplete,
	}
}

// Question returns the question this Query (or, after a CNAME restart, its current hop) is
// resolving.
func (q *Query) Question() dns.Question {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.question
}

// State returns the terminal state of the most recently completed hop. Only meaningful after a
// completion callback has fired.
func (q *Query) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.state
}

// Rcode returns the RCODE the resolver engine associated with the most recent completion. Only
// meaningful when State() is a terminal state other than StateNull/StatePending/StateValidating.
func (q *Query) Rcode() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.rcode
}

// Answer returns the answer bag delivered by the most recent completion.
func (q *Query) Answer() Answer {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.answer
}

// Complete is called by an Engine implementation to deliver a terminal result. It records the
// result and invokes the caller's completion callback.
func (q *Query) Complete(state State, rcode int, answer Answer) {
	q.mu.Lock()
	q.state = state
	q.rcode = rcode
	q.answer = answer
	cb := q.onComplete
	q.mu.Unlock()

	if cb != nil {
		cb(q)
	}
}

// CompleteBypass is called by an Engine implementation instead of Complete when the Query was
// started with the bypass flag combination (AllProtocols|NoCNAME|NoSearch|NoValidate|
// RequirePrimary|ClampTTL) and the engine has a verbatim upstream packet to hand back. fullPacket
// nil means the engine could not produce one (e.g. the upstream transport isn't classical DNS), in
// which case the caller falls back to normal assembly from answer.
func (q *Query) CompleteBypass(state State, rcode int, fullPacket *dns.Msg) {
	q.mu.Lock()
	q.state = state
	q.rcode = rcode
	q.fullPacket = fullPacket
	cb := q.onComplete
	q.mu.Unlock()

	if cb != nil {
		cb(q)
	}
}

// FullPacket returns the verbatim upstream packet delivered by CompleteBypass, or nil if this Query
// was never completed in bypass mode.
func (q *Query) FullPacket() *dns.Msg {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.fullPacket
}

// ProcessCNAME inspects the most recent completion's answer bag for a CNAME/DNAME redirect owned by
// the current hop's question name and, if maxRedirects has not been exceeded, asks the engine to
// restart resolution against the new target; past maxRedirects the Query completes with
// StateStubLoop. A caller of an engine that resolves one hop per completion calls this once per
// completion before assembling a reply; a CNAMERestarted result means the caller should wait for a
// further completion rather than assemble a reply now. With FlagNoCNAME set it returns CNAMEOK
// without inspecting anything.
func (q *Query) ProcessCNAME(maxRedirects int) (CNAMEResult, error) {
	if q.Flags.Has(FlagNoCNAME) {
		return CNAMEOK, nil
	}

	q.mu.Lock()
	question := q.question
	answer := q.answer
	engine := q.engine
	q.mu.Unlock()

	var target string
	found := false
	for _, item := range answer {
		if item.Flags.Section() != SectionAnswer {
			continue
		}
		if t, ok := dnsutil.CNAMETarget(item.RR); ok && dnsOwnerMatches(item.RR, question.Name) {
			target = t
			found = true
			break
		}
	}

	if !found {
		return CNAMEOK, nil
	}

	q.mu.Lock()
	q.redirectCount++
	count := q.redirectCount
	q.mu.Unlock()

	if count > maxRedirects {
		q.Complete(StateStubLoop, dns.RcodeServerFailure, nil)

		return CNAMELoop, nil
	}

	next := question
	next.Name = dns.Fqdn(target)

	q.mu.Lock()
	q.question = next
	q.state = StatePending
	q.mu.Unlock()

	if engine == nil {
		return CNAMEOK, errNoEngine
	}

	if err := engine.Restart(q, next); err != nil {
		return CNAMEOK, err
	}

	return CNAMERestarted, nil
}

func dnsOwnerMatches(rr dns.RR, name string) bool {
	return dns.CanonicalName(rr.Header().Name) == dns.CanonicalName(name)
}
