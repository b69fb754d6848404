/*
Package engine adapts the synchronous resolver.Resolver backends (local, forward) to the asynchronous
resolver.Engine interface the stub listener is built against. It plays the part of the recursive
resolver engine - caching, upstream server selection, DNSSEC validation - entirely by delegating to
whichever resolver.Resolver backend is in bailiwick for the question, one goroutine per Start/Restart
call.
*/
package engine

import (
	"sync"
	"time"

	"github.com/markdingo/dnsstub/internal/dnsutil"
	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

// Adapter selects between a mandatory remote resolver and an optional local (in-bailiwick) resolver
// exactly as cmd/dnsstub-server's original dns.Server handler did, but delivers results through the
// async resolver.Engine contract instead of a direct function return.
type Adapter struct {
	Remote resolver.Resolver // Mandatory - never nil
	Local  resolver.Resolver // Optional - may be nil

	mu      sync.Mutex
	pending map[*resolver.Query]chan struct{} // Cancellation signal per in-flight Query
}

// New constructs an Adapter. remote must not be nil; local may be nil if no local/bailiwick
// resolver is configured.
func New(remote, local resolver.Resolver) *Adapter {
	return &Adapter{Remote: remote, Local: local, pending: make(map[*resolver.Query]chan struct{})}
}

// NewQuery implements resolver.Engine.
func (a *Adapter) NewQuery(ref resolver.RequestRef, question dns.Question, flags resolver.Flags,
	onComplete resolver.CompletionFunc) *resolver.Query {
	q := resolver.NewQuery(ref, question, flags, onComplete)
	q.Bind(a)

	return q
}

// Start implements resolver.Engine.
func (a *Adapter) Start(q *resolver.Query) error {
	return a.resolve(q, q.Question())
}

// Restart implements resolver.Engine.
func (a *Adapter) Restart(q *resolver.Query, question dns.Question) error {
	return a.resolve(q, question)
}

// Cancel implements resolver.Engine. Because the underlying resolver.Resolver.Resolve() call is
// synchronous and has no context-based cancellation hook, Cancel only suppresses delivery of a
// completion already in flight - it does not abort the in-progress upstream exchange.
func (a *Adapter) Cancel(q *resolver.Query) {
	a.mu.Lock()
	if done, ok := a.pending[q]; ok {
		close(done)
		delete(a.pending, q)
	}
	a.mu.Unlock()
}

func (a *Adapter) resolve(q *resolver.Query, question dns.Question) error {
	picked := a.Remote
	if a.Local != nil && a.Local.InBailiwick(question.Name) {
		picked = a.Local
	}

	done := make(chan struct{})
	a.mu.Lock()
	a.pending[q] = done
	a.mu.Unlock()

	query := new(dns.Msg)
	query.SetQuestion(question.Name, question.Qtype)
	query.Question[0].Qclass = question.Qclass
	query.RecursionDesired = true
	if q.Flags.Has(resolver.FlagNoValidate) {
		query.CheckingDisabled = true
	}

	go func() {
		transport := resolver.DNSTransportUDP
		if q.Flags.Has(resolver.FlagAllProtocols) {
			transport = resolver.DNSTransportTCP
		}

		start := time.Now()
		resp, _, err := picked.Resolve(query, &resolver.QueryMetaData{TransportType: transport})

		a.mu.Lock()
		_, stillPending := a.pending[q]
		delete(a.pending, q)
		a.mu.Unlock()

		if !stillPending {
			return // Cancelled - drop the result on the floor
		}

		state := translateState(resp, err)
		rcode := translateRcode(resp, err)
		if q.Flags.IsBypass() {
			if resp != nil {
				dnsutil.ReduceTTL(resp, uint32(time.Since(start).Seconds()), 0)
			}
			q.CompleteBypass(state, rcode, resp)

			return
		}
		q.Complete(state, rcode, translateAnswer(resp))
	}()

	return nil
}

func translateState(resp *dns.Msg, err error) resolver.State {
	if err != nil {
		return resolver.StateTimeout
	}
	if resp == nil {
		return resolver.StateInvalidReply
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		if len(resp.Answer) == 0 {
			return resolver.StateNotFound
		}

		return resolver.StateSuccess
	case dns.RcodeNameError:
		return resolver.StateNotFound
	default:
		return resolver.StateRcodeFailure
	}
}

func translateRcode(resp *dns.Msg, err error) int {
	if err != nil || resp == nil {
		return dns.RcodeServerFailure
	}

	return resp.Rcode
}

// translateAnswer flattens a dns.Msg's three sections into a resolver.Answer bag, tagging each item
// with its section of origin so the stub listener's reply assembler can re-derive cross-section
// placement and dedup rules without caring that this engine happened to source the data from a
// classic three-section DNS message.
func translateAnswer(resp *dns.Msg) resolver.Answer {
	if resp == nil {
		return nil
	}

	out := make(resolver.Answer, 0, len(resp.Answer)+len(resp.Ns)+len(resp.Extra))
	out = appendSection(out, resp.Answer, resolver.SectionAnswer, resp.AuthenticatedData)
	out = appendSection(out, resp.Ns, resolver.SectionAuthority, resp.AuthenticatedData)
	out = appendSection(out, resp.Extra, resolver.SectionAdditional, resp.AuthenticatedData)

	return out
}

func appendSection(out resolver.Answer, rrs []dns.RR, section resolver.AnswerFlags, authenticated bool) resolver.Answer {
	for _, rr := range rrs {
		if _, ok := rr.(*dns.OPT); ok {
			continue // The OPT pseudo-RR is not answer data, it is re-synthesized by the reply assembler
		}

		flags := section
		if authenticated {
			flags |= resolver.Authenticated
		}

		var rrsig *dns.RRSIG
		if sig, ok := rr.(*dns.RRSIG); ok {
			rrsig = sig
		}

		out = append(out, resolver.AnswerItem{RR: rr, Flags: flags, RRSIG: rrsig})
	}

	return out
}
