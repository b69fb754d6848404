package stub

import (
	"github.com/markdingo/dnsstub/internal/dnsutil"
	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

// onCompletion is the resolver.CompletionFunc bound to every resolver.Query this listener starts.
// It recovers the originating stub Query via rq.Ref and assembles/sends the reply. SPEC_FULL.md
// §4.4. Every query this package dispatches carries FlagNoCNAME (dispatch.go), so a completion is
// always final - there is no hop-by-hop Restart chase to drive here. The CNAME/DNAME chase instead
// happens entirely in-bag, inside chaseAndCollectAnswer, because engine.Adapter's single completion
// already carries the fully-resolved chain.
func (l *Listener) onCompletion(rq *resolver.Query) {
	q, ok := rq.Ref.(*Query)
	if !ok || q == nil {
		return
	}

	if q.Flags.IsBypass() {
		l.completeBypass(q, rq)

		return
	}

	l.assembleAndSend(q, rq)
}

// assembleAndSend implements SPEC_FULL.md §4.4.1-§4.4.4 for one terminal completion.
func (l *Listener) assembleAndSend(q *Query, rq *resolver.Query) {
	state := rq.State()
	rcode := rq.Rcode()

	switch state {
	case resolver.StateTimeout, resolver.StateAttemptsMax:
		l.finishQuery(q)

		return // No reply - client times out
	case resolver.StateNotFound:
		rcode = dns.RcodeNameError
	case resolver.StateSuccess, resolver.StateRcodeFailure:
		// rcode is already the resolver's rcode
	case resolver.StateNull, resolver.StatePending, resolver.StateValidating:
		// Unreachable per the state machine: these are non-terminal.
		l.finishQuery(q)

		return
	default:
		rcode = dns.RcodeServerFailure
	}

	answerBag := rq.Answer()
	edns0DO := q.requestDO && (fullyAuthenticated(answerBag) || q.requestCD)

	answerSection, redirectedQuestion := chaseAndCollectAnswer(q.question, answerBag, edns0DO)
	_ = redirectedQuestion

	authoritySection := collectAuthority(answerBag, answerSection, edns0DO)
	additionalSection := collectAdditional(answerBag, answerSection, authoritySection, edns0DO)

	authoritySection = authoritySection.RemoveByKeys(answerSection.Keys())
	additionalSection = additionalSection.RemoveByKeys(append(answerSection.Keys(), authoritySection.Keys()...))

	reply := l.buildReplyPacket(q, rcode, edns0DO, answerSection, authoritySection, additionalSection)

	l.sendReply(q, reply)
	l.finishQuery(q)
}

// chaseAndCollectAnswer walks the CNAME/DNAME chain starting at question within one already-fully-
// resolved answer bag, collecting every directly-matching RR (and each CNAME/DNAME link) into the
// ANSWER section, in the style of dns_stub_collect_answer_by_question. Because this Engine always
// returns a fully-chased bag from a single completion (see internal/resolver/engine), the chase
// loop here operates over one bag rather than issuing further resolver restarts - ProcessCNAME
// still exists and is exercised for engines that complete one hop at a time.
func chaseAndCollectAnswer(question dns.Question, bag resolver.Answer, edns0DO bool) (resolver.Answer, dns.Question) {
	var out resolver.Answer
	current := question

	for redirects := 0; redirects <= consts.CNAMERedirectMax; redirects++ {
		advanced := false

		for _, item := range bag {
			if item.Flags.Section() != resolver.SectionAnswer {
				continue
			}
			if out.ContainsRR(item.RR) {
				continue
			}

			q := dns.Question{Name: current.Name, Qtype: current.Qtype, Qclass: current.Qclass}
			if dnsutil.QuestionMatchesRR(q, item.RR) {
				if dnsutil.IsDNSSECType(item.RR.Header().Rrtype) && !edns0DO {
					continue
				}
				out = append(out, resolver.AnswerItem{RR: item.RR, Flags: resolver.SectionAnswer, RRSIG: item.RRSIG})
				if edns0DO && item.RRSIG != nil {
					out = append(out, resolver.AnswerItem{RR: item.RRSIG, Flags: resolver.SectionAnswer | resolver.Authenticated})
				}

				continue
			}

			if target, ok := dnsutil.CNAMETarget(item.RR); ok &&
				dns.CanonicalName(item.RR.Header().Name) == dns.CanonicalName(current.Name) {
				out = append(out, resolver.AnswerItem{RR: item.RR, Flags: resolver.SectionAnswer})
				current.Name = dns.Fqdn(target)
				advanced = true
			}
		}

		if !advanced {
			break
		}
	}

	return out, current
}

// collectAuthority implements §4.4.1 pass 2: AUTHORITY-origin items not already in the answer
// section, DNSSEC-gated.
func collectAuthority(bag, answer resolver.Answer, edns0DO bool) resolver.Answer {
	var out resolver.Answer
	for _, item := range bag {
		if item.Flags.Section() != resolver.SectionAuthority {
			continue
		}
		if answer.ContainsRR(item.RR) {
			continue
		}
		if dnsutil.IsDNSSECType(item.RR.Header().Rrtype) && !edns0DO {
			continue
		}
		out = append(out, item)
	}

	return out
}

// collectAdditional implements §4.4.1 pass 3's three sub-passes: ADDITIONAL-origin, then
// ANSWER-origin-but-not-a-direct-match, then no-origin-flag - each excluding items already placed
// in a higher section.
func collectAdditional(bag, answer, authority resolver.Answer, edns0DO bool) resolver.Answer {
	var out resolver.Answer

	addIfNew := func(item resolver.AnswerItem) {
		if answer.ContainsRR(item.RR) || authority.ContainsRR(item.RR) || out.ContainsRR(item.RR) {
			return
		}
		if dnsutil.IsDNSSECType(item.RR.Header().Rrtype) && !edns0DO {
			return
		}
		out = append(out, item)
	}

	for _, item := range bag { // pass A
		if item.Flags.Section() == resolver.SectionAdditional {
			addIfNew(item)
		}
	}
	for _, item := range bag { // pass B
		if item.Flags.Section() == resolver.SectionAnswer && !answer.ContainsRR(item.RR) {
			addIfNew(item)
		}
	}
	for _, item := range bag { // pass C
		if item.Flags.Section() == resolver.SectionNone {
			addIfNew(item)
		}
	}

	return out
}

func fullyAuthenticated(bag resolver.Answer) bool {
	if len(bag) == 0 {
		return false
	}
	for _, item := range bag {
		if item.Flags&resolver.Authenticated == 0 {
			return false
		}
	}

	return true
}
