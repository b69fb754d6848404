package stub

import (
	"testing"

	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

func TestBuildBypassReplyOverwritesIDAndUDPSize(t *testing.T) {
	ep := testPrimaryEndpoint() // advertises consts.AdvertiseDatagramSizeMax
	question := dns.Question{Name: "example.net.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	q := testQuery(ep, TransportUDP, question)
	q.requestID = 0xBEEF

	upstream := new(dns.Msg)
	upstream.Id = 0x0001
	upstream.SetQuestion("example.net.", dns.TypeA)
	upstream.Answer = []dns.RR{mustRR(t, "example.net. 300 IN A 192.0.2.1")}
	opt := &dns.OPT{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT}}
	opt.SetUDPSize(1232) // upstream's own advertised size, should be overwritten
	upstream.Extra = append(upstream.Extra, opt)

	reply := buildBypassReply(q, upstream)
	if reply.Id != 0xBEEF {
		t.Errorf("Id = %x, want overwritten to client's request id 0xBEEF", reply.Id)
	}
	if len(reply.Question) != 1 || reply.Question[0].Name != question.Name {
		t.Error("reply question must be the client's own question")
	}

	replyOPT := findOPTInExtra(reply)
	if replyOPT == nil {
		t.Fatal("expected OPT to survive the copy")
	}
	if replyOPT.UDPSize() != ep.AdvertiseSizeMax() {
		t.Errorf("OPT UDP size = %d, want endpoint's own advertised max %d", replyOPT.UDPSize(), ep.AdvertiseSizeMax())
	}
	if len(reply.Answer) != 1 {
		t.Error("answer should be untouched when the packet fits")
	}
}

func TestBuildBypassReplyTruncatesOversizePacket(t *testing.T) {
	ep := testPrimaryEndpoint()
	question := dns.Question{Name: "big.example.net.", Qtype: dns.TypeTXT, Qclass: dns.ClassINET}
	q := testQuery(ep, TransportUDP, question)
	q.requestHasOPT = false // 512 byte ceiling via payloadSizeMax

	upstream := new(dns.Msg)
	upstream.SetQuestion("big.example.net.", dns.TypeTXT)
	for i := 0; i < 20; i++ {
		upstream.Answer = append(upstream.Answer,
			mustRR(t, `big.example.net. 300 IN TXT "0123456789012345678901234567890123456789"`))
	}
	opt := &dns.OPT{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT}}
	opt.SetUDPSize(4096)
	opt.SetDo()
	upstream.Extra = append(upstream.Extra, opt)

	reply := buildBypassReply(q, upstream)
	if !reply.Truncated {
		t.Fatal("a 20-record TXT upstream reply should not fit in 512 bytes")
	}
	if len(reply.Answer) != 0 || len(reply.Ns) != 0 {
		t.Error("a truncated bypass reply must drop ANSWER/AUTHORITY entirely")
	}

	replyOPT := findOPTInExtra(reply)
	if replyOPT == nil {
		t.Fatal("a truncated reply still needs a minimal OPT so the client knows TC happened under EDNS0")
	}
	if !replyOPT.Do() {
		t.Error("the DO bit the upstream OPT carried should survive truncation")
	}
}

// When the resolver never produced a full verbatim packet - e.g. the engine had nothing
// classical-wire to hand back - onCompletion must fall back to normal assembly rather than silently
// dropping the reply.
func TestOnCompletionFallsBackWhenNoFullPacket(t *testing.T) {
	question := dns.Question{Name: "example.net.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	q := &Query{
		Request:  &RequestPacket{Transport: TransportUDP},
		Endpoint: testPrimaryEndpoint(),
		Flags:    resolver.FlagAllProtocols | resolver.FlagNoCNAME | resolver.FlagNoSearch | resolver.FlagNoValidate | resolver.FlagRequirePrimary | resolver.FlagClampTTL,
		question: question,
	}

	var onComplete resolver.CompletionFunc
	rq := resolver.NewQuery(q, question, q.Flags, func(r *resolver.Query) { onComplete(r) })

	l := &Listener{}
	l.cct.Add() // mirrors dispatchEngineQuery's bookkeeping so finishQuery's Done() has a match
	onComplete = l.onCompletion

	rq.CompleteBypass(resolver.StateTimeout, dns.RcodeServerFailure, nil) // no full packet
	// assembleAndSend's StateTimeout branch returns early with no reply and calls
	// finishQuery; reaching here without a panic demonstrates the fallback path ran.
}
