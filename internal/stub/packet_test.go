package stub

import (
	"testing"

	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

func testPrimaryEndpoint() *Endpoint {
	return &Endpoint{
		config:           EndpointConfig{Kind: KindPrimary},
		advertiseSizeMax: consts.AdvertiseDatagramSizeMax,
		nsid:             deriveNSID(),
	}
}

func testQuery(endpoint *Endpoint, transport Transport, question dns.Question) *Query {
	return &Query{
		Request:   &RequestPacket{Transport: transport},
		Endpoint:  endpoint,
		question:  question,
		requestID: 0x1234,
	}
}

func TestBuildReplyPacketBasic(t *testing.T) {
	question := dns.Question{Name: "www.example.net.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	q := testQuery(testPrimaryEndpoint(), TransportUDP, question)
	a := mustRR(t, "www.example.net. 300 IN A 192.0.2.1")
	answer := resolver.Answer{{RR: a, Flags: resolver.SectionAnswer}}

	l := &Listener{}
	reply := l.buildReplyPacket(q, dns.RcodeSuccess, false, answer, nil, nil)

	if reply.Id != q.requestID {
		t.Errorf("Id = %x, want %x", reply.Id, q.requestID)
	}
	if !reply.Response {
		t.Error("expected Response (QR) bit set")
	}
	if len(reply.Answer) != 1 || reply.Answer[0] != a {
		t.Fatalf("expected single answer RR, got %#v", reply.Answer)
	}
	if reply.Truncated {
		t.Error("a small reply should not be truncated")
	}
}

// Without a client OPT, an rcode requiring the extended rcode bits (> 0x0F, e.g. BADVERS=16) cannot
// be expressed and must be clamped to SERVFAIL - SPEC_FULL.md's non-EDNS admission table.
func TestBuildReplyPacketClampsRcodeWithoutOPT(t *testing.T) {
	question := dns.Question{Name: "example.net.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	q := testQuery(testPrimaryEndpoint(), TransportUDP, question)
	q.requestHasOPT = false

	l := &Listener{}
	reply := l.buildReplyPacket(q, dns.RcodeBadVers, false, nil, nil, nil)
	if reply.Rcode != dns.RcodeServerFailure {
		t.Errorf("Rcode = %d, want SERVFAIL when BADVERS can't be expressed without OPT", reply.Rcode)
	}
}

// NSID is only ever attached on the primary endpoint; extra endpoints must never carry it even when
// the client requests EDNS0.
func TestBuildReplyPacketNSIDOnlyOnPrimary(t *testing.T) {
	question := dns.Question{Name: "example.net.", Qtype: dns.TypeA, Qclass: dns.ClassINET}

	primary := testPrimaryEndpoint()
	qPrimary := testQuery(primary, TransportUDP, question)
	qPrimary.requestHasOPT = true

	l := &Listener{}
	reply := l.buildReplyPacket(qPrimary, dns.RcodeSuccess, false, nil, nil, nil)
	opt := findOPTInExtra(reply)
	if opt == nil {
		t.Fatal("expected an OPT record when the request carried one")
	}
	if !hasNSIDOption(opt) {
		t.Error("expected NSID option on the primary endpoint's reply")
	}

	extra := &Endpoint{config: EndpointConfig{Kind: KindExtra}, advertiseSizeMax: consts.AdvertiseExtraDatagramSizeMax}
	qExtra := testQuery(extra, TransportUDP, question)
	qExtra.requestHasOPT = true
	reply = l.buildReplyPacket(qExtra, dns.RcodeSuccess, false, nil, nil, nil)
	opt = findOPTInExtra(reply)
	if opt != nil && hasNSIDOption(opt) {
		t.Error("NSID must not appear on an extra endpoint's reply")
	}
}

func findOPTInExtra(m *dns.Msg) *dns.OPT {
	for _, rr := range m.Extra {
		if opt, ok := rr.(*dns.OPT); ok {
			return opt
		}
	}

	return nil
}

func hasNSIDOption(opt *dns.OPT) bool {
	for _, o := range opt.Option {
		if _, ok := o.(*dns.EDNS0_NSID); ok {
			return true
		}
	}

	return false
}

func TestPayloadSizeMaxTCPUnbounded(t *testing.T) {
	q := testQuery(testPrimaryEndpoint(), TransportTCP, dns.Question{})
	if payloadSizeMax(q) != int(consts.MaximumViableDNSMessage) {
		t.Errorf("TCP payload max = %d, want %d", payloadSizeMax(q), consts.MaximumViableDNSMessage)
	}
}

func TestPayloadSizeMaxUDPDefaultsTo512(t *testing.T) {
	q := testQuery(testPrimaryEndpoint(), TransportUDP, dns.Question{})
	if payloadSizeMax(q) != consts.DNSTruncateThreshold {
		t.Errorf("UDP no-OPT payload max = %d, want %d", payloadSizeMax(q), consts.DNSTruncateThreshold)
	}
}

func TestPayloadSizeMaxUDPUsesAdvertisedSize(t *testing.T) {
	q := testQuery(testPrimaryEndpoint(), TransportUDP, dns.Question{})
	q.requestHasOPT = true
	q.requestAdvertisedSize = 4096
	if payloadSizeMax(q) != 4096 {
		t.Errorf("UDP OPT payload max = %d, want 4096", payloadSizeMax(q))
	}
}

func TestBuildReplyPacketTruncatesOversizeAnswer(t *testing.T) {
	question := dns.Question{Name: "big.example.net.", Qtype: dns.TypeTXT, Qclass: dns.ClassINET}
	q := testQuery(testPrimaryEndpoint(), TransportUDP, question)
	q.requestHasOPT = false // 512 byte ceiling

	var answer resolver.Answer
	for i := 0; i < 20; i++ {
		rr := mustRR(t, `big.example.net. 300 IN TXT "0123456789012345678901234567890123456789"`)
		answer = append(answer, resolver.AnswerItem{RR: rr, Flags: resolver.SectionAnswer})
	}

	l := &Listener{}
	reply := l.buildReplyPacket(q, dns.RcodeSuccess, false, answer, nil, nil)
	if !reply.Truncated {
		t.Fatal("a 20-record TXT answer should not fit in a 512-byte non-EDNS reply")
	}
}
