package stub

import (
	"testing"

	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("dns.NewRR(%q): %v", s, err)
	}

	return rr
}

func TestChaseAndCollectAnswerSimple(t *testing.T) {
	question := dns.Question{Name: "www.example.net.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	a := mustRR(t, "www.example.net. 300 IN A 192.0.2.1")
	bag := resolver.Answer{{RR: a, Flags: resolver.SectionAnswer}}

	out, final := chaseAndCollectAnswer(question, bag, false)
	if len(out) != 1 || out[0].RR != a {
		t.Fatalf("expected single A record, got %#v", out)
	}
	if final.Name != question.Name {
		t.Errorf("final question name = %q, want unchanged %q", final.Name, question.Name)
	}
}

// TestChaseAndCollectAnswerCNAME exercises the CNAME-chase loop: the question asks for
// www.example.net/A, the bag holds a CNAME to target.example.net and the A record at the target.
func TestChaseAndCollectAnswerCNAME(t *testing.T) {
	question := dns.Question{Name: "www.example.net.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	cname := mustRR(t, "www.example.net. 300 IN CNAME target.example.net.")
	a := mustRR(t, "target.example.net. 300 IN A 192.0.2.1")
	bag := resolver.Answer{
		{RR: cname, Flags: resolver.SectionAnswer},
		{RR: a, Flags: resolver.SectionAnswer},
	}

	out, final := chaseAndCollectAnswer(question, bag, false)
	if len(out) != 2 {
		t.Fatalf("expected CNAME + A, got %d items: %#v", len(out), out)
	}
	if out[0].RR != cname || out[1].RR != a {
		t.Errorf("expected CNAME before A, got %#v", out)
	}
	if final.Name != "target.example.net." {
		t.Errorf("final question name = %q, want target.example.net.", final.Name)
	}
}

// A DNSSEC RRSIG-bearing item must only surface in the answer section when the caller has decided
// to include DNSSEC records (edns0DO true), per §4.4.1's DNSSEC inclusion policy.
func TestChaseAndCollectAnswerDNSSECGating(t *testing.T) {
	question := dns.Question{Name: "secure.example.net.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	a := mustRR(t, "secure.example.net. 300 IN A 192.0.2.1")
	sig := mustRR(t, "secure.example.net. 300 IN RRSIG A 8 3 300 20300101000000 20200101000000 12345 example.net. AAAA").(*dns.RRSIG)
	bag := resolver.Answer{{RR: a, Flags: resolver.SectionAnswer, RRSIG: sig}}

	outNoDO, _ := chaseAndCollectAnswer(question, bag, false)
	if len(outNoDO) != 1 {
		t.Fatalf("without DO, expected only the A record, got %d items", len(outNoDO))
	}

	outDO, _ := chaseAndCollectAnswer(question, bag, true)
	if len(outDO) != 2 {
		t.Fatalf("with DO, expected A + RRSIG, got %d items", len(outDO))
	}
}

func TestCollectAuthorityExcludesAnswer(t *testing.T) {
	a := mustRR(t, "example.net. 300 IN A 192.0.2.1")
	ns := mustRR(t, "example.net. 300 IN NS ns1.example.net.")
	bag := resolver.Answer{
		{RR: a, Flags: resolver.SectionAnswer},
		{RR: ns, Flags: resolver.SectionAuthority},
	}
	answer := resolver.Answer{{RR: a, Flags: resolver.SectionAnswer}}

	authority := collectAuthority(bag, answer, false)
	if len(authority) != 1 || authority[0].RR != ns {
		t.Fatalf("expected only the NS record, got %#v", authority)
	}
}

func TestCollectAdditionalThreePasses(t *testing.T) {
	glue := mustRR(t, "ns1.example.net. 300 IN A 192.0.2.53")
	bag := resolver.Answer{{RR: glue, Flags: resolver.SectionAdditional}}

	additional := collectAdditional(bag, nil, nil, false)
	if len(additional) != 1 || additional[0].RR != glue {
		t.Fatalf("expected glue record from pass A, got %#v", additional)
	}
}

func TestFullyAuthenticated(t *testing.T) {
	a := mustRR(t, "example.net. 300 IN A 192.0.2.1")

	if fullyAuthenticated(nil) {
		t.Error("an empty bag must not be reported as fully authenticated")
	}
	if fullyAuthenticated(resolver.Answer{{RR: a, Flags: resolver.SectionAnswer}}) {
		t.Error("an unauthenticated item must not be reported as fully authenticated")
	}
	if !fullyAuthenticated(resolver.Answer{{RR: a, Flags: resolver.SectionAnswer | resolver.Authenticated}}) {
		t.Error("an item carrying Authenticated should be reported as fully authenticated")
	}
}
