package dnsutil

import (
	"testing"

	"github.com/miekg/dns"
)

// Reduce RSI!
func checkFatal(t *testing.T, err error, what string) {
	if err != nil {
		t.Fatal("Unexpected failure generating test data ", what, err)
	}
}

func TestFindOPT(t *testing.T) {
	mno := &dns.Msg{}
	if opt := FindOPT(mno); opt != nil {
		t.Error("FindOPT found an OPT RR in an empty message")
	}

	mno.Answer = append(mno.Answer, &dns.OPT{}) // Populate all-but Extra
	mno.Ns = append(mno.Ns, &dns.OPT{})
	if opt := FindOPT(mno); opt != nil {
		t.Error("FindOPT found an OPT RR in an empty Extra list")
	}

	myes := &dns.Msg{}
	newOpt := &dns.OPT{}
	myes.Extra = append(myes.Extra, newOpt)
	opt := FindOPT(myes)
	if opt == nil {
		t.Error("FindOPT did not an OPT RR")
	}

	if newOpt != opt {
		t.Error("FindOPT returned the wrong OPT RR")
	}
}

//////////////////////////////////////////////////////////////////////

func TestReduceTTL(t *testing.T) {
	a1, err := dns.NewRR("a.name.example.net. 3 IN A 1.2.3.4") // Create non-sensical but valid message
	checkFatal(t, err, "newRR a1")
	a2, err := dns.NewRR("b.name.example.net. 300 IN AAAA fe80::f0a2:46ff:feb5:3c98")
	checkFatal(t, err, "newRR a2")
	a3, err := dns.NewRR("compress.name.example.net. 10 IN TXT 'Some text'")
	checkFatal(t, err, "newRR a3")
	n1, err := dns.NewRR("nocompress.example.com. 11 IN NS a.ns.example.net.")
	checkFatal(t, err, "newRR n1")
	n2, err := dns.NewRR("c.name.example.net. 12 IN NS b.ns.example.net.")
	checkFatal(t, err, "newRR n2")
	e1, err := dns.NewRR("d.name.example.com. 13 IN SOA internal.e hostmaster. 1554301415 16384 2048 1048576 480")
	checkFatal(t, err, "newRR e1")
	e2, err := dns.NewRR("d.name.example.net. 2 IN MX 10 smtp.example.net.")
	checkFatal(t, err, "newRR e2")

	m := &dns.Msg{
		Answer: []dns.RR{a1, a2, a3},
		Ns:     []dns.RR{n1, n2},
		Extra:  []dns.RR{e1, e2},
	}

	tt := []struct {
		rr           dns.RR
		expectedType uint16
		expectedTTL  uint32
		why          string
	}{
		{a1, dns.TypeA, 2, "Reduces by 1 to minimum"},
		{a2, dns.TypeAAAA, 290, "Normal reduction without limits"},
		{a3, dns.TypeTXT, 2, "Reduces by 8 to minimum"},
		{n1, dns.TypeNS, 2, "Reduces by 9 to minimum"},
		{n2, dns.TypeNS, 2, "Reduces by 10 to minimum"},
		{e1, dns.TypeSOA, 3, "Reduces by 10 to 3"},
		{e2, dns.TypeMX, 2, "Unchanged at 2"},
	}

	rc := ReduceTTL(m, 10, 2000) // This should do nothing because minimum is so large
	if len(m.Answer) != 3 || len(m.Ns) != 2 || len(m.Extra) != 2 {
		t.Fatal("Message RR Counts have been modified!")
	}
	if rc > 0 {
		t.Error("ReduceTTL reduced below minimum of 2000", rc)
	}

	rc = ReduceTTL(m, 10, 2) // This should change most of the RRs
	if len(m.Answer) != 3 || len(m.Ns) != 2 || len(m.Extra) != 2 {
		t.Fatal("Message RR Counts have been modified!")
	}
	if rc != 6 {
		t.Error("ReduceTTL should have reduced 6, not", rc)
	}

	for ix, tc := range tt {
		hdr := tc.rr.Header()
		if hdr.Class != dns.ClassINET {
			t.Error(ix, tc.why, "qClass has changed to", hdr.Class)
		}
		if hdr.Rrtype != tc.expectedType {
			t.Error(ix, tc.why, "qType has changed to", hdr.Rrtype, "from", tc.expectedType)
		}
		if hdr.Ttl != tc.expectedTTL {
			t.Error(ix, tc.why, "TTL of", hdr.Ttl, "is not the expected", tc.expectedTTL)
		}
	}
}
