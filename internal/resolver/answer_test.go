package resolver

import (
	"testing"

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

func TestAnswerContainsRRIgnoresTTL(t *testing.T) {
	a := Answer{{RR: mustRR(t, "www.example.net. 300 IN A 192.0.2.1")}}
	other := mustRR(t, "www.example.net. 60 IN A 192.0.2.1") // different TTL, same data

	if !a.ContainsRR(other) {
		t.Error("ContainsRR must ignore TTL when comparing RRs")
	}
	if a.ContainsRR(mustRR(t, "www.example.net. 300 IN A 192.0.2.2")) {
		t.Error("ContainsRR must not match a different rdata")
	}
}

func TestAnswerKeysDeduplicates(t *testing.T) {
	a := Answer{
		{RR: mustRR(t, "example.net. 300 IN A 192.0.2.1")},
		{RR: mustRR(t, "example.net. 300 IN A 192.0.2.2")}, // same RRset, different rdata
		{RR: mustRR(t, "example.net. 300 IN AAAA ::1")},
	}

	keys := a.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() = %d distinct keys, want 2 (one per RRset)", len(keys))
	}
}

func TestAnswerRemoveByKeys(t *testing.T) {
	aKey := mustRR(t, "example.net. 300 IN A 192.0.2.1")
	aaaaKey := mustRR(t, "example.net. 300 IN AAAA ::1")
	a := Answer{{RR: aKey}, {RR: aaaaKey}}

	out := a.RemoveByKeys(Answer{{RR: aKey}}.Keys())
	if len(out) != 1 || out[0].RR != aaaaKey {
		t.Fatalf("RemoveByKeys left %#v, want only the AAAA record", out)
	}

	if same := a.RemoveByKeys(nil); len(same) != len(a) {
		t.Error("RemoveByKeys with no keys must be a no-op")
	}
}

func TestAnswerFlagsSectionMasksAuthenticated(t *testing.T) {
	f := SectionAuthority | Authenticated
	if f.Section() != SectionAuthority {
		t.Errorf("Section() = %v, want SectionAuthority with Authenticated masked out", f.Section())
	}
}
