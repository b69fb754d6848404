package forward

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

func TestNew(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53"}})
	if res == nil || err != nil {
		t.Error("New() failed which it should have succeeded", err)
	}

	res, err = New(Config{})
	if err == nil {
		t.Error("New() did not fail with an empty ServerAddrs")
	}
}

//////////////////////////////////////////////////////////////////////

func TestInBailiwick(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53"}})
	if err != nil {
		t.Fatal("New() failed unexpectedly", err)
	}

	if !res.InBailiwick("example.net") {
		t.Error("Expected a well-formed FQDN to be in bailiwick")
	}
}

//////////////////////////////////////////////////////////////////////
// The mock exchanger replaces the regular dns.Client.Exchange() interface. It contains an array of
// return values which are returned successively in each call to Exchange. Nothing fancy.

type mockResponse struct {
	reply    *dns.Msg
	duration time.Duration
	err      error
}

type mockExchanger struct {
	ix       int // Next response to return
	response []mockResponse
}

func (me *mockExchanger) append(reply *dns.Msg, duration time.Duration, err error) {
	me.response = append(me.response, mockResponse{reply, duration, err})
}

func (me *mockExchanger) Exchange(query *dns.Msg, server string) (reply *dns.Msg, rtt time.Duration, err error) {
	ix := me.ix
	if ix >= len(me.response) {
		return nil, 0, errors.New("Test setup probably bogus as exchange count exceeded")
	}
	me.ix++
	return me.response[ix].reply, me.response[ix].duration, me.response[ix].err
}

func newMockOne(reply *dns.Msg, duration time.Duration, err error) *mockExchanger {
	me := &mockExchanger{}
	me.append(reply, duration, err)

	return me
}

func newMockRcode(rcode int) *mockExchanger {
	r := &dns.Msg{}
	r.MsgHdr.Rcode = rcode

	return newMockOne(r, time.Millisecond, nil)
}

//////////////////////////////////////////////////////////////////////

var (
	qMeta = &resolver.QueryMetaData{}
)

func TestBasicResolver(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53"},
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return newMockOne(&dns.Msg{}, time.Second, nil)
		}})
	if err != nil {
		t.Fatal("New failed with mock Exchanger", err)
	}

	_, _, err = res.Resolve(&dns.Msg{}, qMeta)
	if err != nil {
		t.Fatal("Mock Exchanger failed", err)
	}
}

func TestNXDomain(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53"},
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return newMockRcode(dns.RcodeNameError)
		}})
	if err != nil {
		t.Fatal("New failed with mock Exchanger", err)
	}

	r, _, err := res.Resolve(&dns.Msg{}, qMeta)
	if err != nil {
		t.Fatal("Mock Exchanger failed", err)
	}

	if r.Rcode != dns.RcodeNameError {
		t.Error("Resolver didn't stop on NXDomain", r.MsgHdr)
	}
}

// Test various Resolve retry paths
func TestRetry(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"127.0.0.1:65053", "[::1]:65053"}, // Relies on no listeners
		Timeout: time.Second})
	if err != nil {
		t.Fatal("New unexpectedly failed", err)
	}
	_, _, err = res.Resolve(&dns.Msg{}, qMeta) // Should fail on retries

	if err == nil {
		t.Fatal("Expected an error resolving against nothing listening")
	}
}

func TestTimeout(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53"}, Timeout: time.Millisecond,
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return newMockOne(nil, time.Second*5, errors.New("Timeout"))
		}})
	if err != nil {
		t.Fatal("New failed with mock Exchanger", err)
	}

	q := &dns.Msg{}
	q.MsgHdr.Id = 1002 // Make it easier to identify
	_, _, err = res.Resolve(q, qMeta)
	if err == nil {
		t.Fatal("Resolver MAX RTT exceeded should have failed")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Error("Got the expected error return but not with a timeout message:", err)
	}
}

// Test for rcode == refused moves best server to next
func TestRcodeRefused(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53", "1.1.1.1:53"},
		Attempts: 1, // The mock holds a single reply; a second attempt would fail over again
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return newMockRcode(dns.RcodeRefused)
		}})
	if err != nil {
		t.Fatal("New failed with mock Exchanger", err)
	}

	q := &dns.Msg{}
	q.MsgHdr.Id = 2003 // Make it easier to identify
	_, _, err = res.Resolve(q, qMeta)
	if err == nil {
		t.Fatal("Expected error return with Rcode Refused")
	}
	bs, _ := res.bestServer.Best()
	if bs.Name() != "1.1.1.1:53" {
		t.Error("Expected Best Server to have moved to 1.1.1.1:53, not", bs.Name())
	}
}

// Test for rcode == ServerFailure moves best server to next
func TestRcodeServerFailure(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53", "1.1.1.1:53"},
		Attempts: 1, // The mock holds a single reply; a second attempt would fail over again
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return newMockRcode(dns.RcodeServerFailure)
		}})
	if err != nil {
		t.Fatal("New failed with mock Exchanger", err)
	}

	q := &dns.Msg{}
	q.MsgHdr.Id = 2004
	_, _, err = res.Resolve(q, qMeta)
	if err == nil {
		t.Fatal("Expected error return with Rcode ServerFailure")
	}
	bs, _ := res.bestServer.Best()
	if bs.Name() != "1.1.1.1:53" {
		t.Error("Expected Best Server to have moved to 1.1.1.1:53, not", bs.Name())
	}
}

// Test for rcode == FORMERR stops iteration as query has a format problem
func TestRcodeFormErr(t *testing.T) {
	me := &mockExchanger{}
	r0 := &dns.Msg{}
	r0.Rcode = dns.RcodeFormatError
	r0.Id = 9000
	me.append(r0, time.Millisecond, nil)
	r1 := &dns.Msg{}
	r1.Id = 9001
	me.append(r1, time.Millisecond, nil)
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53"},
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return me
		}})
	if err != nil {
		t.Fatal("New failed with mock Exchanger", err)
	}
	q := &dns.Msg{}
	r, _, err := res.Resolve(q, qMeta)
	if err != nil {
		t.Fatal("Unexpected error from Resolve:", err)
	}
	if r.Rcode != dns.RcodeFormatError {
		t.Error("Expected dns.RcodeFormatError, not", r.MsgHdr)
	}
}

// Not Impl should move to the next server
func TestRcodeNotImpl(t *testing.T) {
	me := &mockExchanger{}
	r0 := &dns.Msg{}
	r0.Rcode = dns.RcodeNotImplemented
	r0.Id = 9000
	me.append(r0, time.Millisecond, nil)
	r1 := &dns.Msg{}
	r1.Id = 9001
	me.append(r1, time.Millisecond, nil)
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53", "1.1.1.1:53"},
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return me
		}})
	if err != nil {
		t.Fatal("New failed with mock Exchanger", err)
	}
	q := &dns.Msg{}
	r, _, err := res.Resolve(q, qMeta)
	if err != nil {
		t.Fatal("Unexpected error from Resolve:", err)
	}
	if r.Id != 9001 {
		t.Error("Expected dns.RcodeNotImplemented to have moved to the next server", r.MsgHdr)
	}
}

func TestRcodeOther(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53"},
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return newMockRcode(dns.RcodeBadSig)
		}})
	if err != nil {
		t.Fatal("New failed with mock Exchanger", err)
	}
	q := &dns.Msg{}
	r, _, err := res.Resolve(q, qMeta)
	if err != nil {
		t.Fatal("Unexpected error from Resolve:", err)
	}
	if r.Rcode != dns.RcodeBadSig {
		t.Error("Expected dns.RcodeBadSig, not", r.MsgHdr)
	}
}

// Test that the return meta details about the resolution seem reasonable
func TestReplyMeta(t *testing.T) {
	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53"},
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return newMockOne(&dns.Msg{}, time.Second, nil)
		}})
	if err != nil {
		t.Fatal("New failed with mock Exchanger", err)
	}
	_, rMeta, err := res.Resolve(&dns.Msg{}, qMeta)
	if err != nil {
		t.Error("Did not expect an error from Resolve()", err)
	}
	if rMeta == nil {
		t.Error("rMeta from .Resolve() should not be nil on a good return")
	}
	if rMeta.TransportDuration == 0 ||
		rMeta.ResolutionDuration == 0 ||
		rMeta.PayloadSize == 0 ||
		rMeta.QueryTries == 0 ||
		rMeta.ServerTries == 0 ||
		rMeta.FinalServerUsed == "" {
		t.Error("rMeta returned from Resolve seem unpopulated", rMeta)
	}
}

// Test that a UDP truncated response falls back to TCP.
func TestResolveFallback(t *testing.T) {
	mte := &mockExchanger{}
	r0 := &dns.Msg{}
	r0.MsgHdr.Id = 3001
	r0.Truncated = true
	mte.append(r0, time.Second, nil)

	r1 := &dns.Msg{}
	r1.SetQuestion("Randomlength.example.net", dns.TypeNS)
	r1.MsgHdr.Id = 3002 // Id differentiates between the UDP response above and this TCP response
	mte.append(r1, time.Second, nil)

	res, err := New(Config{ServerAddrs: []string{"9.9.9.9:53"},
		NewDNSClientExchangerFunc: func(string) DNSClientExchanger {
			return mte
		}})
	if err != nil {
		t.Fatal("Test setup failed unexpectedly", err)
	}
	r, meta, err := res.Resolve(&dns.Msg{}, qMeta)
	if r.MsgHdr.Id != r1.MsgHdr.Id {
		t.Error("Wrong response was returned. Expected TCP with id", r1.MsgHdr.Id, "not", r.MsgHdr)
	}
	if meta.TransportType != resolver.DNSTransportTCP {
		t.Error("Wrong transport returned. Expected resolver.DNSTransportTCP, got", meta)
	}
	if meta.QueryTries != 2 {
		t.Error("Expected two query tries overall, not", meta)
	}
}
