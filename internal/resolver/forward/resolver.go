/*
Package forward is a resolver implementation which forwards anything not claimed by a local
resolver to a fixed list of upstream recursive resolvers over plain DNS.

Typical usage is pretty straightforward. Create the resolver once then use it to resolve dns.Msgs.

     res, err := forward.New(forward.Config{ServerAddrs: []string{"9.9.9.9:53", "1.1.1.1:53"}})
     for {
         qname, msg := getMsg()
         if res.InBailiwick(qname) {
            reply, details, err := res.Resolve(msg, nil)
            if err == nil {
               handleReply(reply)
                ..
            }
         }
     }
*/
package forward

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/markdingo/dnsstub/internal/bestserver"
	"github.com/markdingo/dnsstub/internal/resolver"

	"github.com/miekg/dns"
)

const me = "forwardresolver"

// gfx = General Failure Index into error array for non-server specific errors

type gfxInt int

const (
	gfxTimeout     gfxInt = iota
	gfxMaxAttempts        // Maximum number of attempts exceeded
	gfxArraySize
)

// sfx = Server Failure Index into per-best-server error array

type sfxInt int

const (
	sfxExchangeError sfxInt = iota
	sfxFormatError
	sfxServerFail
	sfxRefused
	sfxNotImplemented
	sfxOther
	sfxArraySize
)

// evx = EVent indeX into per-best-server event array
const (
	evxTCPFallback = iota
	evxTCPSuperior
	evxArraySize
)

// DNSClientExchanger is an interface which implements dns.Client.Exchange() - the only dns.Client
// method used by the forward resolver. It exists so we can supply a mock dns.Client for testing.
type DNSClientExchanger interface {
	Exchange(query *dns.Msg, server string) (reply *dns.Msg, rtt time.Duration, err error)
}

func defaultNewDNSClientExchangerFunc(net string) DNSClientExchanger {
	return &dns.Client{Net: net}
}

// bestServerStats is kept as a separate struct from bestServer so that resetCounters() is trivial
// via the simple expedient of a struct copy.
type bestServerStats struct {
	success int

	events   [evxArraySize]int
	failures [sfxArraySize]int

	latency time.Duration
}

// bestServer is our struct for tracking the upstream resolvers. We need our own struct rather than
// the default one as we track statistics above and beyond what the bestserver package does.
type bestServer struct {
	name string
	bestServerStats
}

// Name meets the bestserver.Server interface
func (t *bestServer) Name() string {
	return t.name
}

// resetCounters sets all bestServer counters back to zero. Caller has protected the structure from
// concurrent access.
func (t *bestServer) resetCounters() {
	t.bestServerStats = bestServerStats{}
}

// resolverStats contains global stats for this resolver instance and is used by the reporter. It's a
// separate struct to make resetCounters() simple and resilient to changes.
type resolverStats struct {
	success      int
	failures     [gfxArraySize]int
	totalLatency time.Duration
}

type forward struct {
	config Config

	bestServer bestserver.Manager // Tracks which upstream server is performing well for us

	mu sync.RWMutex // Protects everything below here

	bsList []*bestServer
	resolverStats
}

// Caller has protected data structures
func (t *forward) resetCounters() {
	t.resolverStats = resolverStats{}
}

// New is the constructor for the forward resolver. ServerAddrs is mandatory - a forward resolver
// with nothing to forward to is a configuration error, not a runtime one.
func New(config Config) (*forward, error) {
	if len(config.ServerAddrs) == 0 {
		return nil, errors.New(me + ": No servers in ServerAddrs")
	}

	t := &forward{config: config} // Take a copy of the supplied config
	if t.config.NewDNSClientExchangerFunc == nil {
		t.config.NewDNSClientExchangerFunc = defaultNewDNSClientExchangerFunc
	}
	if t.config.Attempts <= 0 {
		t.config.Attempts = len(t.config.ServerAddrs)
	}
	if t.config.Timeout <= 0 {
		t.config.Timeout = time.Second * 5
	}

	// Keep the upstream servers in bestserver and use the "traditional" algorithm to pick our
	// "best", mimicking res_send semantics: try the current server until it fails, then move on.

	t.bsList = make([]*bestServer, 0, len(t.config.ServerAddrs))
	ifList := make([]bestserver.Server, 0, len(t.config.ServerAddrs)) // go doesn't coerce arrays
	for _, n := range t.config.ServerAddrs {
		bs := &bestServer{name: n}
		t.bsList = append(t.bsList, bs)
		ifList = append(ifList, bs)
	}

	var err error
	t.bestServer, err = bestserver.NewTraditional(bestserver.TraditionalConfig{}, ifList)
	if err != nil {
		return nil, errors.New(me + ": " + err.Error())
	}

	return t, nil
}

// InBailiwick always claims any well-formed FQDN: the forward resolver is the mandatory catch-all
// backend for anything an optional local resolver doesn't claim.
func (t *forward) InBailiwick(qName string) bool {
	_, ok := dns.IsDomainName(qName)
	return ok
}

// Resolve re-implements res_send(3): iterate over the configured upstream servers until an
// acceptable response, or attempts/time run out.
//
// If the response indicates a TCP fallback (rcode=0, truncated=true) then re-exchange the same
// query with the same server using TCP. If the TCP query fails then return the original UDP
// response to the caller who can deal with TC=1 as they see fit.
func (t *forward) Resolve(q *dns.Msg, qMeta *resolver.QueryMetaData) (*dns.Msg, *resolver.ResponseMetaData, error) {
	timeAvailable := t.config.Timeout // How long have we got?
	var timeUsed time.Duration
	var transportType resolver.DNSTransportType
	if qMeta != nil {
		transportType = qMeta.TransportType
	}
	respMeta := &resolver.ResponseMetaData{TransportType: transportType}

	exchanger := t.config.NewDNSClientExchangerFunc("") // Start off with a default/UDP dns.Client
	respMeta.TransportDuration = 1                      // Populated properly below on success

	maxAttempts := t.config.Attempts
	if maxAttempts > t.bestServer.Len() { // No point trying a server more than once
		maxAttempts = t.bestServer.Len()
	}

	for attempts := 1; attempts <= maxAttempts; attempts++ {
		respMeta.ServerTries++
		server, bsix := t.bestServer.Best()
		respMeta.FinalServerUsed = server.Name()          // Set response metadata in
		respMeta.TransportType = resolver.DNSTransportUDP // happy anticipation of success.
		respMeta.QueryTries++
		r, rtt, err := exchanger.Exchange(q, server.Name())
		tcpFallback := false
		tcpSuperior := false
		if err == nil && r.Rcode == dns.RcodeSuccess && r.Truncated { // Fall back to TCP?
			tcpFallback = true
			tcpExchanger := t.config.NewDNSClientExchangerFunc("tcp")
			respMeta.QueryTries++
			tcpReply, tcpRtt, tcpErr := tcpExchanger.Exchange(q, server.Name())
			if tcpErr == nil && tcpReply.Rcode == dns.RcodeSuccess { // Superior to UDP?
				tcpSuperior = true // TCP reply is superior to the UDP reply, so prefer it
				r = tcpReply
				respMeta.TransportType = resolver.DNSTransportTCP // Report successful transport
			}
			rtt += tcpRtt // Treat as one big fat query for stats purposes
		}

		// We want to know three things about the query: 1) whether it was "successful" in the
		// bestServer sense; 2) whether the response was an interesting error worthy of tracking
		// in our stats and 3) whether the resolution loop should iterate and retry or stop and
		// return to the caller.
		//
		// Iteration on error depends on whether the error can be attributed to the query or the
		// server. If the former, iteration stops. If the latter, iteration continues.

		var bsSuccess bool  // Best Server success
		var sfx sfxInt = -1 // Worthy stats index if GE zero
		var iterate bool    // Loop around and retry (within retry limits)

		switch {
		case err != nil: // packet exchange failed. Assume a network or server issue.
			bsSuccess = false // Tell bestServer to demote
			sfx = sfxExchangeError
			iterate = true // Iterate on a server issue

		case r.Rcode == dns.RcodeSuccess:
			bsSuccess = true
			iterate = false

		case r.Rcode == dns.RcodeFormatError: // Assume query is bogus so stop iterating
			bsSuccess = true
			sfx = sfxFormatError
			iterate = false

		case r.Rcode == dns.RcodeServerFailure: // Assume server-specific issue
			bsSuccess = false
			sfx = sfxServerFail
			iterate = true

		case r.Rcode == dns.RcodeNameError: // NXDomain is actually a good return!
			bsSuccess = true
			iterate = false

		case r.Rcode == dns.RcodeRefused: // Assume a server access control issue
			bsSuccess = false
			sfx = sfxRefused
			iterate = true

		case r.Rcode == dns.RcodeNotImplemented: // Assume server-specific
			bsSuccess = false
			sfx = sfxNotImplemented
			iterate = true

		default: // All other Rcodes are returned to the caller
			bsSuccess = true
			sfx = sfxOther
			iterate = false
		}

		// Switch has set bsSuccess, iterate and sfx

		timeUsed += rtt
		t.bestServer.Result(server, bsSuccess, time.Now(), rtt)
		if sfx == -1 {
			t.addServerSuccess(bsix, tcpFallback, tcpSuperior, rtt)
		} else {
			t.addServerFailure(bsix, tcpFallback, tcpSuperior, sfx)
		}
		if !iterate {
			t.addGeneralSuccess()
			respMeta.ResolutionDuration = timeUsed
			respMeta.PayloadSize = r.Len()
			return r, respMeta, nil
		}

		if timeUsed > timeAvailable { // Run out of time to iterate?
			t.addGeneralFailure(gfxTimeout)
			return nil, nil, fmt.Errorf(me+": Query timeout: %s", t.config.Timeout)
		}
	}

	t.addGeneralFailure(gfxMaxAttempts)
	return nil, nil, fmt.Errorf(me+": Query attempts exceeded: %d", t.config.Attempts)
}
