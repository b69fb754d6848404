/*
Package stub implements a DNS stub listener: a plain-DNS-in, plain-DNS-out component that accepts
queries from local or operator-nominated clients over UDP and TCP, hands them to a resolver.Engine
for resolution, and assembles the engine's answer bag back into a correctly sectioned, correctly
truncated DNS reply. It does not cache, select upstream servers or validate DNSSEC - all of that is
the Engine's job, reached only through the internal/resolver interfaces.
*/
package stub

import (
	"fmt"
	"net"

	"github.com/markdingo/dnsstub/internal/constants"
)

var consts = constants.Get()

// Kind distinguishes the mandatory primary endpoint from operator-configured extra endpoints. Only
// the primary endpoint gets TTL=1/bind-to-lo/NSID; extra endpoints get freebind and no TTL clamp.
type Kind int

const (
	KindPrimary Kind = iota
	KindExtra
)

func (k Kind) String() string {
	if k == KindPrimary {
		return "primary"
	}

	return "extra"
}

// EndpointConfig describes one operator-requested listening address. The primary endpoint's
// EndpointConfig is synthesized internally from constants.StubAddress/StubPort and never comes from
// operator configuration.
type EndpointConfig struct {
	Kind    Kind
	Address net.IP
	Port    uint16
	UDP     bool
	TCP     bool
}

func (e EndpointConfig) String() string {
	return fmt.Sprintf("%s:%d/%s", e.Address, e.Port, e.Kind)
}

// DefaultPrimaryEndpointConfig returns the mandatory loopback-alias endpoint every stub Listener
// binds in addition to any operator-configured extra endpoints.
func DefaultPrimaryEndpointConfig() EndpointConfig {
	return EndpointConfig{
		Kind:    KindPrimary,
		Address: net.ParseIP(consts.StubAddress),
		Port:    consts.StubPort,
		UDP:     true,
		TCP:     true,
	}
}

// Endpoint is one bound listening address: a UDP packet socket, a TCP listen socket, or both, plus
// the per-endpoint retransmit dedup table and NSID identity that a reply assembled for this
// endpoint must carry.
type Endpoint struct {
	config EndpointConfig

	udpConn *udpPacketConn // nil if UDP not requested
	tcpLn   net.Listener   // nil if TCP not requested

	dedup *dedupTable

	advertiseSizeMax uint16 // Max UDP payload size this endpoint will claim via EDNS0
	nsid             []byte // nil on extra endpoints - see SUPPLEMENTED FEATURES
}

// Kind reports whether this is the primary or an extra endpoint.
func (e *Endpoint) Kind() Kind { return e.config.Kind }

// Config returns the configuration this endpoint was constructed from.
func (e *Endpoint) Config() EndpointConfig { return e.config }

// AdvertiseSizeMax returns the maximum UDP payload size this endpoint advertises via EDNS0: the
// large loopback-MTU-derived value on the primary endpoint, a conservative unicast-safe value on
// extra endpoints.
func (e *Endpoint) AdvertiseSizeMax() uint16 { return e.advertiseSizeMax }

// NSID returns this endpoint's NSID identity, or nil if NSID is suppressed (always the case on
// extra endpoints).
func (e *Endpoint) NSID() []byte { return e.nsid }
