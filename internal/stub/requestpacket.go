package stub

import (
	"net"

	"github.com/miekg/dns"
)

// Transport identifies which socket type a RequestPacket arrived on.
type Transport int

const (
	TransportUDP Transport = iota
	TransportTCP
)

func (t Transport) String() string {
	if t == TransportUDP {
		return "udp"
	}

	return "tcp"
}

// RequestPacket is a single inbound query as received off the wire, prior to any parsing beyond
// what admission control needs to perform its dedup/loop checks. The raw bytes are kept so that
// bypass mode (dispatch.go/bypass.go) can patch and retransmit them with minimal reparsing.
type RequestPacket struct {
	Transport  Transport
	Endpoint   *Endpoint
	SenderAddr net.IP
	SenderPort uint16
	DestAddr   net.IP // Destination address the packet arrived on, from PKTINFO; nil if unknown
	Ifindex    int     // 0 if not available (e.g. most TCP paths, or platforms without PKTINFO)

	Raw []byte // Full wire bytes, header included

	msg *dns.Msg // Lazily parsed on first call to Msg()
}

// Msg parses and caches the packet's dns.Msg representation. A parse failure is permanent: ingress
// then answers the request with FORMERR.
func (r *RequestPacket) Msg() (*dns.Msg, error) {
	if r.msg != nil {
		return r.msg, nil
	}

	m := new(dns.Msg)
	if err := m.Unpack(r.Raw); err != nil {
		return nil, err
	}

	r.msg = m

	return m, nil
}

// headerBytes extracts the fixed 12-byte DNS header for use as part of a dedup key. Returns the
// zero value if Raw is shorter than a legal DNS header - callers must already have rejected such
// packets before reaching admission control.
func (r *RequestPacket) headerBytes() (hdr [12]byte) {
	n := copy(hdr[:], r.Raw)
	_ = n

	return hdr
}

// isResponse reports whether the QR bit in the packet header is set, i.e. this "query" is actually
// a reply. The primary endpoint must never process one of these - answering it would create a
// forwarding loop (see SUPPLEMENTED FEATURES in SPEC_FULL.md, grounded on the response-bit check
// performed ahead of dns_stub_collect_answer_by_question's dedup lookup in the original).
func (r *RequestPacket) isResponse() bool {
	return len(r.Raw) > 2 && r.Raw[2]&0x80 != 0
}
