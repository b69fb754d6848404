package stub

import (
	"fmt"
	"net"

	"github.com/markdingo/dnsstub/internal/dnsutil"

	"github.com/miekg/dns"
)

const maxUDPPacket = 65535

// serveUDP reads datagrams off one endpoint's UDP socket until it is closed, handing each to
// ingress. One recv per readable event yields one packet, matching SPEC_FULL.md §4.2.
func (l *Listener) serveUDP(ep *Endpoint) {
	defer l.wg.Done()

	buf := make([]byte, maxUDPPacket)
	for {
		n, addr, err := ep.udpConn.raw.ReadFrom(buf)
		if err != nil {
			return
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		req := &RequestPacket{Transport: TransportUDP, Endpoint: ep, Raw: raw}
		if udpAddr, ok := addr.(*net.UDPAddr); ok {
			req.SenderAddr = udpAddr.IP
			req.SenderPort = uint16(udpAddr.Port)
		}

		l.ingress(req, nil)
	}
}

// serveTCP accepts connections on one endpoint's TCP socket until it is closed, spawning one
// goroutine per accepted stream.
func (l *Listener) serveTCP(ep *Endpoint) {
	defer l.wg.Done()

	for {
		conn, err := ep.tcpLn.Accept()
		if err != nil {
			return
		}

		stream := newStream(conn, ep, l)
		go stream.serve()
	}
}

// ingress is the single entry point every UDP datagram and TCP stream message passes through: the
// admission pipeline of SPEC_FULL.md §4.2. stream is nil for UDP.
func (l *Listener) ingress(req *RequestPacket, stream *Stream) {
	ep := req.Endpoint

	if ep.Kind() == KindPrimary && !addressIsLoopback(req.SenderAddr) {
		l.trace(fmt.Sprintf("stub: dropping non-loopback sender %s on primary endpoint", req.SenderAddr))

		return
	}
	if ep.Kind() == KindPrimary && req.DestAddr != nil && !addressIsLoopback(req.DestAddr) {
		l.trace(fmt.Sprintf("stub: dropping non-loopback destination %s on primary endpoint", req.DestAddr))

		return
	}

	if req.isResponse() {
		l.trace("stub: dropping inbound packet with QR=1 set (loop detection)")

		return
	}

	placeholder := &Query{Request: req, Stream: stream, Endpoint: ep}

	if admitted, isNew := ep.dedup.Admit(req, placeholder); !isNew {
		_ = admitted // Retransmit: the original query's eventual reply will reach the client

		return
	}

	msg, err := req.Msg()
	if err != nil {
		l.replyRaw(req, stream, mustPack(buildFormerrReply(req.Raw)))
		ep.dedup.release(placeholder)

		return
	}

	if rcode, rejected := admissionCheck(msg); rejected {
		reply := buildAdmissionRejection(msg, ep, rcode)
		l.replyRaw(req, stream, mustPack(reply))
		ep.dedup.release(placeholder)

		return
	}

	placeholder.question = msg.Question[0]
	placeholder.requestID = msg.Id
	placeholder.requestDO = hasDO(msg)
	placeholder.requestCD = msg.CheckingDisabled
	placeholder.requestAD = msg.AuthenticatedData
	if opt := dnsutil.FindOPT(msg); opt != nil {
		placeholder.requestHasOPT = true
		placeholder.requestAdvertisedSize = opt.UDPSize()
	}

	l.startQuery(placeholder, msg)
}

// admissionCheck implements the OPT-version/obsolete-type/zone-transfer/RD checks of the admission
// table. msg is expected to have exactly one question, as classical DNS queries always do; a request
// with zero or several questions parses successfully and is rejected as REFUSED here.
func admissionCheck(msg *dns.Msg) (rcode int, rejected bool) {
	if opt := dnsutil.FindOPT(msg); opt != nil && opt.Version() != 0 {
		return dns.RcodeBadVers, true
	}

	if len(msg.Question) != 1 {
		return dns.RcodeRefused, true
	}

	qtype := msg.Question[0].Qtype
	switch qtype {
	case dns.TypeMD, dns.TypeMF: // Obsolete per RFC1035
		return dns.RcodeRefused, true
	case dns.TypeAXFR, dns.TypeIXFR: // Zone transfers - this is a stub listener, not authoritative
		return dns.RcodeRefused, true
	}

	if !msg.RecursionDesired {
		return dns.RcodeRefused, true
	}

	return 0, false
}

func hasDO(msg *dns.Msg) bool {
	opt := dnsutil.FindOPT(msg)

	return opt != nil && opt.Do()
}

func addressIsLoopback(ip net.IP) bool {
	return ip != nil && ip.IsLoopback()
}

func mustPack(m *dns.Msg) []byte {
	raw, err := m.Pack()
	if err != nil {
		// A reply we built ourselves from trusted fields should never fail to pack; if it
		// somehow does there is nothing useful left to send.
		return nil
	}

	return raw
}

// replyRaw writes a pre-packed reply back to the client over whichever transport the request
// arrived on.
func (l *Listener) replyRaw(req *RequestPacket, stream *Stream, raw []byte) {
	if raw == nil {
		return
	}

	if stream != nil {
		_ = stream.write(raw)

		return
	}

	ep := req.Endpoint
	if ep.udpConn == nil {
		return
	}

	_, _ = ep.udpConn.raw.WriteTo(raw, &net.UDPAddr{IP: req.SenderAddr, Port: int(req.SenderPort)})
}
