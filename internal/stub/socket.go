package stub

import (
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// udpPacketConn wraps the raw net.PacketConn with whichever of golang.org/x/net/ipv4.PacketConn or
// ipv6.PacketConn matches the endpoint's address family, giving access to per-packet control
// messages (PKTINFO for the inbound interface/local address) that the plain "net" package does not
// expose.
type udpPacketConn struct {
	raw  net.PacketConn
	ipv4 *ipv4.PacketConn // set when the endpoint is IPv4
	ipv6 *ipv6.PacketConn // set when the endpoint is IPv6
}

func (p *udpPacketConn) Close() error { return p.raw.Close() }

// newListenConfig builds a net.ListenConfig whose Control hook applies the socket options spec
// §4.1 requires, before bind() happens - this mirrors set_dns_stub_common_socket_options,
// manager_dns_stub_fd and manager_dns_stub_fd_extra's sequencing, where every option is set on the
// naked fd prior to bind.
func newListenConfig(cfg EndpointConfig) net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = applySocketOptions(int(fd), network, cfg)
			})
			if err != nil {
				return err
			}

			return sockErr
		},
	}
}

// wrapPacketConn attaches the ipv4/ipv6 control-message helper matching the endpoint's family and
// enables PKTINFO delivery at the golang.org/x/net layer (a second, Go-side enable in addition to
// the raw SetsockoptInt above, since golang.org/x/net tracks the flag itself).
func wrapPacketConn(raw net.PacketConn, isIPv6 bool) (*udpPacketConn, error) {
	p := &udpPacketConn{raw: raw}
	if isIPv6 {
		p.ipv6 = ipv6.NewPacketConn(raw)
		if err := p.ipv6.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true); err != nil {
			return nil, err
		}
	} else {
		p.ipv4 = ipv4.NewPacketConn(raw)
		if err := p.ipv4.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
			return nil, err
		}
	}

	return p, nil
}
