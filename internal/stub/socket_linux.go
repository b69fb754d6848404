//go:build linux
// +build linux

package stub

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// bindToInterface pins fd to ifname via SO_BINDTODEVICE, the same mechanism
// socket_bind_to_ifindex uses on the primary endpoint to guarantee no traffic from outside the
// local host can ever reach it, even if the bound address were somehow reachable another way.
func bindToInterface(fd int, ifname string) error {
	return unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifname)
}

// applySocketOptions configures one listening socket exactly as set_dns_stub_common_socket_options
// plus the primary/extra-specific options from manager_dns_stub_fd/manager_dns_stub_fd_extra do.
func applySocketOptions(fd int, network string, cfg EndpointConfig) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}

	isTCP := network == "tcp" || network == "tcp4" || network == "tcp6"
	isIPv6 := cfg.Address.To4() == nil

	if isIPv6 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVPKTINFO, 1)
	} else {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_PKTINFO, 1)
	}

	if isTCP {
		// Best-effort, as the original source does: a platform lacking these options should
		// not prevent the listener from starting.
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_FASTOPEN, consts.TCPFastOpenQueueLen)
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}

	if cfg.Kind == KindPrimary {
		// Pin to the loopback interface so no off-host traffic can ever reach this socket,
		// then clamp outbound TTL to 1 for the same reason belt-and-braces: a reply can never
		// survive a single router hop even if routing were somehow misconfigured.
		if err := bindToInterface(fd, consts.StubIfname); err != nil {
			return fmt.Errorf("bind to %s: %w", consts.StubIfname, err)
		}
		if isIPv6 {
			if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, 1); err != nil {
				return fmt.Errorf("IPV6_UNICAST_HOPS: %w", err)
			}
		} else {
			if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, 1); err != nil {
				return fmt.Errorf("IP_TTL: %w", err)
			}
		}
	} else {
		// Extra endpoints may be bound to a non-local address (e.g. a container bridge not
		// yet up), so allow binding before the address exists, and do not clamp TTL.
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_FREEBIND, 1) // Not fatal if unsupported
		if !isTCP {
			disablePMTUD(fd, isIPv6)
		}
	}

	return nil
}

// disablePMTUD turns off path-MTU-discovery on UDP sockets for extra endpoints, matching
// socket_disable_pmtud: an oversized reply should be truncated by us, not silently dropped by an
// ICMP-fragmentation-needed blackhole somewhere in the path.
func disablePMTUD(fd int, isIPv6 bool) {
	if isIPv6 {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_MTU_DISCOVER, unix.IPV6_PMTUDISC_DONT)
	} else {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DONT)
	}
}
