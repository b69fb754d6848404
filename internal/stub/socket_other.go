//go:build !linux && !windows
// +build !linux,!windows

package stub

import (
	"golang.org/x/sys/unix"
)

// bindToInterface is a no-op outside Linux: SO_BINDTODEVICE has no portable equivalent, so on other
// platforms the primary endpoint relies solely on binding to the loopback alias address itself to
// keep traffic local.
func bindToInterface(fd int, ifname string) error {
	return nil
}

// applySocketOptions is a reduced, best-effort rendering of the Linux socket-option set: only
// SO_REUSEADDR, which every BSD socket layer supports the same way.
func applySocketOptions(fd int, network string, cfg EndpointConfig) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}
