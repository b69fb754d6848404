//go:build windows
// +build windows

package stub

// Windows is not a deployment target for this stub listener (the primary endpoint's loopback-alias
// design assumes a Linux-style "bind a second address to lo" setup), so socket options here are a
// no-op and the listener falls back to whatever net.ListenConfig's defaults give it.
func bindToInterface(fd int, ifname string) error {
	return nil
}

func applySocketOptions(fd int, network string, cfg EndpointConfig) error {
	return nil
}
