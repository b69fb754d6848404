/*
Package constants provides common values used across all dnsstub packages. Usage is to call the
global Get() function which returns the Constants by value ensuring that any modifications made
(accidental or otherwise) will not affect other modules when they call Get().

Typically usage:

    consts := constants.Get()
    fmt.Println("I am", consts.ServerProgramName, "based on", consts.RFC)

The primary reason for making this a constructed struct rather than the more typical const () block
is so that it can be fed directly into templating packages for printing usage messages.
*/
package constants

// Constants contains the system-wide constants
type Constants struct {
	DigProgramName    string
	ServerProgramName string // Package related constants
	Version           string
	PackageName       string
	PackageURL        string
	RFC               string

	DNSDefaultPort          string // DNS Related constants
	MinimumViableDNSMessage uint   // MsgHdr + one Question with zero length name
	DNSTruncateThreshold    int    // A message larger than this size may be truncated unless EDNS0
	MaximumViableDNSMessage uint   // Upper limit on a packed DNS message this module will build

	DNSUDPTransport string // Suitable for the "net" package, but just to make sure we're
	DNSTCPTransport string // consistent across the whole package.

	// Stub listener constants (RFC1035/RFC6891/RFC5001)

	StubAddress    string // Dedicated loopback alias the primary endpoint binds to
	StubPort       uint16
	StubIfname     string // Loopback interface name the primary endpoint is pinned to
	CNAMERedirectMax int // Maximum CNAME/DNAME chase length before ELOOP

	AdvertiseDatagramSizeMax      uint16 // Primary endpoint: 64KiB loopback MTU less Ethernet/IPv4/UDP overhead
	AdvertiseExtraDatagramSizeMax uint16 // Extra endpoints: conservative large-unicast size

	NSIDSuffix string // Appended to the derived per-machine NSID identifier

	TCPFastOpenQueueLen int // Advisory TCP_FASTOPEN backlog on stub TCP listeners
}

var readOnlyConstants *Constants

// createReadOnlyConstants creates a read-only copy of the Constants which is copied whenever a
// caller asks for the constants set. The main reason for returning a struct is so that callers can
// inspect and/or use packages that introspect - particularly */template packages.
func createReadOnlyConstants() {
	readOnlyConstants = &Constants{
		DigProgramName:    "dnsstub-dig",
		ServerProgramName: "dnsstub-server",
		Version:           "v0.1.0",
		PackageName:       "DNS Stub Listener",
		PackageURL:        "https://github.com/markdingo/dnsstub",
		RFC:               "RFC1035",

		DNSDefaultPort:          "53",
		MinimumViableDNSMessage: 16, // A legit binary DNS Message *cannot* be shorter than this
		DNSTruncateThreshold:    512,
		MaximumViableDNSMessage: 65535,

		DNSUDPTransport: "udp",
		DNSTCPTransport: "tcp",

		StubAddress:      "127.0.0.53",
		StubPort:         53,
		StubIfname:       "lo",
		CNAMERedirectMax: 16,

		// The loopback MTU is 64K on Linux; advertise that less Ethernet/IPv4/UDP headers.
		AdvertiseDatagramSizeMax: 65536 - 14 - 20 - 8,
		// Conservative choice for non-loopback extra endpoints - a large unicast-safe EDNS0 size.
		AdvertiseExtraDatagramSizeMax: 1232,

		NSIDSuffix: ".resolved.systemd.io",

		TCPFastOpenQueueLen: 5,
	}
}

func init() {
	createReadOnlyConstants()
}

// Get returns a copy of the Constant struct. Return by value so internal values cannot be
// inadvertently changed by callers.
func Get() Constants {
	return *readOnlyConstants
}
