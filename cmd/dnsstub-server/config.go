package main

import (
	"time"

	"github.com/markdingo/dnsstub/internal/flagutil"
	"github.com/markdingo/dnsstub/internal/resolver/forward"
)

type config struct {
	gops    bool
	help    bool
	tcp     bool // Listen on TCP
	udp     bool // Listen on UDP
	verbose bool
	version bool

	listenAddresses flagutil.StringValue // Extra (non-primary) endpoints for inbound DNS queries

	localResolvConf string
	localDomains    flagutil.StringValue // In addition to those in resolv.conf
	statusInterval  time.Duration

	remoteAttempts int
	requestTimeout time.Duration

	logAll       bool // Turns on all other log options
	logClientIn  bool // Print the DNS query arriving from the client
	logClientOut bool // Print the DNS response returned to the client

	forwardConfig forward.Config

	cpuprofile, memprofile string

	setuidName, setgidName, chrootDir string // Process constraint settings
}
