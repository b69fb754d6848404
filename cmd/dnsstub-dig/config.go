package main

import "time"

type config struct {
	help     bool
	parallel bool
	short    bool
	version  bool

	tcp     bool // Force TCP transport instead of UDP
	dnssec  bool // Set the EDNS0 DO bit
	cdFlag  bool // Set the CD bit
	adFlag  bool // Set the AD bit
	nsid    bool // Request the NSID EDNS0 option

	repeatCount    int
	requestTimeout time.Duration
	udpSize        int
}
