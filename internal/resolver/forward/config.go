package forward

import "time"

// Config is passed to the New() constructor.
type Config struct {
	ServerAddrs []string      // host:port of upstream recursive resolvers, tried in res_send(3) order
	Attempts    int           // Max attempts across ServerAddrs - 0 defaults to len(ServerAddrs)
	Timeout     time.Duration // Overall time budget across all attempts - 0 defaults to 5s

	// Caller can create their own Exchangers on our behalf
	NewDNSClientExchangerFunc func(net string) DNSClientExchanger
}
