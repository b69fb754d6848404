// listen for inbound DNS queries on a stub listener and forward to a fixed list of upstream
// recursive resolvers for resolution
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/markdingo/dnsstub/internal/constants"
	"github.com/markdingo/dnsstub/internal/osutil"
	"github.com/markdingo/dnsstub/internal/reporter"
	"github.com/markdingo/dnsstub/internal/resolver"
	"github.com/markdingo/dnsstub/internal/resolver/engine"
	"github.com/markdingo/dnsstub/internal/resolver/forward"
	"github.com/markdingo/dnsstub/internal/resolver/local"
	"github.com/markdingo/dnsstub/internal/stub"

	"github.com/google/gops/agent"
)

// Program-wide variables
var (
	consts = constants.Get()
	cfg    *config

	stdout io.Writer // All I/O goes via these writers
	stderr io.Writer

	startTime                = time.Now()
	mainStarted, mainStopped bool // Record state transitions thru main (used by tests)
	stopChannel              chan os.Signal
	flagSet                  *flag.FlagSet
)

//////////////////////////////////////////////////////////////////////

func fatal(args ...interface{}) int {
	fmt.Fprint(stderr, "Fatal: ", consts.ServerProgramName, ": ")
	fmt.Fprintln(stderr, args...)

	return 1
}

func stopMain() {
	stopChannel <- syscall.SIGINT
}

//////////////////////////////////////////////////////////////////////
// main wrappers make it easy for test programs
//////////////////////////////////////////////////////////////////////

// mainInit resets everything such that mainExecute() can be called multiple times in one program
// execution. stopChannel is buffered as the reader may disappear if there is a fatal error and
// multiple writers my try and write to the channel and we don't want those writers to stall
// forever.
func mainInit(out io.Writer, err io.Writer) {
	cfg = &config{}
	stdout = out
	stderr = err
	mainStarted = false
	mainStopped = false
	stopChannel = make(chan os.Signal, 4) // All reasonable signals cause us to quit or stats report
	signal.Notify(stopChannel, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGUSR1)
}

func main() {
	mainInit(os.Stdout, os.Stderr)
	os.Exit(mainExecute(os.Args))
}

func mainExecute(args []string) int {
	flagSet = flag.NewFlagSet(args[0], flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	err := parseCommandLine(args)
	if err != nil {
		return 1 // Error already printed by the flag package
	}
	if cfg.help {
		usage(stdout)
		return 0
	}
	if cfg.version {
		fmt.Fprintln(stdout, consts.ServerProgramName, "Version:", consts.Version)
		return 0
	}

	if cfg.logAll {
		cfg.logClientIn = true
		cfg.logClientOut = true
	}

	if cfg.gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			return fatal(err)
		}
		defer agent.Close()
	}

	primaryMode := stub.ModeOff
	switch {
	case cfg.udp && cfg.tcp:
		primaryMode = stub.ModeBoth
	case cfg.udp:
		primaryMode = stub.ModeUDP
	case cfg.tcp:
		primaryMode = stub.ModeTCP
	}
	if primaryMode == stub.ModeOff {
		return fatal("Must have one of --tcp or --udp set")
	}

	// Validate upstream server addresses

	for _, addr := range flagSet.Args() {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
			port = consts.DNSDefaultPort
		}
		if net.ParseIP(host) == nil {
			return fatal(addr, "does not contain a valid IP address")
		}
		cfg.forwardConfig.ServerAddrs = append(cfg.forwardConfig.ServerAddrs, net.JoinHostPort(host, port))
	}

	if len(cfg.forwardConfig.ServerAddrs) == 0 {
		return fatal("Must supply at least one upstream server address on the command line")
	}

	if cfg.remoteAttempts < 1 {
		return fatal("Minimum remote attempts must be greater than zero (-r)")
	}

	var reporters []reporter.Reporter // Keep track of all reportable routines

	// localResolver handles split-horizon domains

	if len(cfg.localResolvConf) == 0 && cfg.localDomains.NArg() > 0 {
		return fatal("Local Domains (-e) cannot be resolved without a resolv.conf (-c)")
	}

	var localResolver resolver.Resolver
	var localDomains []string
	if len(cfg.localResolvConf) > 0 {
		lr, err := local.New(local.Config{
			ResolvConfPath: cfg.localResolvConf, LocalDomains: cfg.localDomains.Args()})
		if err != nil {
			return fatal(err)
		}
		reporters = append(reporters, lr)
		localResolver = lr                     // Hold on to the interface
		localDomains = lr.InBailiwickDomains() // Capture while we access to the struct
		sort.Strings(localDomains)
	}

	// Complete forward Config settings and construct the forwarding resolver

	cfg.forwardConfig.Attempts = cfg.remoteAttempts
	cfg.forwardConfig.Timeout = cfg.requestTimeout
	remoteResolver, err := forward.New(cfg.forwardConfig)
	if err != nil {
		return fatal(err)
	}
	reporters = append(reporters, remoteResolver)

	// Start CPU profiling now that most error checking is complete

	if len(cfg.cpuprofile) > 0 {
		f, err := os.Create(cfg.cpuprofile)
		if err != nil {
			return fatal(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	// Memory profile is triggered at the end of the program but we open the output file and
	// hold it open prior to any possible chroot/setuid/setgid action.

	var memProfileFile *os.File
	if len(cfg.memprofile) > 0 {
		memProfileFile, err = os.Create(cfg.memprofile)
		if err != nil {
			return fatal(err)
		}
		defer memProfileFile.Close()
	}

	// Build the extra (operator-requested) endpoints. The primary loopback-alias endpoint is
	// always bound in addition to these by stub.Listener.Start - see SPEC_FULL.md §4.1.

	extras, err := parseExtraEndpoints(cfg.listenAddresses.Args(), cfg.udp, cfg.tcp)
	if err != nil {
		return fatal(err)
	}

	eng := engine.New(remoteResolver, localResolver)
	listener := stub.New(eng, stdout)
	reporters = append(reporters, listener)

	if cfg.verbose {
		fmt.Fprintln(stdout,
			consts.ServerProgramName, consts.Version, "Starting:", cfg.forwardConfig.ServerAddrs)
		if len(cfg.localResolvConf) > 0 {
			fmt.Fprintln(stdout, "Local Resolution:", cfg.localResolvConf)
			fmt.Fprintln(stdout, "Local Domains:", strings.Join(localDomains, ", "))
		}
		fmt.Fprintln(stdout, "Starting stub listener: primary", primaryMode, "extras", extras)
	}

	if err := listener.Start(primaryMode, extras); err != nil {
		return fatal(err)
	}

	// Constrain the process via setuid/setgid/chroot. This is a no-op call if all parameters
	// are empty strings. Unlike the HTTP side of things we don't have to delay here as
	// Listener.Start only returns once the privileged sockets have been opened.

	err = osutil.Constrain(cfg.setuidName, cfg.setgidName, cfg.chrootDir)
	if err != nil {
		return fatal(err)
	}
	if cfg.verbose {
		fmt.Fprintf(stdout, "Constraints: %s\n", osutil.ConstraintReport())
	}

	// Loop forever giving periodic status reports and checking for a termination event.

	mainStarted = true // Tell testers that we're up and running
	nextStatusIn := nextInterval(time.Now(), cfg.statusInterval)

Running:
	for {
		select {
		case s := <-stopChannel:
			if s == syscall.SIGUSR1 {
				statusReport("User1", false, reporters)
				break
			}
			if cfg.verbose {
				fmt.Fprintln(stdout, "\nSignal", s)
			}
			break Running // All signals bar USR1 cause loop exit

		case <-time.After(nextStatusIn):
			if cfg.verbose {
				statusReport("Status", true, reporters)
			}
			nextStatusIn = nextInterval(time.Now(), cfg.statusInterval)
		}
	}

	listener.Stop()

	mainStopped = true

	if cfg.verbose {
		statusReport("Status", true, reporters) // One last report prior to exiting
		fmt.Fprintln(stdout, consts.ServerProgramName, consts.Version, "Exiting after", uptime())
	}

	// Memory profile is written at the end of the program

	if memProfileFile != nil {
		runtime.GC() // get up-to-date statistics
		err := pprof.WriteHeapProfile(memProfileFile)
		if err != nil {
			return fatal(err)
		}
	}

	return 0
}

// parseExtraEndpoints turns the operator-supplied -A address[:port] list into stub.EndpointConfig
// values. Each extra endpoint listens on whichever transports the top-level --tcp/--udp flags
// requested of the primary endpoint - SPEC_FULL.md does not call for per-extra-endpoint transport
// selection.
func parseExtraEndpoints(addrs []string, udp, tcp bool) ([]stub.EndpointConfig, error) {
	var extras []stub.EndpointConfig
	for _, addr := range addrs {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
			portStr = consts.DNSDefaultPort
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("-A %s: not a valid IP address", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("-A %s: invalid port: %w", addr, err)
		}

		extras = append(extras, stub.EndpointConfig{
			Kind: stub.KindExtra, Address: ip, Port: uint16(port), UDP: udp, TCP: tcp,
		})
	}

	return extras, nil
}

// nextInterval calculates the duration to the modulo interval next time. If now is 00:01:17 and
// interval is 30s then return is 13s which is the duration to the next modulo of 00:01:30.
func nextInterval(now time.Time, interval time.Duration) time.Duration {
	return now.Truncate(interval).Add(interval).Sub(now)
}

// upTime calculates how long this server has been running and returns print-friendly and
// granularity-appropriate representation of that duration.
func uptime() string {
	return time.Now().Sub(startTime).Truncate(time.Second).String()
}

// statusReport prints stats about the server and all known reporters
func statusReport(what string, resetCounters bool, reporters []reporter.Reporter) {
	fmt.Fprintln(stdout, "Status Up:", consts.ServerProgramName, consts.Version, uptime())
	for _, r := range reporters {
		reps := strings.Split(r.Report(resetCounters), "\n")
		for _, s := range reps {
			if len(s) > 0 {
				fmt.Fprintf(stdout, "%s %s: %s\n", what, r.Name(), s)
			}
		}
	}
}
