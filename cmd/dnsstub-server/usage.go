package main

import (
	"fmt"
	"io"
	"text/template"
	"time"
)

// The "flag" package is not tty aware so we've arbitrarily picked 100 columns as a conservative tty
// width for the usage output.

const usageMessageTemplate = `
NAME
          {{.ServerProgramName}} -- a DNS stub listener that forwards to a fixed resolver set

SYNOPSIS
          {{.ServerProgramName}} [options] upstream-server-address[:port]...

DESCRIPTION
          {{.ServerProgramName}} is a plain-DNS stub listener based on {{.RFC}}. It accepts ordinary
          DNS queries over UDP and TCP on the usual local resolver address and forwards them, over
          plain DNS, to one of the upstream recursive resolvers named on the command line.

          {{.ServerProgramName}} is designed to be small and lightweight. Because it readily
          cross-compiles to every target system supported by https://golang.org, {{.ServerProgramName}}
          is well suited to installation on a home-gateway or router in place of the default dns
          forwarder. Alternatively {{.ServerProgramName}} can be installed at your office or home on a
          small server such as a Raspberry Pi.

          Split-horizon resolution is enabled by supplying a resolv.conf file containing local
          'domain' and 'search' names. Suffix-matched domains are forwarded for resolution to the
          local resolv.conf nameservers rather than to the upstream servers. Additional
          local-resolution names can be supplied on the command-line if you want to use a system
          generated resolv.conf or similar immutable file.

          A dedicated loopback-alias endpoint is always bound in addition to any -A listen addresses
          supplied on the command line. Queries are accepted on UDP and TCP.

          Upstream servers are tried in the order given on the command line, res_send(3)-style: the
          current server is used until it fails, at which point the next server in the list is
          tried, wrapping back to the first once the list is exhausted.

RESOLUTION LOOPS
          Extreme care must be taken when creating a system-wide resolv.conf containing the listen
          address of this program *and* supplying a local resolv.conf to this program for
          split-horizon resolution. These two files *must not* refer to the same listen address
          otherwise local resolution simply calls this program which in turn calls local resolution
          which in turns calls this program which ... well, you get the idea, it results in an
          un-ending query loop.

          {{.ServerProgramName}} additionally drops any inbound packet with the QR bit already set, a
          cheap backstop against the same kind of loop arriving over the wire rather than via
          resolv.conf.

INVOCATION
          An invocation naming a couple of well-known public resolvers might be:

              $ {{.ServerProgramName}} 9.9.9.9:53 1.1.1.1:53

          Once started you should be able to issue DNS queries on the local system interface such
          as:

              $ dig @127.0.0.53 apple.com mx

          Assuming this query works you can update the client systems to refer to the configured
          listen address of {{.ServerProgramName}}. In many cases this might be via changes to your
          DHCP server.

OPTIONS
          [-hv]
          [-A extra-listen-Address[:port] ...] [--tcp] [--udp]

          [-c resolv.conf path with local domains] [-e localdomain ...]
          [-i status-report-interval] [-r maximum remote attempts]
          [-t remote request timeout]

          [--log-client-in] [--log-client-out]
          [--log-all]

          [--gops] [--cpu-profile file] [--mem-profile file]

          [--user userName] [--group groupName] [--chroot directory]

          [--version]

`

//////////////////////////////////////////////////////////////////////

func usage(out io.Writer) {
	tmpl, err := template.New("usage").Parse(usageMessageTemplate)
	if err != nil {
		panic(err) // We've messed up our template
	}
	err = tmpl.Execute(out, consts)
	if err != nil {
		panic(err) // We've messed up our template
	}
	flagSet.SetOutput(out)
	flagSet.PrintDefaults()
	fmt.Fprintln(out, "\nVersion:", consts.Version)
}

// parseCommandLine sets up the flags-to-config mapping and parses the supplied command line
// arguments. It starts from scratch each time to make it easier for test wrappers to use.
func parseCommandLine(args []string) error {
	flagSet.BoolVar(&cfg.help, "h", false, "Print usage message to Stdout then exit(0)")
	flagSet.BoolVar(&cfg.verbose, "v", false, "Verbose status and stats - otherwise only errors are output")

	flagSet.Var(&cfg.listenAddresses, "A",
		"Extra listen `address[:port]` in addition to the mandatory loopback-alias endpoint (default :"+consts.DNSDefaultPort+")")

	flagSet.BoolVar(&cfg.tcp, "tcp", true, "Listen for TCP DNS Queries")
	flagSet.BoolVar(&cfg.udp, "udp", true, "Listen for UDP DNS Queries")

	flagSet.StringVar(&cfg.localResolvConf, "c", "",
		"`path` to resolv.conf with split-horizon domains and local resolver IPs")
	flagSet.Var(&cfg.localDomains, "e", "A `domain` to consider local along with those in resolv.conf (-c)")
	flagSet.DurationVar(&cfg.statusInterval, "i", time.Minute*15, "Periodic Status Report `interval`")
	flagSet.IntVar(&cfg.remoteAttempts, "r", 3, "Maximum `attempts` across the upstream server list")
	flagSet.DurationVar(&cfg.requestTimeout, "t", time.Second*15, "Remote request `timeout`")

	flagSet.BoolVar(&cfg.logAll, "log-all", false, "Turns on all other --log-* options")
	flagSet.BoolVar(&cfg.logClientIn, "log-client-in", false, "Compact print of query arriving from client")
	flagSet.BoolVar(&cfg.logClientOut, "log-client-out", false, "Compact print of response returned to client")

	// gops go pprof settings

	flagSet.BoolVar(&cfg.gops, "gops", false, "Start github.com/google/gops agent")
	flagSet.StringVar(&cfg.cpuprofile, "cpu-profile", "", "write cpu profile to `file`")
	flagSet.StringVar(&cfg.memprofile, "mem-profile", "", "write mem profile to `file`")

	// Process Constraint parameters

	flagSet.StringVar(&cfg.setuidName, "user", "", "setuid `username` to constrain process after start-up (disabled for Linux)")
	flagSet.StringVar(&cfg.setgidName, "group", "", "setgid `groupname` to constrain process after start-up (disabled for Linux)")
	flagSet.StringVar(&cfg.chrootDir, "chroot", "", "chroot `directory` to constrain process after start-up")

	flagSet.BoolVar(&cfg.version, "version", false, "Print version and exit")

	return flagSet.Parse(args[1:])
}
