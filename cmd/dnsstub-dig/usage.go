package main

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/miekg/dns"
)

// The "flag" package is not tty aware so we've arbitrarily picked 100 columns as a conservative tty
// width for the usage output.

const usageMessageTemplate = `
NAME
          {{.DigProgramName}} -- a minimal classic DNS query program

SYNOPSIS
          {{.DigProgramName}} [options] server[:port] FQDN [DNS-qType]

DESCRIPTION
          {{.DigProgramName}} issues a plain DNS query over UDP or TCP directly to a nameserver, most
          commonly a running instance of {{.ServerProgramName}}'s stub listener. Only qClass=IN is
          supported. If a DNS-Type is not supplied then qType=A is used.

          The primary purpose of {{.DigProgramName}} is to exercise the wire-protocol behaviour of
          {{.ServerProgramName}} directly - EDNS0, the DO/CD/AD bits, NSID, truncation and CNAME
          chasing - without going anywhere near whatever upstream transport the engine resolves with.

          **********
          Production Use Alert: {{.DigProgramName}} is a diagnostic program which will almost
          certainly change with each new package release. Please do not rely on its current
          behaviour or output format and definitely do not use it in a shell script.
          **********

EXAMPLES
          Against a local {{.ServerProgramName}} instance:

            $ {{.DigProgramName}} 127.0.0.53 yahoo.com MX

          Request DNSSEC records and the server's NSID identity:

            $ {{.DigProgramName}} --dnssec --nsid 127.0.0.53 example.net A

          Force TCP and a short answer-only listing:

            $ {{.DigProgramName}} --tcp --short 127.0.0.53:53 example.net AAAA

OPTIONS
          [-hp] [--short] [--tcp]

          [-r repeat count] [-t request timeout]

          [--dnssec] [--cd] [--ad] [--nsid] [--udp-size bytes]

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
	flagSet.BoolVar(&cfg.parallel, "p", false, "Issue all queries in parallel")
	flagSet.IntVar(&cfg.repeatCount, "r", 1, "`Number` of times to issue the query (GE zero)")

	flagSet.BoolVar(&cfg.short, "short", false, "Generate short output showing only Answer RRs")
	flagSet.BoolVar(&cfg.tcp, "tcp", false, "Use TCP instead of UDP")

	flagSet.DurationVar(&cfg.requestTimeout, "t", time.Second*15, "Request `timeout`")

	flagSet.BoolVar(&cfg.dnssec, "dnssec", false, "Set the EDNS0 DO bit")
	flagSet.BoolVar(&cfg.cdFlag, "cd", false, "Set the CD (checking disabled) bit")
	flagSet.BoolVar(&cfg.adFlag, "ad", false, "Set the AD (authenticated data) bit")
	flagSet.BoolVar(&cfg.nsid, "nsid", false, "Request the server's NSID identity via EDNS0")
	flagSet.IntVar(&cfg.udpSize, "udp-size", dns.MinMsgSize, "Advertised EDNS0 UDP `payload size`")

	flagSet.BoolVar(&cfg.version, "version", false, "Print version and exit")

	return flagSet.Parse(args[1:])
}
