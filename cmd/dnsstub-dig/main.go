// Issue a classic DNS query to a running dnsstub-server stub listener (or any nameserver)
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/markdingo/dnsstub/internal/constants"

	"github.com/miekg/dns"
)

// Program-wide variables
var (
	consts = constants.Get()
	cfg    *config

	stdout io.Writer
	stderr io.Writer

	flagSet *flag.FlagSet
)

//////////////////////////////////////////////////////////////////////

func fatal(args ...interface{}) int {
	fmt.Fprint(stderr, "Fatal: ", consts.DigProgramName, ": ")
	fmt.Fprintln(stderr, args...)

	return 1
}

//////////////////////////////////////////////////////////////////////
// main is a wrapper for mainExecute() so tests can call mainExecute()
//////////////////////////////////////////////////////////////////////

func mainInit(out io.Writer, err io.Writer) {
	cfg = &config{}
	stdout = out
	stderr = err
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
		fmt.Fprintln(stdout, consts.DigProgramName, "Version:", consts.Version)
		return 0
	}

	if cfg.repeatCount < 0 {
		return fatal("Repeat count (-r) must be GE zero, not", cfg.repeatCount)
	}

	remainingOptions := flagSet.NArg()
	optionIndex := 0

	if remainingOptions < 1 {
		return fatal("Require server address[:port] on command line. Consider -h")
	}
	server := flagSet.Arg(optionIndex)
	optionIndex++
	remainingOptions--
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, consts.DNSDefaultPort)
	}

	if remainingOptions < 1 {
		return fatal("Require qName on command line. Consider -h")
	}
	qName := dns.Fqdn(flagSet.Arg(optionIndex))
	optionIndex++
	remainingOptions--

	qTypeString := dns.TypeToString[dns.TypeA] // Default to an "A" query
	if remainingOptions > 0 {
		qTypeString = strings.ToUpper(flagSet.Arg(optionIndex))
		optionIndex++
		remainingOptions--
	}
	qType, ok := dns.StringToType[qTypeString] // Does miekg know about this type?
	if !ok {
		return fatal("Unrecognized qType of", qTypeString)
	}

	if remainingOptions > 0 {
		return fatal("Don't know what to do with residual goop on command line:", flagSet.Arg(optionIndex))
	}

	network := "udp"
	if cfg.tcp {
		network = "tcp"
	}
	client := &dns.Client{Net: network, Timeout: cfg.requestTimeout}

	chOut := make(chan string, 1) // Queries write to a chan so we can parallelize
	chErr := make(chan string, 1) // and reap and print the outputs without interleaving.
	if cfg.parallel {
		for qx := 0; qx < cfg.repeatCount; qx++ {
			go doQuery(chOut, chErr, client, server, qName, qType)
		}
		for qx := 0; qx < cfg.repeatCount; qx++ {
			s := <-chOut
			fmt.Fprint(stdout, s)
			s = <-chErr
			fmt.Fprint(stderr, s)
		}
	} else {
		for qx := 0; qx < cfg.repeatCount; qx++ {
			doQuery(chOut, chErr, client, server, qName, qType)
			s := <-chOut
			fmt.Fprint(stdout, s)
			s = <-chErr
			fmt.Fprint(stderr, s)
		}
	}

	return 0
}

//////////////////////////////////////////////////////////////////////

func doQuery(chOut, chErr chan string, client *dns.Client, server, qName string, qType uint16) {
	outBuf := &strings.Builder{}
	errBuf := &strings.Builder{}
	defer func() {
		chOut <- outBuf.String()
		chErr <- errBuf.String()
	}()

	query := &dns.Msg{}
	query.SetQuestion(qName, qType)
	query.RecursionDesired = true
	query.CheckingDisabled = cfg.cdFlag
	query.AuthenticatedData = cfg.adFlag

	if cfg.dnssec || cfg.nsid || cfg.udpSize != dns.MinMsgSize {
		opt := &dns.OPT{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT}}
		opt.SetUDPSize(uint16(cfg.udpSize))
		if cfg.dnssec {
			opt.SetDo()
		}
		if cfg.nsid {
			opt.Option = append(opt.Option, &dns.EDNS0_NSID{Code: dns.EDNS0NSID})
		}
		query.Extra = append(query.Extra, opt)
	}

	start := time.Now()
	resp, rtt, err := client.Exchange(query, server)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintln(errBuf, "Error:", err)
		return
	}

	if cfg.short {
		for _, rr := range resp.Answer {
			fmt.Fprintln(outBuf, rr.String())
		}
	} else {
		fmt.Fprintln(outBuf, resp)
		fmt.Fprintf(outBuf, ";; Query Time: %s (rtt %s)\n", elapsed.Truncate(time.Millisecond), rtt.Truncate(time.Millisecond))
		fmt.Fprintf(outBuf, ";; Server: %s (%s)\n", server, client.Net)
		fmt.Fprintln(outBuf)
	}
}
