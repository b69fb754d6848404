package main

import (
	"testing"
)

var usageTestCases = []testCase{
	{[]string{}, []string{}, "Fatal: dnsstub-dig: Require server address[:port] on command line. Consider -h"},
	{[]string{"-h"}, []string{"NAME", "SYNOPSIS", "OPTIONS", "Version: v"}, ""},
	{[]string{"--version"}, []string{"Version: v"}, ""},
	{[]string{"-badopt"}, []string{}, "flag provided but not defined"},

	{[]string{"127.0.0.1:1"}, []string{}, "Require qName on command"},
	{[]string{"127.0.0.1:1", "example.net", "BADTYPE"}, []string{}, "Unrecognized qType"},
	{[]string{"127.0.0.1:1", "example.net", "AAAA", "goop"}, []string{}, "know what to do"},

	{[]string{"-t", "xx", "127.0.0.1:1", "example.net"}, []string{}, "invalid value"},
	{[]string{"-r", "-1", "127.0.0.1:1", "example.net"}, []string{}, "Repeat count"},
	{[]string{"--udp-size", "xx", "127.0.0.1:1", "example.net"}, []string{}, "invalid value"},
}

func TestUsage(t *testing.T) {
	for tx, tc := range usageTestCases {
		runTest(t, tx, tc)
	}
}
