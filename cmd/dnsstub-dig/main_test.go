package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

type testCase struct {
	args   []string
	stdout []string
	stderr string
}

var mainTestCases = []testCase{
	// Nothing listens on 127.0.0.1:1 so these all fail at the transport layer.
	{[]string{"-t", "200ms", "127.0.0.1:1", "example.net"}, []string{}, "Error:"},
	{[]string{"-t", "200ms", "-r", "2", "127.0.0.1:1", "example.net"}, []string{}, "Error:"},
	{[]string{"-t", "200ms", "-p", "-r", "2", "127.0.0.1:1", "example.net"}, []string{}, "Error:"},
	{[]string{"-t", "200ms", "--tcp", "127.0.0.1:1", "example.net"}, []string{}, "Error:"},
	{[]string{"-t", "200ms", "--dnssec", "--nsid", "127.0.0.1:1", "example.net"}, []string{}, "Error:"},

	{[]string{"-t", "xx", "127.0.0.1:1", "example.net"}, []string{}, "invalid value"},
	{[]string{"127.0.0.1:1", "example.net", "BOGUSTYPE"}, []string{}, "Unrecognized qType"},
	{[]string{"127.0.0.1:1"}, []string{}, "Require qName"},
	{[]string{}, []string{}, "Require server address"},
	{[]string{"-r", "-1", "127.0.0.1:1", "example.net"}, []string{}, "must be GE zero"},
	{[]string{"127.0.0.1:1", "example.net", "A", "residual"}, []string{}, "residual goop"},
}

func TestMain(t *testing.T) {
	for tx, tc := range mainTestCases {
		runTest(t, tx, tc)
	}
}

// This function is used by usage_test.go as well
func runTest(t *testing.T, tx int, tc testCase) {
	t.Run(fmt.Sprintf("%d", tx), func(t *testing.T) {
		args := append([]string{"dnsstub-dig"}, tc.args...)
		out := &bytes.Buffer{}
		err := &bytes.Buffer{}
		mainInit(out, err)
		ec := mainExecute(args)

		outStr := out.String()
		errStr := err.String()

		if ec != 0 && len(tc.stderr) == 0 {
			t.Error("Unexpected non-zero exit code", ec, outStr, errStr)
		}

		if len(errStr) > 0 && len(tc.stderr) == 0 {
			t.Error("Did not expect stderr:", errStr)
		}
		if len(tc.stderr) > 0 && !strings.Contains(errStr, tc.stderr) {
			t.Error("Stderr expected:\n", tc.stderr, "Got:\n", errStr, args)
		}
		for _, o := range tc.stdout {
			if !strings.Contains(outStr, o) {
				t.Error("Stdout expected:\n", o, "Got:\n", outStr, args)
			}
		}
	})
}
