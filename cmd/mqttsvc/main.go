// Package main provides the mqttsvc CLI.
//
// Usage:
//
//	mqttsvc [flags] <command> [args]
//
// Commands:
//
//	run     - connect, subscribe to the configured filters and log messages
//	publish - publish a single message and wait for its delivery
//
// Configuration:
//
//	Settings are read from the YAML file given with --config and can be
//	overridden with MQTTSVC_BROKER_URL, MQTTSVC_CLIENT_ID,
//	MQTTSVC_USERNAME and MQTTSVC_PASSWORD.
package main

import (
	"fmt"
	"os"

	"github.com/srishina/mqttsvc/cmd/mqttsvc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
