// Package main is the entry point for relaycore, the terminal client's
// event-ingestion and derived-state engine. The terminal renderer itself is
// out of scope here; this binary wires the relay transport, the command
// queue, and the runtime object owning every ingestion component, and
// drives the cooperative event loop that feeds them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
