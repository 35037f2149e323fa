// Command x32mgrd is the daemon and CLI entrypoint: it wires config,
// transport, correlator, store, and the HTTP/WS surfaces together behind
// a small set of cobra subcommands, dispatched from a single Execute().
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
