// Command crdtserver runs the collaborative text editing demo: a WebSocket
// endpoint backed by a crdt.RGArray per document, plus a debug /merkle
// endpoint and a merkle-sync subcommand for exercising anti-entropy between
// two running replicas.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
