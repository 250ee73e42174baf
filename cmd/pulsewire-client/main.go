// Command pulsewire-client is an interactive client for a pulsewire server.
//
// It opens a streaming connection, prints received events, and exposes
// commands for topic membership, subscription management and operator
// broadcasts.
//
// Usage:
//
//	pulsewire-client [flags]
//
// Flags:
//
//	-server string  Server base URL (default "http://localhost:8080")
//	-client string  Client ID (default: generated)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
)

var (
	flagServer = flag.String("server", "http://localhost:8080", "Server base URL")
	flagClient = flag.String("client", "", "Client ID")
)

func main() {
	flag.Parse()

	clientID := *flagClient
	if clientID == "" {
		clientID = "cli-" + uuid.NewString()[:8]
	}

	shell, err := newShell(*flagServer, clientID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulsewire-client: %v\n", err)
		os.Exit(1)
	}
	defer shell.Close()

	shell.Run()
}
