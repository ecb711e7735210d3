// Command ticketctl mints and inspects check-in tickets for local testing and
// support. It reads the signing secret from TICKET_SIGNING_SECRET.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
