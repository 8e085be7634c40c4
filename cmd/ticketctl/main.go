// Command ticketctl runs ticket triage tasks from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spec-kit/ticket-triage/internal/config"
)

func main() {
	cfg, err := config.Read()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}
