// Package main provides the entry point for the broker CLI.
package main

import (
	"fmt"
	"os"

	"github.com/agentbroker/broker/cmd/broker/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
