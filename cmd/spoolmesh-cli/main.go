// Package main provides the entry point for spoolmesh-cli.
//
// spoolmesh-cli is the command-line client for spoolmesh-server. It
// manages the local owner key and issues spool commands over the
// server's unix socket.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/spoolmesh-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
