// Command mcpchat is the MCP chat client.
//
// Without a subcommand it connects to the configured MCP servers, lists
// their tools, calls list-collections for the mydb database, prints both
// results and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newCLI(os.Stdin, os.Stdout, os.Stderr).rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
		os.Exit(1)
	}
}
