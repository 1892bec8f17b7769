// Command acsctl is the companion CLI spec.md §6 describes as "out of
// core scope but consumes the core": a thin translator from subcommands
// to dispatch.Command submissions over the gRPC command surface, exiting
// with the status codes §6 defines so scripts can branch on failure kind
// without parsing error text.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if code, ok := exitCodeFromError(err); ok {
			fmt.Fprintln(os.Stderr, "error:", err)
			return code
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitOther
	}
	return exitSuccess
}
