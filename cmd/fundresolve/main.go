// Command fundresolve resolves fund names and searches the scheme registry
// from the terminal, without running the HTTP service.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
