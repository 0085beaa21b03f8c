// Command forge is the adventure-authoring assistant: an HTTP chat endpoint,
// terminal clients and an MCP tool server over the same sessions.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
