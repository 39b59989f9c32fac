// Command gemini-mind sends prompts to the Gemini API and manages the
// response cache from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gemini-mind: %v\n", err)
		os.Exit(1)
	}
}
