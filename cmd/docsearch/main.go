// Command docsearch queries the cross-language search index from a
// terminal.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
