// Command zimdump parses a ZIM archive and prints its articles' urls and
// titles, optionally their content or the archive's mime-type table.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
