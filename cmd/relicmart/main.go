// Package main is the relicmart command: the item catalog HTTP server and
// its operator helpers.
package main

import (
	"os"
)

// Version is set by build flags.
var Version = "dev"

func main() {
	if err := getRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
