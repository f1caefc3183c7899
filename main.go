package main

import (
	"os"

	"github.com/TFMV/vfswatch/cmd"
)

func main() {
	// Execute reports its own errors through the command logger.
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
