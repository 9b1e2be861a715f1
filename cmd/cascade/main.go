package main

import (
	"os"

	"github.com/avery-holt/cascade/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
