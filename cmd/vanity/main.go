package main

import (
	"os"

	"github.com/peterkovacs/vanity/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
