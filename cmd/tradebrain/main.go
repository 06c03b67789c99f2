package main

import (
	"os"

	"github.com/harun/tradebrain/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
