package main

import (
	"os"

	"github.com/martijn/sitecalm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
