package main

import (
	"os"

	"github.com/majorcontext/zedlogin/cmd/zedlogin/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
