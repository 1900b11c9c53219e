package main

import (
	"os"

	"github.com/rewired-gh/tariffwatch/cmd/tariffwatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
