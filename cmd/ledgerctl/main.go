package main

import (
	"os"

	"github.com/ledgerline/ledgerline/internal/commands"
)

func main() {
	if err := commands.NewRootCommand(commands.DefaultEnv()).Execute(); err != nil {
		os.Exit(1)
	}
}
