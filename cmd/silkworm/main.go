package main

import (
	"os"

	"github.com/gurukamath/silkworm/cmd/silkworm/commands"
)

func main() {
	commands.RootCmd.AddCommand(
		commands.VersionCmd,
		commands.NewRunNodeCommand(),
	)

	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
