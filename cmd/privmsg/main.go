package main

import (
	"os"

	"privmsg/cmd/privmsg/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
