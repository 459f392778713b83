package main

import (
	"fmt"
	"os"

	"github.com/spec-kit/support-desk/cmd/deskctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
