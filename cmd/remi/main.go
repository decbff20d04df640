// Package main provides the entry point for the Remi CLI.
package main

import (
	"fmt"
	"os"

	"github.com/lsj5031/remi/cmd/remi/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
