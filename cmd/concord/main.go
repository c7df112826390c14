package main

import (
	"fmt"
	"os"

	cmd "github.com/concordnetworks/concord/cmd/concord/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(cmd.ExitCode(err))
	}
}
