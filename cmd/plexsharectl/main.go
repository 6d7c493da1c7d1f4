package main

import (
	"fmt"
	"os"

	"github.com/plexshare/backend/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
