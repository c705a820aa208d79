package main

import (
	"fmt"
	"os"

	"github.com/sarpel/micrelay/cmd"
	"github.com/sarpel/micrelay/internal/conf"
)

func main() {
	settings, err := conf.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "micrelay: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "micrelay: %v\n", err)
		os.Exit(1)
	}
}
