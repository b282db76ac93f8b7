package main

import (
	"os"

	"github.com/spigell/swipe-sync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
