package main

import (
	"os"

	"github.com/kppillai/niftybot/cmd/niftybot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
