package main

import (
	"os"

	"github.com/shareprinto/dispatcher/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
