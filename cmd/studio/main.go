package main

import (
	"os"

	"architect-studio/internal/cmd"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := cmd.Execute(version, commit); err != nil {
		os.Exit(1)
	}
}
