package main

import (
	"os"

	"github.com/opencohort/outpost/cmd/outpost-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
