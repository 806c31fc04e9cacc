package main

import (
	"os"

	"github.com/pbi-manager/activity-sync/activity/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
