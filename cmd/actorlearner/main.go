package main

import (
	"os"

	"distributed-actor-learner/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
