package main

import (
	"os"

	"github.com/jamal-o/guessing-game-server/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
