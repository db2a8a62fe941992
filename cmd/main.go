package main

import (
	"os"

	"github.com/ElegantFalcon/Quizzy/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
