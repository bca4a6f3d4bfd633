package main

import (
	"os"

	"github.com/KelkeFranvin/coco-quiz/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
