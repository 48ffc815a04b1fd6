package main

import (
	"os"

	"github.com/rzzdr/options-risk-engine/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
