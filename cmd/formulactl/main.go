package main

import (
	"os"

	"github.com/formulalab/formula-gateway/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
