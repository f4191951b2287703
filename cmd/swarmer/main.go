package main

import (
	"os"

	"github.com/wesleyorama2/swarmer/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
