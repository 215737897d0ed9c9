package main

import (
	"os"

	"github.com/wesleyorama2/kaioken/internal/cli"
)

func Main() int {
	return cli.Execute()
}

func main() {
	os.Exit(Main())
}
