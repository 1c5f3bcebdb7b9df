package main

import (
	"os"

	"github.com/askiada/go-query-pipeline/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
