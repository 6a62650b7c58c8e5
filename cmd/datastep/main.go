// Package main provides the CLI for the DataStep analysis engine.
package main

import (
	"github.com/datastep-labs/datastep/internal/cli"
)

func main() {
	cli.Execute()
}
