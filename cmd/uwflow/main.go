// Package main is the entrypoint for uwflow, which stages inputs and runs
// forecast model components through lazily evaluated task graphs.
package main

import "github.com/uwflow/uwflow/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
