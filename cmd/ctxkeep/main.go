// Package main provides the entry point for the ctxkeep CLI tool.
package main

import (
	"github.com/ctxkeep/ctxkeep/cmd/ctxkeep/cmd"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
