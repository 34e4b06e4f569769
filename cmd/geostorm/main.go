// Package main is the entry point for the geostorm CLI.
package main

import "github.com/dshills/geostorm/internal/cli"

func main() {
	cli.Execute()
}
