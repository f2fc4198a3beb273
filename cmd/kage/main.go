/*
kage validates a document against a schema and runs a graph of bindings
over it.

Usage:

	kage <command> [flags]

Commands:

	kage run       Validate the input and execute a bindings manifest
	kage validate  Check an input document against a schema
	kage graph     Show execution order and levels
	kage version   Print version information
*/
package main

import (
	"os"

	"github.com/wehubfusion/kage/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
