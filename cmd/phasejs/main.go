// phasejs - HTTP server running JavaScript phase handlers
package main

import "github.com/cryguy/phasejs/internal/cli"

func main() {
	cli.Execute()
}
