// Package cli implements the phasejs command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "phasejs",
		Short: "phasejs runs JavaScript handlers in the phases of HTTP requests",
		Long: `phasejs is an HTTP server that runs JavaScript handlers at fixed points of
request processing: post_read, server_rewrite, rewrite, access, content and log.

Handlers are configured per location in an HCL file and compiled once when the
configuration is loaded. Send SIGHUP to reload the configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newTestCmd(), newVersionCmd())
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
