// Package cli implements the todochaos command line
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=..."
var Version = "dev"

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "todochaos",
		Short:         "To-do service with a built-in chaos harness",
		Long:          "Serves a per-user to-do list whose writes pass through a fault injector and crash boundary, with a live observability dashboard.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
