package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root command for the refreshd application
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refreshd",
		Short: "refreshd - module refresh coordinator demo daemon",
		Long: `refreshd runs an installation engine against an in-memory module host.
Updated modules are batched into refresh requests, refreshed through the host
and inspected through the admin HTTP API.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewConfigCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	})

	return cmd
}

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("refreshd v%s (commit: %s, built on: %s)", Version, Commit, Date)
}
