package cmd

import (
	"fmt"
	"os"

	"github.com/GoCodeAlone/modrefresh"
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with refreshd configuration files",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(NewConfigSampleCommand())
	cmd.AddCommand(NewConfigValidateCommand())

	return cmd
}

// NewConfigSampleCommand creates the command printing a default configuration
func NewConfigSampleCommand() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a configuration file holding the default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := modrefresh.SampleConfig(format)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write sample config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sample config written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml or toml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}

// NewConfigValidateCommand creates the command checking a configuration file
func NewConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Load and validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := modrefresh.LoadConfig(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (wait timeout %s, %d detached workers)\n",
				args[0], cfg.WaitTimeout(), cfg.DetachedWorkers)
			return nil
		},
	}
}
