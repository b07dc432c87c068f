package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdhe/frame-insight/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(v, configFile); err != nil {
		return err
	}
	for _, line := range config.Settings(v) {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
