package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/abdhe/frame-insight/pkg/config"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var (
	v          = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:     "insight",
	Short:   "Camera frame relay with image analysis",
	Long:    "Insight stores the latest uploaded camera frame, streams it to viewers and describes it on demand.",
	Version: Version,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")

	mustBind(v, "log.level", flags.Lookup("log-level"))
	mustBind(v, "log.format", flags.Lookup("log-format"))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}
