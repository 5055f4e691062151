package main

import (
	"fmt"
	"maps"
	"os"

	"github.com/spf13/cobra"

	"github.com/smallnest/fabflow/config"
)

var rootCmd = &cobra.Command{
	Use:   "fabflow",
	Short: "fabflow runs the semiconductor inspection review workflow",
	Long: `fabflow routes LOT inspection requests through history lookup, a process
proposal and a human review gate before dispatching them to the inspection
agents. It also hosts a multi-source knowledge router and an NCS document chatbot.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (defaults to $"+config.EnvConfigFile+")")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error, none")
}

// loadConfig reads the configuration with the flags of cmd bound on top.
// bindings maps config keys to flag names of cmd.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	all := map[string]string{"log.level": "log-level"}
	maps.Copy(all, bindings)
	return config.LoadWithFlags(path, cmd.Flags(), all)
}
