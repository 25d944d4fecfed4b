// Command backreplay is the CLI/REST entry point: a cobra command tree
// exposing a synchronous "run" subcommand and an embedded "serve" subcommand
// for job submission over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riverglen/backreplay/internal/config"
	"github.com/riverglen/backreplay/internal/logger"
)

var (
	configPath string
	verbosity  int
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "backreplay",
	Short: "backreplay runs rule-based multi-asset backtests over precomputed indicator tables.",
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "env", "e", ".env", "path to a .env file (missing file is not an error)")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 1, "log verbosity: 0=error 1=info 2=debug 3=trace")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a job payload (JSON or YAML)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)

	cobra.OnInitialize(func() {
		config.LoadEnv(envFile)
		logger.SetVerbosity(verbosity)
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadPayload() (config.Payload, error) {
	if configPath == "" {
		return config.Payload{}, fmt.Errorf("--config is required")
	}
	return config.LoadFile(configPath)
}
