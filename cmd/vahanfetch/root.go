package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"vahanfetch/pkg/config"
	"vahanfetch/pkg/logger"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vahanfetch",
	Short: "Fetch and parse vehicle statistics from the Vahan dashboard",
	Long: `vahanfetch walks the Vahan vehicle registration dashboard state by state
and persists every metric panel as a raw HTML artifact, tracking progress in a
durable completion ledger so interrupted runs resume where they left off.

A separate parse stage turns the raw artifacts into one combined long-format
dataset for analysis.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.vahanfetch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`vahanfetch {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig resolves configuration with the standard precedence and
// initializes the global logger from it
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}
