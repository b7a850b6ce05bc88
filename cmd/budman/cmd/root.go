// Package cmd implements the budman command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budman/internal/settings"
	"budman/pkg/logger"
)

var (
	cfgFile string
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// resolved is the settings snapshot built by initConfig before any
	// subcommand runs
	resolved *settings.Settings
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "budman",
	Short: "Personal budget transaction pipeline",
	Long: `Budman stages bank export files through a budget folder: raw exports
are taken in as transaction workbooks, categorized against per-institution
regex rule catalogs, and finalized once every row carries a budget category.

Examples:
  budman init --budget-folder ~/budget
  budman intake --fi boa
  budman categorize
  budman finalize --force
  budman show categories --fi boa
  budman watch --settle 5s
  budman shell`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, default searches ./budman.yaml and ~/budman.yaml)")
	rootCmd.PersistentFlags().String("budget-folder", "", "budget folder root (default: working directory)")
	rootCmd.PersistentFlags().String("store", "", "budget store file, relative to the budget folder unless absolute")
	rootCmd.PersistentFlags().String("fi", "", "restrict the run to one institution")
	rootCmd.PersistentFlags().StringP("output-format", "f", "", "output format: console, json, csv")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
}

// initConfig resolves settings from flags, BUDMAN_* environment variables
// and the optional config file, then configures the global logger.
func initConfig() {
	v, err := settings.NewViper(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(4)
	}

	flags := rootCmd.PersistentFlags()
	v.BindPFlag("budget_folder", flags.Lookup("budget-folder"))
	v.BindPFlag("store", flags.Lookup("store"))
	v.BindPFlag("fi", flags.Lookup("fi"))
	v.BindPFlag("output_format", flags.Lookup("output-format"))
	v.BindPFlag("verbose", flags.Lookup("verbose"))

	resolved, err = settings.Load(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(4)
	}

	logger.SetGlobalLogger(mustLogger(resolved))

	if resolved.Verbose && v.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
	}
}

func mustLogger(s *settings.Settings) logger.Logger {
	cfg := &logger.Config{
		Level:  logger.Level(s.LogLevel()),
		Format: logger.Format(s.LogFormat),
		Output: logger.StderrOutput,
	}
	log, err := logger.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(4)
	}
	return log
}

// Settings returns the resolved settings for the current invocation
func Settings() *settings.Settings {
	if resolved == nil {
		resolved = settings.Defaults()
	}
	return resolved
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
