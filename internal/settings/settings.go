// Package settings resolves budman's runtime configuration from an optional
// config file, BUDMAN_* environment variables and command-line flags, in
// ascending precedence.
package settings

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"budman/internal/store"
	"budman/pkg/errors"
)

// EnvPrefix is the environment variable prefix: BUDMAN_BUDGET_FOLDER,
// BUDMAN_STORE and so on.
const EnvPrefix = "BUDMAN"

// ConfigName is the base name of the optional config file, budman.yaml or
// budman.json, searched in the working directory and the user home
// directory.
const ConfigName = "budman"

// Settings holds the resolved runtime configuration
type Settings struct {
	// BudgetFolder is the root of the staging tree
	BudgetFolder string `mapstructure:"budget_folder"`

	// Store is the budget store file, relative to the budget folder
	// unless absolute
	Store string `mapstructure:"store"`

	// CatalogDir holds the category catalogs, relative to the budget
	// folder unless absolute
	CatalogDir string `mapstructure:"catalog_dir"`

	// FI restricts pipeline runs to one institution; empty runs all
	FI string `mapstructure:"fi"`

	// OutputFormat selects the report format: console, json or csv
	OutputFormat string `mapstructure:"output_format"`

	// TopCategories caps histogram rows in console reports
	TopCategories int `mapstructure:"top_categories"`

	// Settle is how long the watcher waits for raw exports to stop
	// changing before running intake
	Settle time.Duration `mapstructure:"settle"`

	// Verbose switches logging to debug level
	Verbose bool `mapstructure:"verbose"`

	// LogFormat selects the log output format: text or json
	LogFormat string `mapstructure:"log_format"`
}

// Defaults returns the built-in settings, rooted in the working directory
func Defaults() *Settings {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Settings{
		BudgetFolder:  cwd,
		Store:         store.DefaultFilename,
		CatalogDir:    "catalogs",
		OutputFormat:  "console",
		TopCategories: 15,
		Settle:        2 * time.Second,
		LogFormat:     "text",
	}
}

// NewViper builds a viper instance with budman's defaults, env binding and
// optional config file. An empty cfgFile searches the standard locations
// and missing config files are not an error; an explicit cfgFile must load.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("budget_folder", defaults.BudgetFolder)
	v.SetDefault("store", defaults.Store)
	v.SetDefault("catalog_dir", defaults.CatalogDir)
	v.SetDefault("fi", "")
	v.SetDefault("output_format", defaults.OutputFormat)
	v.SetDefault("top_categories", defaults.TopCategories)
	v.SetDefault("settle", defaults.Settle)
	v.SetDefault("verbose", false)
	v.SetDefault("log_format", defaults.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "config", cfgFile, err)
		}
		return v, nil
	}

	v.SetConfigName(ConfigName)
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err)
		}
	}

	return v, nil
}

// Load resolves settings from a prepared viper instance
func Load(v *viper.Viper) (*Settings, error) {
	s := Defaults()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settings", v.ConfigFileUsed(), err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the resolved settings
func (s *Settings) Validate() error {
	if s.BudgetFolder == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "budget_folder", "", nil).
			WithSuggestion("set --budget-folder or BUDMAN_BUDGET_FOLDER")
	}
	switch s.OutputFormat {
	case "console", "json", "csv":
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", s.OutputFormat, nil).
			WithSuggestion("use console, json or csv")
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log_format", s.LogFormat, nil).
			WithSuggestion("use text or json")
	}
	if s.Settle < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "settle", s.Settle.String(), nil)
	}
	return nil
}

// StorePath returns the absolute path of the budget store file
func (s *Settings) StorePath() string {
	return s.resolve(s.Store)
}

// CatalogPath returns the absolute path of the catalog directory
func (s *Settings) CatalogPath() string {
	return s.resolve(s.CatalogDir)
}

func (s *Settings) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.BudgetFolder, path)
}

// LogLevel maps the verbose switch to a logger level name
func (s *Settings) LogLevel() string {
	if s.Verbose {
		return "debug"
	}
	return "info"
}
