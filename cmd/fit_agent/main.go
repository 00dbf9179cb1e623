// Package main provides the fit_agent command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jonathan/career-fit/internal/config"
	"github.com/jonathan/career-fit/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "fit_agent",
	Short: "Resume evidence and role-fit scoring",
	Long: "fit_agent chunks and indexes a resume, classifies its evidence into role clusters, " +
		"scores a role-fit distribution and matches it against job descriptions.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var (
	configFile  string
	dataDir     string
	databaseURL string
	apiKey      string
	offline     bool
	verbose     bool
	logLevel    string

	// cfg is the merged configuration for the running command
	cfg config.Config
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to a JSON or TOML config file")
	flags.StringVar(&dataDir, "data-dir", "", "Directory for index files and the local database (default ~/.career-fit)")
	flags.StringVar(&databaseURL, "db-url", "", "PostgreSQL URL or SQLite path (overrides DATABASE_URL)")
	flags.StringVar(&apiKey, "api-key", "", "Gemini API key (overrides GEMINI_API_KEY env var)")
	flags.BoolVar(&offline, "offline", false, "Use the local hashing embedder and keyword extractor")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Print pipeline progress")
	flags.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
}

// loadConfig resolves configuration from file, environment and flags, in increasing precedence.
func loadConfig(cmd *cobra.Command, _ []string) error {
	fileCfg := &config.Config{}
	if configFile != "" {
		loaded, err := config.LoadConfig(configFile)
		if err != nil {
			return err
		}
		fileCfg = loaded
	}
	if err := fileCfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		fileCfg.DataDir = dataDir
	}
	if flags.Changed("db-url") {
		fileCfg.DatabaseURL = databaseURL
	}
	if flags.Changed("api-key") {
		fileCfg.APIKey = apiKey
	}
	if flags.Changed("offline") {
		fileCfg.Offline = offline
	}
	if flags.Changed("verbose") {
		fileCfg.Verbose = verbose
	}
	if flags.Changed("log-level") {
		fileCfg.Log.Level = logLevel
	}

	merged := fileCfg.MergeWithDefaults(config.Defaults())
	if err := merged.Validate(); err != nil {
		return err
	}
	cfg = merged
	logging.Init(cfg.Log)
	log.Debug().Str("data_dir", cfg.DataDir).Bool("oracle", cfg.UseOracle()).Msg("configuration loaded")
	return nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
