package cli

import (
	"fmt"
	"os"

	"github.com/deepnoodle-ai/phoenix/config"
	"github.com/deepnoodle-ai/phoenix/slogger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	storeType  string
	storePath  string
)

var rootCmd = &cobra.Command{
	Use:   "phoenix",
	Short: "Phoenix runs task plans with bounded recovery and durable restarts",
	Long: "Phoenix executes ordered task plans, classifies failures, and recovers\n" +
		"through retries, self-healing, recursive sub-planning, or a durable\n" +
		"checkpoint followed by a supervised process restart.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(errorStyle.Sprint(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&storeType, "store", "", "Checkpoint store type (memory, file, sqlite)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "Checkpoint store directory or database file")
}

// loadConfig builds the effective configuration from the config file plus
// command line overrides.
func loadConfig() (*config.Config, error) {
	conf := config.Default()
	if configPath != "" {
		parsed, err := config.ParseFile(configPath)
		if err != nil {
			return nil, err
		}
		conf = parsed
	}
	if logLevel != "" {
		conf.LogLevel = logLevel
	}
	if storeType != "" {
		conf.Store.Type = storeType
	}
	if storePath != "" {
		conf.Store.Path = storePath
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func getLogger(conf *config.Config) slogger.Logger {
	return slogger.New(slogger.LevelFromString(conf.LogLevel))
}
