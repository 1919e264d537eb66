package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	apiURL    string
	tokenFile string
	dbPath    string
	redisURL  string
	logLevel  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "radcase",
	Short: "Terminal-first radiology teaching case review console",
	Long: `Radcase is a terminal client for radiology teaching case review sessions.
It drives a remote case/report store, keeps report drafts autosaved while you
type, and steps through series and image instances from the keyboard.

Features:
- Full review session TUI (report editor, series browser, image viewport)
- Debounced draft autosave with submit and attending-feedback flow
- Redis pub/sub feedback notifications with polling fallback
- Local SQLite journal of draft snapshots and recent cases
- Folder-based DICOM upload with optional watch mode`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.radcase.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8000", "Case store API base URL")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "credentials file (default is $HOME/.radcase/credentials.json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/radcase.db", "SQLite journal database path")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL for feedback notifications (empty disables)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("api.token_file", rootCmd.PersistentFlags().Lookup("token-file"))
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".radcase" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".radcase")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("api.base_url", "http://localhost:8000")
	viper.SetDefault("api.token_file", "")
	viper.SetDefault("database.path", "./data/radcase.db")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("autosave.debounce_ms", 2000)
	viper.SetDefault("feedback.poll_interval_ms", 15000)
	viper.SetDefault("upload.patterns", []string{"*.dcm", "*.dicom"})
	viper.SetDefault("upload.settle_ms", 2000)
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:   viper.GetString("api.base_url"),
			TokenFile: viper.GetString("api.token_file"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Autosave: AutosaveConfig{
			Debounce: time.Duration(viper.GetInt("autosave.debounce_ms")) * time.Millisecond,
		},
		Feedback: FeedbackConfig{
			PollInterval: time.Duration(viper.GetInt("feedback.poll_interval_ms")) * time.Millisecond,
		},
		Upload: UploadConfig{
			Patterns: viper.GetStringSlice("upload.patterns"),
			Settle:   time.Duration(viper.GetInt("upload.settle_ms")) * time.Millisecond,
		},
	}
}

// Config represents the application configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Autosave AutosaveConfig `mapstructure:"autosave"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

type APIConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TokenFile string `mapstructure:"token_file"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AutosaveConfig struct {
	Debounce time.Duration `mapstructure:"debounce_ms"`
}

type FeedbackConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval_ms"`
}

type UploadConfig struct {
	Patterns []string      `mapstructure:"patterns"`
	Settle   time.Duration `mapstructure:"settle_ms"`
}
