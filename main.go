// Package main provides the entry point for the pmocast CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stratalign/pmocast/internal/audio"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "pmocast",
		Short: "Listen to the PMO Toolkit podcast in your terminal",
		Long: paragraph(
			fmt.Sprintf("\nListen to the %s in your terminal. Episodes are narrated by two hosts and streamed segment by segment while they are generated.", keyword("PMO Toolkit podcast")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// config creates a missing file itself
			if _, err := os.Stat(configFile); err == nil && cmd.Flags().Changed("config") {
				viper.SetConfigFile(configFile)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("unable to read config file: %w", err)
				}
			}
			return validateOptions()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

func validateOptions() error {
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if err := audio.ValidateRate(viper.GetFloat64("playback.rate")); err != nil {
		return fmt.Errorf("playback.rate: %w", err)
	}
	volume := viper.GetFloat64("playback.volume")
	if volume < 0 || volume > 1 {
		return fmt.Errorf("playback.volume must be between 0.0 and 1.0, got %.2f", volume)
	}
	if level := viper.GetInt("cache.compression_level"); level < 1 || level > 22 {
		return fmt.Errorf("cache.compression_level must be between 1 and 22, got %d", level)
	}
	if rpm := viper.GetInt("speech.requests_per_minute"); rpm < 1 {
		return fmt.Errorf("speech.requests_per_minute must be positive, got %d", rpm)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	// A .env file in the working directory may carry the backend URL and
	// keys for the dev source; it never overrides the real environment.
	_ = godotenv.Load()

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug output to the log file")
	rootCmd.PersistentFlags().String("server", "", "narration backend base URL")
	rootCmd.PersistentFlags().String("library", "", "episode library file")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("library.path", rootCmd.PersistentFlags().Lookup("library"))

	setDefaults()

	rootCmd.AddCommand(playCmd, listCmd, sayCmd, downloadCmd, devsourceCmd, configCmd, manCmd)
}

func setDefaults() {
	viper.SetDefault("server.base_url", "http://localhost:8787")
	viper.SetDefault("server.timeout", "30s")

	viper.SetDefault("playback.rate", 1.0)
	viper.SetDefault("playback.volume", 1.0)
	viper.SetDefault("playback.greeting", "")

	viper.SetDefault("cache.namespace", "pmo-podcast-")
	viper.SetDefault("cache.memory_capacity", 64*1024*1024)
	viper.SetDefault("cache.disk", true)
	viper.SetDefault("cache.compression_level", 3)

	viper.SetDefault("library.path", "")
	viper.SetDefault("state.dir", "")
	viper.SetDefault("speech.requests_per_minute", 50)
	viper.SetDefault("mediasession.enabled", true)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "pmocast")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "pmocast")}, dirs...)
	}

	if c := os.Getenv("PMOCAST_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("pmocast")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("pmocast")
	// playback.rate is read from PMOCAST_PLAYBACK_RATE
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "pmocast.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
