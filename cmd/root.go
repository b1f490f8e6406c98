// Package cmd wires the quill command-line interface.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/log"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
	logger  = log.Nop()
)

var rootCmd = &cobra.Command{
	Use:     "quill",
	Short:   "Ask an external AI CLI tool to transform document text",
	Long: `quill sends a piece of document text to an external AI CLI tool
(claude in print mode by default) and writes the answer back into the
document below a visible separator, without blocking on the tool.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.Debug || os.Getenv("QUILL_DEBUG") != "" {
			l, err := log.New(cfg.LogPath)
			if err != nil {
				return err
			}
			logger = l
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .quill/config.yaml, then ~/.config/quill/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false,
		"write a debug log")
	rootCmd.PersistentFlags().String("binary", "",
		"external AI CLI binary to invoke")
	rootCmd.PersistentFlags().String("model", "",
		"model passed through to the tool")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("binary", rootCmd.PersistentFlags().Lookup("binary"))
	_ = viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("binary", defaults.Binary)
	viper.SetDefault("timeout_seconds", defaults.TimeoutSeconds)
	viper.SetDefault("auto_timeout", defaults.AutoTimeout)
	viper.SetDefault("queue_max", defaults.QueueMax)
	viper.SetDefault("orphan_retention_hours", defaults.OrphanRetentionHours)
	viper.SetDefault("marker.scan_window", defaults.Marker.ScanWindow)
	viper.SetDefault("marker.max_block_lines", defaults.Marker.MaxBlockLines)
	viper.SetDefault("marker.separator", defaults.Marker.Separator)
	viper.SetDefault("log_path", defaults.LogPath)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .quill/config.yaml (current directory)
		// 2. ~/.config/quill/config.yaml (user config)
		if _, err := os.Stat(".quill/config.yaml"); err == nil {
			viper.SetConfigFile(".quill/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "quill"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("QUILL")
	viper.AutomaticEnv()

	// Missing config file is fine, the defaults stand
	_ = viper.ReadInConfig()
	_ = viper.Unmarshal(&cfg)
}
