package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/log"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and persist quill configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to a config file",
	Long: `Writes the currently effective configuration (defaults, config file,
environment, and flags merged) to the config file, creating it when missing.
Comments and unknown keys in an existing file are preserved.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = ".quill/config.yaml"
		}

		if err := config.Save(path, cfg); err != nil {
			return err
		}
		logger.Info(log.CatConfig, "configuration written", "path", path)
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
