package main

import (
	"fmt"

	"github.com/spf13/cobra"

	firewatch "github.com/firewatch-dev/firewatch-go"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <base-url>",
	Short: "Store the API base URL in ~/.firewatch/config.toml",
	Long:  "Initialize the firewatch CLI by storing the watch API base URL in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL := args[0]
		if _, err := firewatch.NewClient(baseURL).StreamURL(); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Server.BaseURL = baseURL
		if cfg.Stream.Transport == "" {
			cfg.Stream.Transport = transportNhooyr
		}
		if cfg.Log.Level == "" {
			cfg.Log.Level = "info"
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Fprintf(cmd.OutOrStdout(), "Base URL saved to %s\n", path)
		return nil
	},
}
