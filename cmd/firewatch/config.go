package main

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	firewatch "github.com/firewatch-dev/firewatch-go"
)

const defaultLogMaxSizeMB = 50

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// effectiveConfig returns cfg with every unset field replaced by the value
// the SDK or CLI falls back to at runtime.
func effectiveConfig(cfg *Config) Config {
	eff := *cfg
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&eff.Server.BaseURL, firewatch.DefaultBaseURL)
	fill(&eff.Server.SnapshotPath, firewatch.DefaultSnapshotPath)
	fill(&eff.Server.StreamPath, firewatch.DefaultStreamPath)
	fill(&eff.Stream.Transport, transportNhooyr)
	fill(&eff.Stream.PingInterval, "15s")
	fill(&eff.Stream.PongTimeout, "5s")
	fill(&eff.Stream.ReconnectBase, "1s")
	fill(&eff.Stream.ReconnectMax, "30s")
	fill(&eff.Log.Level, "info")
	if eff.Log.MaxSizeMB <= 0 {
		eff.Log.MaxSizeMB = defaultLogMaxSizeMB
	}
	return eff
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage firewatch configuration",
	Long:  "View or modify the firewatch CLI configuration stored in ~/.firewatch/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: "Print the configuration the CLI runs with: values from ~/.firewatch/config.toml,\n" +
		"with defaults filled in for anything unset.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		data, err := toml.Marshal(effectiveConfig(cfg))
		if err != nil {
			return fmt.Errorf("cannot render config: %w", err)
		}

		out := cmd.OutOrStdout()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Fprintf(out, "# %s does not exist; showing defaults. Run 'firewatch init <base-url>' to create it.\n", path)
		} else {
			fmt.Fprintf(out, "# %s (unset values shown with their defaults)\n", path)
		}
		_, err = out.Write(data)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: firewatch config set stream.ping_interval 10s",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
		return nil
	},
}
