package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.firewatch/config.toml.
type Config struct {
	Server ConfigServer `toml:"server"`
	Stream ConfigStream `toml:"stream"`
	Log    ConfigLog    `toml:"log"`
	Serve  ConfigServe  `toml:"serve"`
}

// ConfigServer locates the watch API.
type ConfigServer struct {
	BaseURL      string `toml:"base_url"`
	SnapshotPath string `toml:"snapshot_path"`
	StreamPath   string `toml:"stream_path"`
}

// ConfigStream tunes the stream client. Durations use Go syntax ("15s").
type ConfigStream struct {
	Transport     string `toml:"transport"`
	PingInterval  string `toml:"ping_interval"`
	PongTimeout   string `toml:"pong_timeout"`
	ReconnectBase string `toml:"reconnect_base"`
	ReconnectMax  string `toml:"reconnect_max"`
}

type ConfigLog struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
}

type ConfigServe struct {
	Listen string `toml:"listen"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.firewatch, creating it if needed.
// FIREWATCH_CONFIG_DIR overrides the location.
func configDir() (string, error) {
	dir := os.Getenv("FIREWATCH_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".firewatch")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns a zero-value Config.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "server.base_url").
// Duration and number fields are validated before they are stored.
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. server.base_url)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "server":
		switch field {
		case "base_url":
			cfg.Server.BaseURL = value
		case "snapshot_path":
			cfg.Server.SnapshotPath = value
		case "stream_path":
			cfg.Server.StreamPath = value
		default:
			return fmt.Errorf("unknown field %q in section [server]", field)
		}
	case "stream":
		if field == "transport" {
			if _, err := newDialer(value); err != nil {
				return err
			}
			cfg.Stream.Transport = value
			return nil
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		switch field {
		case "ping_interval":
			cfg.Stream.PingInterval = value
		case "pong_timeout":
			cfg.Stream.PongTimeout = value
		case "reconnect_base":
			cfg.Stream.ReconnectBase = value
		case "reconnect_max":
			cfg.Stream.ReconnectMax = value
		default:
			return fmt.Errorf("unknown field %q in section [stream]", field)
		}
	case "log":
		switch field {
		case "level":
			if _, ok := parseLevel(value); !ok {
				return fmt.Errorf("unknown log level %q", value)
			}
			cfg.Log.Level = value
		case "file":
			cfg.Log.File = value
		case "max_size_mb":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("%s must be a non-negative integer", key)
			}
			cfg.Log.MaxSizeMB = n
		default:
			return fmt.Errorf("unknown field %q in section [log]", field)
		}
	case "serve":
		switch field {
		case "listen":
			cfg.Serve.Listen = value
		default:
			return fmt.Errorf("unknown field %q in section [serve]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: server, stream, log, serve)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var rootCmd = &cobra.Command{
	Use:          "firewatch",
	Short:        "Wildfire watch CLI",
	Long:         "Command-line interface for the wildfire watch API.\nFetch snapshots, follow the live stream, and manage configuration.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
