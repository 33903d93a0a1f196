package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	firewatch "github.com/firewatch-dev/firewatch-go"
)

const (
	transportNhooyr  = "nhooyr"
	transportGorilla = "gorilla"
)

// newDialer maps a [stream] transport name to a Dialer. Empty selects the
// default.
func newDialer(name string) (firewatch.Dialer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", transportNhooyr:
		return &firewatch.NhooyrDialer{}, nil
	case transportGorilla:
		return &firewatch.GorillaDialer{}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (valid: %s, %s)", name, transportNhooyr, transportGorilla)
	}
}

// newClient creates a firewatch client from the [server] section.
func newClient(cfg *Config, logger zerolog.Logger) *firewatch.Client {
	opts := []firewatch.ClientOption{firewatch.WithLogger(logger)}
	if cfg.Server.SnapshotPath != "" {
		opts = append(opts, firewatch.WithSnapshotPath(cfg.Server.SnapshotPath))
	}
	if cfg.Server.StreamPath != "" {
		opts = append(opts, firewatch.WithStreamPath(cfg.Server.StreamPath))
	}
	return firewatch.NewClient(cfg.Server.BaseURL, opts...)
}

// streamConfig builds a StreamConfig from the [stream] section. Unset
// durations keep the SDK defaults.
func streamConfig(cfg *Config) (*firewatch.StreamConfig, error) {
	dialer, err := newDialer(cfg.Stream.Transport)
	if err != nil {
		return nil, err
	}
	sc := &firewatch.StreamConfig{Dialer: dialer}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"stream.ping_interval", cfg.Stream.PingInterval, &sc.PingInterval},
		{"stream.pong_timeout", cfg.Stream.PongTimeout, &sc.PongTimeout},
		{"stream.reconnect_base", cfg.Stream.ReconnectBase, &sc.ReconnectBaseDelay},
		{"stream.reconnect_max", cfg.Stream.ReconnectMax, &sc.ReconnectMaxDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("%s must be positive", d.key)
		}
		*d.dst = v
	}
	return sc, nil
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
