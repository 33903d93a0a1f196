package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and API reachability",
	Long:  "Display the current configuration and probe the snapshot endpoint of the configured server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out := cmd.OutOrStdout()

		client := newClient(cfg, zerolog.Nop())
		snapshotURL, _ := client.SnapshotURL()
		streamURL, _ := client.StreamURL()

		eff := effectiveConfig(cfg)
		fmt.Fprintln(out, "Configuration:")
		fmt.Fprintf(out, "  Base URL:      %s\n", valueOrDefault(cfg.Server.BaseURL, "(not set, using "+client.BaseURL()+")"))
		fmt.Fprintf(out, "  Snapshot:      %s\n", snapshotURL)
		fmt.Fprintf(out, "  Stream:        %s\n", streamURL)
		fmt.Fprintf(out, "  Transport:     %s\n", eff.Stream.Transport)
		fmt.Fprintf(out, "  Ping interval: %s\n", eff.Stream.PingInterval)
		fmt.Fprintf(out, "  Pong timeout:  %s\n", eff.Stream.PongTimeout)
		fmt.Fprintf(out, "  Log level:     %s\n", eff.Log.Level)
		if cfg.Log.File != "" {
			fmt.Fprintf(out, "  Log file:      %s\n", cfg.Log.File)
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Live status:")

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		start := time.Now()
		doc, err := client.Snapshot(ctx)
		if err != nil {
			fmt.Fprintf(out, "  Snapshot:      unavailable (%v)\n", err)
			return nil
		}
		fmt.Fprintf(out, "  Snapshot:      ok, %d bytes in %s\n", len(doc), time.Since(start).Round(time.Millisecond))
		return nil
	},
}
