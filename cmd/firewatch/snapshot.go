package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	snapshotPretty bool
	snapshotOutput string
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().BoolVar(&snapshotPretty, "pretty", false, "Indent the document")
	snapshotCmd.Flags().StringVarP(&snapshotOutput, "output", "o", "", "Write the document to a file instead of stdout")
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch the current areas document",
	Long:  "Fetch the point-in-time areas document from the snapshot endpoint and print it.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, closeLog := newLogger(cfg.Log, cmd.ErrOrStderr())
		defer closeLog()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		doc, err := newClient(cfg, logger).Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}

		data := []byte(doc)
		if snapshotPretty {
			var buf bytes.Buffer
			if err := json.Indent(&buf, doc, "", "  "); err != nil {
				return fmt.Errorf("cannot indent document: %w", err)
			}
			data = buf.Bytes()
		}
		data = append(data, '\n')

		if snapshotOutput != "" {
			if err := os.WriteFile(snapshotOutput, data, 0o644); err != nil {
				return fmt.Errorf("cannot write %s: %w", snapshotOutput, err)
			}
			logger.Info().Str("file", snapshotOutput).Int("bytes", len(doc)).Msg("snapshot saved")
			return nil
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
