package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	firewatch "github.com/firewatch-dev/firewatch-go"
)

var (
	watchListen string
	watchPrint  bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchListen, "listen", "", "Serve the synced document and /metrics on this address (overrides serve.listen)")
	watchCmd.Flags().BoolVar(&watchPrint, "print", false, "Print every areas document to stdout")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live stream",
	Long: "Keep a local copy of the watched areas in sync over the websocket stream.\n" +
		"Reconnects with exponential backoff until interrupted.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, closeLog := newLogger(cfg.Log, cmd.ErrOrStderr())
		defer closeLog()

		streamCfg, err := streamConfig(cfg)
		if err != nil {
			return err
		}
		listen := valueOrDefault(watchListen, cfg.Serve.Listen)
		if listen != "" {
			streamCfg.Registerer = prometheus.DefaultRegisterer
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stream := newClient(cfg, logger).Stream(streamCfg)
		stream.OnStateChange(func(from, to firewatch.ConnectionState) {
			logger.Debug().Stringer("from", from).Stringer("to", to).Msg("state")
		})
		stream.OnReconnecting(func(attempt int, delay time.Duration) {
			logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
		})
		stream.OnHeartbeatTimeout(func() {
			logger.Warn().Msg("heartbeat timeout")
		})

		out := cmd.OutOrStdout()
		err = stream.Start(ctx, func(s firewatch.Snapshot) {
			logger.Info().
				Uint64("revision", s.Revision).
				Str("kind", string(s.Kind)).
				Int("bytes", len(s.Areas)).
				Float64("wind_speed", s.Wind.Speed).
				Float64("wind_direction", s.Wind.Direction).
				Msg("update")
			if watchPrint && s.Kind != firewatch.UpdateWind {
				fmt.Fprintln(out, string(s.Areas))
			}
		})
		if err != nil {
			return err
		}
		defer stream.Stop()

		var srv *http.Server
		if listen != "" {
			r := chi.NewRouter()
			r.Handle("/metrics", promhttp.Handler())
			r.Mount("/watch", firewatch.Handler(stream))
			srv = &http.Server{Addr: listen, Handler: r, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				logger.Info().Str("addr", listen).Msg("serving")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("server failed")
					stop()
				}
			}()
		}

		select {
		case <-ctx.Done():
		case <-stream.Done():
		}
		logger.Info().Msg("shutting down")

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	},
}
