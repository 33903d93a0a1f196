package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const envLogLevel = "FIREWATCH_LOG_LEVEL"

// newLogger builds the CLI logger: a console writer on stderr, or JSON lines
// to a rotating file when log.file is set. FIREWATCH_LOG_LEVEL wins over
// log.level.
func newLogger(cfg ConfigLog, stderr io.Writer) (zerolog.Logger, func()) {
	level, ok := parseLevel(os.Getenv(envLogLevel))
	if !ok {
		level, _ = parseLevel(cfg.Level)
	}

	out := io.Writer(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen})
	closeFn := func() {}
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = defaultLogMaxSizeMB
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		out = rotator
		closeFn = func() { _ = rotator.Close() }
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closeFn
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
