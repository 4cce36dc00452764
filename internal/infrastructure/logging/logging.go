package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Service    string
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Console defaults to stdout.
	Console    io.Writer
}

// Init installs the default slog logger writing to the console and, when File is
// set, to a size-rotated file. The returned writer is nil without a file.
func Init(cfg Config) (*RotatingWriter, error) {
	level := parseLevel(cfg.Level)
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	writers := []io.Writer{console}

	var rotating *RotatingWriter
	if strings.TrimSpace(cfg.File) != "" {
		writer, err := NewRotatingWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
		if err != nil {
			return nil, err
		}
		rotating = writer
		writers = append(writers, writer)
	}

	handler := newHandler(io.MultiWriter(writers...), cfg.Format, level)
	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	slog.SetDefault(logger)

	stdLogger := slog.NewLogLogger(logger.Handler(), level)
	log.SetFlags(0)
	log.SetOutput(stdLogger.Writer())

	return rotating, nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
