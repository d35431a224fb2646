package config

import (
	"io"
	"log/slog"
	"os"
)

// SetupLog installs the default slog logger. The level tracks LOG_LEVEL
// for the life of the process and LOG_FORMAT picks the handler.
func SetupLog(cfg *Config) *slog.LevelVar {
	return setupLog(cfg, os.Stderr)
}

func setupLog(cfg *Config, w io.Writer) *slog.LevelVar {
	lv := new(slog.LevelVar)
	cfg.OnLogLevelChange(lv.Set)

	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	switch cfg.GetLogFormat() {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h).With("service", cfg.GetServiceName()))
	return lv
}
