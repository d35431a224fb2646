package app

import (
	"context"
	"log/slog"

	cataloghttp "edterm.com/edterm/internal/catalog/http"
	"edterm.com/edterm/internal/config"
)

// RunServer serves the catalog API on addr until ctx is cancelled.
func RunServer(ctx context.Context, cfg *config.Config, addr string) error {
	srv, err := cataloghttp.NewServerForConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
