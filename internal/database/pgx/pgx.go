package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"edterm.com/edterm/internal/config"
)

// NewClientForConfig creates a pgxpool.Pool using DSN information from cfg.
// Only postgres:// and postgresql:// DSNs are accepted.
func NewClientForConfig(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsnURL, err := cfg.GetDsn()
	if err != nil {
		return nil, err
	}
	if dsnURL.Scheme != "postgres" && dsnURL.Scheme != "postgresql" {
		return nil, fmt.Errorf("unsupported DSN scheme %q", dsnURL.Scheme)
	}
	poolCfg, err := pgxpool.ParseConfig(dsnURL.String())
	if err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}
	pg, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pg, nil
}
