package search

import (
	"context"
	"encoding/json"
	"log/slog"
)

// IndexAdmin creates indexes and applies their settings.
type IndexAdmin interface {
	CreateIndex(ctx context.Context, uid, primaryKey string) error
	UpdateSettings(ctx context.Context, uid string, settings json.RawMessage) (int64, error)
}

// Bootstrapper makes sure an index exists with the given settings.
type Bootstrapper struct {
	admin IndexAdmin
}

func NewBootstrapper(admin IndexAdmin) *Bootstrapper {
	return &Bootstrapper{admin: admin}
}

// Run creates the index if needed, then overwrites its settings. Running
// it again against an existing index succeeds.
func (b *Bootstrapper) Run(ctx context.Context, s *Settings) error {
	ctx, span := startSpan(ctx, "Bootstrapper.Run", s.IndexUID)
	defer span.End()

	if err := b.admin.CreateIndex(ctx, s.IndexUID, s.PrimaryKey); err != nil {
		if !IsAlreadyExists(err) {
			return fail(span, err)
		}
		slog.InfoContext(ctx, "search index already exists", "index", s.IndexUID)
	} else {
		slog.InfoContext(ctx, "search index created", "index", s.IndexUID, "primary_key", s.PrimaryKey)
	}

	taskUID, err := b.admin.UpdateSettings(ctx, s.IndexUID, s.Index)
	if err != nil {
		return fail(span, err)
	}
	slog.InfoContext(ctx, "search settings applied", "index", s.IndexUID, "task_uid", taskUID)
	return nil
}
