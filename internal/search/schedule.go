package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// SyncRunner performs one full sync.
type SyncRunner interface {
	Sync(ctx context.Context) (*SyncResult, error)
}

// Scheduler runs a sync immediately and then on every tick of a cron
// schedule until its context is cancelled. Tick failures are logged only.
type Scheduler struct {
	cron   *cron.Cron
	syncer SyncRunner
}

func NewScheduler(syncer SyncRunner) *Scheduler {
	return &Scheduler{cron: cron.New(), syncer: syncer}
}

// Run blocks until ctx is done. spec accepts five-field cron expressions
// and descriptors such as "@hourly" or "@every 15m".
func (s *Scheduler) Run(ctx context.Context, spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	s.tick(ctx)

	s.cron.Start()
	slog.InfoContext(ctx, "sync scheduler started", "schedule", spec)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.InfoContext(ctx, "sync scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.syncer.Sync(ctx); err != nil {
		slog.ErrorContext(ctx, "scheduled search sync failed", "error", err)
	}
}
