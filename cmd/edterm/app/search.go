package app

import (
	"context"
	"log/slog"

	"edterm.com/edterm/internal/catalog"
	"edterm.com/edterm/internal/config"
	"edterm.com/edterm/internal/search"
)

// RunSync republishes the search view once, or on every tick of schedule
// until ctx is cancelled when schedule is set.
func RunSync(ctx context.Context, cfg *config.Config, schedule string) error {
	cat, err := catalog.NewForConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	syncer, err := cat.Syncer()
	if err != nil {
		return err
	}
	if schedule != "" {
		return search.NewScheduler(syncer).Run(ctx, schedule)
	}

	res, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "search sync complete",
		"index", res.Index, "documents", res.Documents, "task_uid", res.TaskUID)
	return nil
}

// RunSearchInit creates the search index described by the settings file
// and applies its settings. It only talks to the search server.
func RunSearchInit(ctx context.Context, cfg *config.Config, settingsFile string) error {
	settings, err := search.LoadSettings(settingsFile)
	if err != nil {
		return err
	}

	sc, err := search.NewForConfig(cfg)
	if err != nil {
		return err
	}
	if err := search.NewBootstrapper(sc).Run(ctx, settings); err != nil {
		return err
	}
	slog.InfoContext(ctx, "search index ready", "index", settings.IndexUID, "settings", settingsFile)
	return nil
}
