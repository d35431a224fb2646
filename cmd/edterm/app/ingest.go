package app

import (
	"context"
	"errors"
	"log/slog"

	"edterm.com/edterm/internal/catalog"
	"edterm.com/edterm/internal/config"
	"edterm.com/edterm/internal/ingest"
)

// RunIngest loads the CSV at path, writes it to the database and
// publishes the search view.
func RunIngest(ctx context.Context, cfg *config.Config, path string, opts ingest.Options) error {
	cat, err := catalog.NewForConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	p, err := cat.Ingester(opts)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "ingesting courses", "path", path, "atomic", opts.Atomic)
	res, err := p.Run(ctx, path)
	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		for _, re := range verr.Records {
			for _, fe := range re.Fields {
				slog.ErrorContext(ctx, "invalid row",
					"line", re.Line, "field", fe.Field, "value", fe.Value, "reason", fe.Reason)
			}
		}
	}
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "ingestion complete",
		"rows_read", res.RowsRead,
		"rows_ingested", res.RowsIngested,
		"rows_skipped", res.RowsSkipped,
		"warnings", len(res.Warnings),
		"documents", res.Documents,
		"task_uid", res.TaskUID,
	)
	return nil
}
