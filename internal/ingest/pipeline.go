package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"edterm.com/edterm/internal/config"
	"edterm.com/edterm/internal/database"
	"edterm.com/edterm/internal/search"
)

// Publisher pushes the search view to the index once a run has written
// every row.
type Publisher interface {
	Sync(ctx context.Context) (*search.SyncResult, error)
}

type Options struct {
	// AffiliateMode is config.AffiliateLinkAppend or config.AffiliateLinkUpsert.
	AffiliateMode string
	// Atomic runs the whole batch in a single transaction.
	Atomic bool
	// SkipInvalid ingests the valid rows of a file that has invalid ones.
	SkipInvalid bool
	// Strict rejects rows whose field count differs from the header.
	Strict bool
}

type Result struct {
	RowsRead     int
	RowsIngested int
	RowsSkipped  int
	Invalid      []*RecordError
	Warnings     []RowWarning
	Documents    int
	TaskUID      int64
}

type Pipeline struct {
	store     Store
	publisher Publisher
	opts      Options
}

func New(store Store, publisher Publisher, opts Options) *Pipeline {
	if opts.AffiliateMode == "" {
		opts.AffiliateMode = config.AffiliateLinkAppend
	}
	return &Pipeline{store: store, publisher: publisher, opts: opts}
}

// Run ingests the CSV file at path: every row is validated first, then
// written in file order, then the search view is published exactly once.
// Provider and course write failures abort the run; category and affiliate
// link failures are recorded as row warnings.
func (p *Pipeline) Run(ctx context.Context, path string) (*Result, error) {
	ctx, span := otel.Tracer("edterm/ingest").Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("path", path), attribute.Bool("atomic", p.opts.Atomic))

	res := &Result{}
	err := p.run(ctx, path, res)
	span.SetAttributes(
		attribute.Int("rows_read", res.RowsRead),
		attribute.Int("rows_ingested", res.RowsIngested),
		attribute.Int("warnings", len(res.Warnings)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, path string, res *Result) error {
	rows, err := ReadRows(path, p.opts.Strict)
	if err != nil {
		return err
	}
	res.RowsRead = len(rows)

	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := ParseRecord(row)
		var re *RecordError
		if errors.As(err, &re) {
			res.Invalid = append(res.Invalid, re)
			continue
		}
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if len(res.Invalid) > 0 {
		if !p.opts.SkipInvalid {
			return &ValidationError{Records: res.Invalid}
		}
		res.RowsSkipped = len(res.Invalid)
		for _, re := range res.Invalid {
			slog.WarnContext(ctx, "skipping invalid row", "line", re.Line, "error", re)
		}
	}

	write := func(s Store) error {
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			warnings, err := p.ingestRecord(ctx, s, rec)
			if err != nil {
				return err
			}
			res.RowsIngested++
			res.Warnings = append(res.Warnings, warnings...)
		}
		return nil
	}
	if p.opts.Atomic {
		err = p.store.InTx(ctx, write)
		if err != nil {
			res.RowsIngested = 0
		}
	} else {
		err = write(p.store)
	}
	if err != nil {
		return err
	}

	if p.publisher == nil {
		slog.WarnContext(ctx, "no search publisher configured, skipping sync")
		return nil
	}
	sr, err := p.publisher.Sync(ctx)
	if err != nil {
		return fmt.Errorf("search sync failed: %w", err)
	}
	res.Documents = sr.Documents
	res.TaskUID = sr.TaskUID
	return nil
}

// ingestRecord writes one record inside its own transaction and returns
// the row's warnings. Warnings are discarded when the row fails.
func (p *Pipeline) ingestRecord(ctx context.Context, s Store, rec *Record) ([]RowWarning, error) {
	var warnings []RowWarning
	warn := func(msg string, err error) {
		w := RowWarning{Line: rec.Line, Message: msg, Err: err}
		slog.WarnContext(ctx, "row warning", "line", w.Line, "warning", w.Message, "error", err)
		warnings = append(warnings, w)
	}

	err := s.InTx(ctx, func(tx Store) error {
		providerID, err := tx.UpsertProvider(ctx, database.UpsertProviderArgs{
			Slug:       rec.ProviderSlug,
			Name:       rec.ProviderName,
			WebsiteURL: rec.ProviderURL,
		})
		if err == nil && providerID == uuid.Nil {
			err = ErrNoIdentifier
		}
		if err != nil {
			return &StoreWriteError{Line: rec.Line, Entity: "provider", Key: rec.ProviderSlug, Err: err}
		}

		courseID, err := tx.UpsertCourse(ctx, rec.CourseArgs(providerID))
		if err == nil && courseID == uuid.Nil {
			err = ErrNoIdentifier
		}
		if err != nil {
			return &StoreWriteError{Line: rec.Line, Entity: "course", Key: rec.ProviderSlug + "/" + rec.ExternalID, Err: err}
		}

		for _, name := range rec.Categories {
			slug := Slugify(name)
			if slug == "" {
				warn(fmt.Sprintf("category %q has an empty slug, skipped", name), nil)
				continue
			}
			err := tx.InTx(ctx, func(sp Store) error {
				categoryID, err := sp.UpsertCategory(ctx, database.UpsertCategoryArgs{Slug: slug, Name: name})
				if err == nil && categoryID == uuid.Nil {
					err = ErrNoIdentifier
				}
				if err != nil {
					return err
				}
				return sp.UpsertCourseCategory(ctx, courseID, categoryID)
			})
			if err != nil {
				warn(fmt.Sprintf("category %q not linked", slug), err)
			}
		}

		if rec.AffiliateURL != "" {
			link := database.AffiliateLinkArgs{CourseID: courseID, Network: rec.AffiliateNetwork, AffiliateURL: rec.AffiliateURL}
			err := tx.InTx(ctx, func(sp Store) error {
				var err error
				if p.opts.AffiliateMode == config.AffiliateLinkUpsert {
					_, err = sp.UpsertAffiliateLink(ctx, link)
				} else {
					_, err = sp.InsertAffiliateLink(ctx, link)
				}
				return err
			})
			if err != nil {
				warn("affiliate link not written", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "row ingested", "line", rec.Line, "provider", rec.ProviderSlug, "external_id", rec.ExternalID)
	return warnings, nil
}
