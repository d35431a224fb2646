package search

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"edterm.com/edterm/internal/database"
)

// DefaultPrimaryKey is the document field used as the index primary key.
const DefaultPrimaryKey = "id"

// ViewSource yields the full denormalized course projection.
type ViewSource interface {
	ListSearchCourses(ctx context.Context) ([]database.SearchCourse, error)
}

// DocumentIndex accepts document batches.
type DocumentIndex interface {
	AddDocuments(ctx context.Context, uid string, docs any, primaryKey string) (int64, error)
}

type SyncResult struct {
	Index     string
	Documents int
	TaskUID   int64
}

// Syncer republishes the whole search view into one index. It never
// removes documents.
type Syncer struct {
	src   ViewSource
	idx   DocumentIndex
	index string
}

func NewSyncer(src ViewSource, idx DocumentIndex, index string) *Syncer {
	return &Syncer{src: src, idx: idx, index: index}
}

// Sync sends every row of the view in a single AddDocuments call, even
// when the view is empty.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	ctx, span := startSpan(ctx, "Syncer.Sync", s.index)
	defer span.End()

	docs, err := s.src.ListSearchCourses(ctx)
	if err != nil {
		return nil, fail(span, &IndexError{Op: "select view", Index: s.index, Err: err})
	}
	if docs == nil {
		docs = []database.SearchCourse{}
	}
	span.SetAttributes(attribute.Int("documents", len(docs)))

	taskUID, err := s.idx.AddDocuments(ctx, s.index, docs, DefaultPrimaryKey)
	if err != nil {
		return nil, fail(span, err)
	}
	slog.InfoContext(ctx, "search sync enqueued", "index", s.index, "documents", len(docs), "task_uid", taskUID)
	return &SyncResult{Index: s.index, Documents: len(docs), TaskUID: taskUID}, nil
}
