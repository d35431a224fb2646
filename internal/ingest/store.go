package ingest

import (
	"context"

	"github.com/google/uuid"

	"edterm.com/edterm/internal/database"
)

// Store is the subset of the record store the pipeline writes to.
// InTx must give fn a Store bound to a transaction (or a savepoint when the
// receiver is already transactional).
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error
	UpsertProvider(ctx context.Context, args database.UpsertProviderArgs) (uuid.UUID, error)
	UpsertCourse(ctx context.Context, args database.CourseArgs) (uuid.UUID, error)
	UpsertCategory(ctx context.Context, args database.UpsertCategoryArgs) (uuid.UUID, error)
	UpsertCourseCategory(ctx context.Context, courseID, categoryID uuid.UUID) error
	InsertAffiliateLink(ctx context.Context, args database.AffiliateLinkArgs) (uuid.UUID, error)
	UpsertAffiliateLink(ctx context.Context, args database.AffiliateLinkArgs) (uuid.UUID, error)
}

type databaseStore struct {
	*database.Database
}

// NewDatabaseStore adapts a *database.Database to Store.
func NewDatabaseStore(db *database.Database) Store {
	return databaseStore{Database: db}
}

func (s databaseStore) InTx(ctx context.Context, fn func(Store) error) error {
	return s.Database.InTx(ctx, func(tx *database.Database) error {
		return fn(databaseStore{Database: tx})
	})
}
