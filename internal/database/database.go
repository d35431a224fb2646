package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"edterm.com/edterm/internal/config"
	dbpgx "edterm.com/edterm/internal/database/pgx"
)

// ErrNotAvailable is returned by every method of a Database built without a pool.
var ErrNotAvailable = errors.New("database connection not available")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Database struct {
	pg *pgxpool.Pool
	q  querier
}

// NewForConfig constructs a Database using the provided config.
func NewForConfig(ctx context.Context, cfg *config.Config) (*Database, error) {
	pg, err := dbpgx.NewClientForConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(pg), nil
}

// NewClient constructs a Database using the provided pgx pool.
func NewClient(pg *pgxpool.Pool) *Database {
	db := &Database{pg: pg}
	if pg != nil {
		db.q = pg
	}
	return db
}

// Pool returns the underlying pool, nil when not connected.
func (db *Database) Pool() *pgxpool.Pool { return db.pg }

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("edterm/database").Start(ctx, name)
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Ping verifies the provided database connection is available
func (db *Database) Ping(ctx context.Context) error {
	ctx, span := startSpan(ctx, "Database.Ping")
	defer span.End()
	if db.pg == nil {
		return ErrNotAvailable
	}
	return db.pg.Ping(ctx)
}

func (db *Database) Close() error {
	if db.pg == nil {
		return nil
	}
	db.pg.Close()
	return nil
}

// InTx runs fn against a Database bound to a new transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calling
// InTx on a transaction-bound Database opens a savepoint.
func (db *Database) InTx(ctx context.Context, fn func(*Database) error) error {
	ctx, span := startSpan(ctx, "Database.InTx")
	defer span.End()
	if db.q == nil {
		return ErrNotAvailable
	}
	err := pgx.BeginFunc(ctx, db.q, func(tx pgx.Tx) error {
		return fn(&Database{pg: db.pg, q: tx})
	})
	if err != nil {
		fail(span, err)
		return err
	}
	return nil
}

// returningID runs an INSERT .. RETURNING id statement.
func (db *Database) returningID(ctx context.Context, span trace.Span, what, query string, args ...any) (uuid.UUID, error) {
	if db.q == nil {
		return uuid.Nil, ErrNotAvailable
	}
	var id uuid.UUID
	if err := db.q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		fail(span, err)
		return uuid.Nil, fmt.Errorf("%s failed: %w", what, err)
	}
	return id, nil
}

// UpsertProvider upserts a provider keyed on slug and returns its id.
func (db *Database) UpsertProvider(ctx context.Context, args UpsertProviderArgs) (uuid.UUID, error) {
	ctx, span := startSpan(ctx, "Database.UpsertProvider")
	span.SetAttributes(attribute.String("slug", args.Slug))
	defer span.End()
	return db.returningID(ctx, span, "upsert provider", UpsertProviderQuery, args.Slug, args.Name, args.WebsiteURL)
}

// UpsertCourse upserts a course keyed on (provider_id, external_id) and
// returns its id. Every non-key column is overwritten.
func (db *Database) UpsertCourse(ctx context.Context, args CourseArgs) (uuid.UUID, error) {
	ctx, span := startSpan(ctx, "Database.UpsertCourse")
	span.SetAttributes(
		attribute.String("provider_id", args.ProviderID.String()),
		attribute.String("external_id", args.ExternalID),
	)
	defer span.End()
	return db.returningID(ctx, span, "upsert course", UpsertCourseQuery, args.values()...)
}

func (db *Database) UpsertCategory(ctx context.Context, args UpsertCategoryArgs) (uuid.UUID, error) {
	ctx, span := startSpan(ctx, "Database.UpsertCategory")
	span.SetAttributes(attribute.String("slug", args.Slug))
	defer span.End()
	return db.returningID(ctx, span, "upsert category", UpsertCategoryQuery, args.Slug, args.Name)
}

// UpsertCourseCategory links a course to a category; linking twice is a no-op.
func (db *Database) UpsertCourseCategory(ctx context.Context, courseID, categoryID uuid.UUID) error {
	ctx, span := startSpan(ctx, "Database.UpsertCourseCategory")
	defer span.End()
	if db.q == nil {
		return ErrNotAvailable
	}
	if _, err := db.q.Exec(ctx, UpsertCourseCategoryQuery, courseID, categoryID); err != nil {
		fail(span, err)
		return fmt.Errorf("upsert course category failed: %w", err)
	}
	return nil
}

// InsertAffiliateLink appends a new affiliate link row.
func (db *Database) InsertAffiliateLink(ctx context.Context, args AffiliateLinkArgs) (uuid.UUID, error) {
	ctx, span := startSpan(ctx, "Database.InsertAffiliateLink")
	span.SetAttributes(attribute.String("course_id", args.CourseID.String()))
	defer span.End()
	return db.returningID(ctx, span, "insert affiliate link", InsertAffiliateLinkQuery, args.CourseID, args.Network, args.AffiliateURL)
}

// UpsertAffiliateLink keeps a single current link per course.
func (db *Database) UpsertAffiliateLink(ctx context.Context, args AffiliateLinkArgs) (uuid.UUID, error) {
	ctx, span := startSpan(ctx, "Database.UpsertAffiliateLink")
	span.SetAttributes(attribute.String("course_id", args.CourseID.String()))
	defer span.End()
	return db.returningID(ctx, span, "upsert affiliate link", UpsertAffiliateLinkQuery, args.CourseID, args.Network, args.AffiliateURL)
}

// ListSearchCourses selects the full v_search_courses projection.
func (db *Database) ListSearchCourses(ctx context.Context) ([]SearchCourse, error) {
	ctx, span := startSpan(ctx, "Database.ListSearchCourses")
	defer span.End()
	if db.q == nil {
		return nil, ErrNotAvailable
	}
	rows, err := db.q.Query(ctx, ListSearchCoursesQuery)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("list search courses query failed: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[SearchCourse])
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("list search courses scan failed: %w", err)
	}
	span.SetAttributes(attribute.Int("rows", len(out)))
	slog.DebugContext(ctx, "list search courses done", "count", len(out))
	return out, nil
}

// ListCourses returns up to limit courses, most recently updated first.
func (db *Database) ListCourses(ctx context.Context, limit int) ([]Course, error) {
	ctx, span := startSpan(ctx, "Database.ListCourses")
	span.SetAttributes(attribute.Int("limit", limit))
	defer span.End()
	if db.q == nil {
		return nil, ErrNotAvailable
	}
	rows, err := db.q.Query(ctx, ListCoursesQuery, limit)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("list courses query failed: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[Course])
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("list courses scan failed: %w", err)
	}
	return out, nil
}

// GetCourse returns the course with the given id, or nil when there is none.
func (db *Database) GetCourse(ctx context.Context, id uuid.UUID) (*Course, error) {
	ctx, span := startSpan(ctx, "Database.GetCourse")
	span.SetAttributes(attribute.String("id", id.String()))
	defer span.End()
	if db.q == nil {
		return nil, ErrNotAvailable
	}
	return db.collectCourse(ctx, span, "get course", CourseByIDQuery, id)
}

func (db *Database) collectCourse(ctx context.Context, span trace.Span, what, query string, args ...any) (*Course, error) {
	rows, err := db.q.Query(ctx, query, args...)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("%s failed: %w", what, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Course])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		fail(span, err)
		return nil, fmt.Errorf("%s failed: %w", what, err)
	}
	return c, nil
}

// CreateCourse inserts a new course and returns the stored row.
func (db *Database) CreateCourse(ctx context.Context, args CourseArgs) (*Course, error) {
	ctx, span := startSpan(ctx, "Database.CreateCourse")
	span.SetAttributes(attribute.String("external_id", args.ExternalID))
	defer span.End()
	if db.q == nil {
		return nil, ErrNotAvailable
	}
	return db.collectCourse(ctx, span, "create course", CreateCourseQuery, args.WithDefaults().values()...)
}

// UpdateCourse applies patch and returns the updated row, or nil when the
// course does not exist.
func (db *Database) UpdateCourse(ctx context.Context, id uuid.UUID, patch CoursePatch) (*Course, error) {
	ctx, span := startSpan(ctx, "Database.UpdateCourse")
	span.SetAttributes(attribute.String("id", id.String()))
	defer span.End()
	if db.q == nil {
		return nil, ErrNotAvailable
	}
	query, args, err := RenderUpdateCourseQuery(id, patch)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	slog.DebugContext(ctx, "update course query", "sql", query, "args_len", len(args))
	return db.collectCourse(ctx, span, "update course", query, args...)
}

// DeleteCourse deletes a course. Deleting a missing course is not an error.
func (db *Database) DeleteCourse(ctx context.Context, id uuid.UUID) error {
	ctx, span := startSpan(ctx, "Database.DeleteCourse")
	span.SetAttributes(attribute.String("id", id.String()))
	defer span.End()
	if db.q == nil {
		return ErrNotAvailable
	}
	tag, err := db.q.Exec(ctx, DeleteCourseQuery, id)
	if err != nil {
		fail(span, err)
		return fmt.Errorf("delete course failed: %w", err)
	}
	span.SetAttributes(attribute.Int64("rows_affected", tag.RowsAffected()))
	return nil
}

// LatestAffiliateURL returns the most recently updated affiliate URL of a
// course, or "" when it has none.
func (db *Database) LatestAffiliateURL(ctx context.Context, courseID uuid.UUID) (string, error) {
	ctx, span := startSpan(ctx, "Database.LatestAffiliateURL")
	span.SetAttributes(attribute.String("course_id", courseID.String()))
	defer span.End()
	return db.optionalString(ctx, span, "latest affiliate url", LatestAffiliateURLQuery, courseID)
}

// GetCourseURL returns the course's own URL, or "" when the course is
// missing or has no URL.
func (db *Database) GetCourseURL(ctx context.Context, courseID uuid.UUID) (string, error) {
	ctx, span := startSpan(ctx, "Database.GetCourseURL")
	span.SetAttributes(attribute.String("course_id", courseID.String()))
	defer span.End()
	return db.optionalString(ctx, span, "get course url", CourseURLQuery, courseID)
}

func (db *Database) optionalString(ctx context.Context, span trace.Span, what, query string, args ...any) (string, error) {
	if db.q == nil {
		return "", ErrNotAvailable
	}
	var s *string
	if err := db.q.QueryRow(ctx, query, args...).Scan(&s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		fail(span, err)
		return "", fmt.Errorf("%s failed: %w", what, err)
	}
	if s == nil {
		return "", nil
	}
	return *s, nil
}

// InsertClick records one affiliate redirect.
func (db *Database) InsertClick(ctx context.Context, c Click) error {
	ctx, span := startSpan(ctx, "Database.InsertClick")
	span.SetAttributes(attribute.String("course_id", c.CourseID.String()))
	defer span.End()
	if db.q == nil {
		return ErrNotAvailable
	}
	_, err := db.q.Exec(ctx, InsertClickQuery,
		c.CourseID, c.ClickToken, c.IPHash, c.UserAgent, c.Referrer, c.Country,
		c.UTMSource, c.UTMMedium, c.UTMCampaign, c.UTMTerm, c.UTMContent,
	)
	if err != nil {
		fail(span, err)
		return fmt.Errorf("insert click failed: %w", err)
	}
	return nil
}

// InsertPartner stores a partner or mentor form submission.
func (db *Database) InsertPartner(ctx context.Context, args InsertPartnerArgs) (*Partner, error) {
	ctx, span := startSpan(ctx, "Database.InsertPartner")
	span.SetAttributes(attribute.String("program", string(args.Program)))
	defer span.End()
	if db.q == nil {
		return nil, ErrNotAvailable
	}
	rows, err := db.q.Query(ctx, InsertPartnerQuery, string(args.Program), args.Name, args.Email, args.Country, args.Message)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("insert partner failed: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Partner])
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("insert partner failed: %w", err)
	}
	return p, nil
}
