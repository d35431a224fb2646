package database

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"k8s.io/utils/ptr"
)

// openTestDatabase connects to EDTERM_TEST_DSN, resets the schema and
// returns a migrated Database. Tests are skipped when the variable is unset.
func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	dsn := os.Getenv("EDTERM_TEST_DSN")
	if dsn == "" {
		t.Skip("EDTERM_TEST_DSN not set")
	}
	ctx := context.Background()
	pg, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pg.Close)

	mg, err := NewMigrator(pg)
	if err != nil {
		t.Fatalf("NewMigrator: %v", err)
	}
	if err := mg.Down(); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
	if err := mg.Up(); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return NewClient(pg)
}

func TestIntegrationSearchView(t *testing.T) {
	db := openTestDatabase(t)
	ctx := context.Background()

	pid, err := db.UpsertProvider(ctx, UpsertProviderArgs{Slug: "coursera", Name: "Coursera", WebsiteURL: "https://coursera.org"})
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}
	again, err := db.UpsertProvider(ctx, UpsertProviderArgs{Slug: "coursera", Name: "Coursera Inc", WebsiteURL: "https://coursera.org"})
	if err != nil {
		t.Fatalf("UpsertProvider again: %v", err)
	}
	if again != pid {
		t.Fatalf("provider id changed on upsert: %s != %s", again, pid)
	}

	cid, err := db.UpsertCourse(ctx, CourseArgs{
		ProviderID: pid, ExternalID: "abc123", Title: "ML",
		Price: ptr.To(decimal.RequireFromString("49.00")),
	}.WithDefaults())
	if err != nil {
		t.Fatalf("UpsertCourse: %v", err)
	}
	for _, c := range []UpsertCategoryArgs{{"ai-data", "AI & Data"}, {"leadership", "Leadership"}} {
		catID, err := db.UpsertCategory(ctx, c)
		if err != nil {
			t.Fatalf("UpsertCategory: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := db.UpsertCourseCategory(ctx, cid, catID); err != nil {
				t.Fatalf("UpsertCourseCategory: %v", err)
			}
		}
	}
	if _, err := db.InsertAffiliateLink(ctx, AffiliateLinkArgs{CourseID: cid, Network: "custom", AffiliateURL: "https://a.example/1"}); err != nil {
		t.Fatalf("InsertAffiliateLink: %v", err)
	}
	if _, err := db.UpsertAffiliateLink(ctx, AffiliateLinkArgs{CourseID: cid, Network: "impact", AffiliateURL: "https://a.example/2"}); err != nil {
		t.Fatalf("UpsertAffiliateLink: %v", err)
	}

	docs, err := db.ListSearchCourses(ctx)
	if err != nil {
		t.Fatalf("ListSearchCourses: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs = %d, want 1", len(docs))
	}
	d := docs[0]
	if d.ProviderName != "Coursera Inc" || len(d.Categories) != 2 {
		t.Errorf("unexpected document: %+v", d)
	}
	if d.AffiliateURL == nil || *d.AffiliateURL != "https://a.example/2" {
		t.Errorf("affiliate url = %v", d.AffiliateURL)
	}

	url, err := db.LatestAffiliateURL(ctx, cid)
	if err != nil || url != "https://a.example/2" {
		t.Errorf("LatestAffiliateURL = %q, %v", url, err)
	}
}

func TestIntegrationInTxRollback(t *testing.T) {
	db := openTestDatabase(t)
	ctx := context.Background()

	err := db.InTx(ctx, func(tx *Database) error {
		if _, err := tx.UpsertProvider(ctx, UpsertProviderArgs{Slug: "udemy", Name: "Udemy"}); err != nil {
			return err
		}
		return context.Canceled
	})
	if err != context.Canceled {
		t.Fatalf("InTx err = %v", err)
	}
	courses, err := db.ListCourses(ctx, 50)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(courses) != 0 {
		t.Errorf("courses = %d, want 0", len(courses))
	}
	var n int
	if err := db.Pool().QueryRow(ctx, "SELECT count(*) FROM providers").Scan(&n); err != nil {
		t.Fatalf("count providers: %v", err)
	}
	if n != 0 {
		t.Errorf("providers = %d after rollback, want 0", n)
	}
}
