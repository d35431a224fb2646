package database

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UpsertProviderArgs struct {
	Slug       string
	Name       string
	WebsiteURL string
}

// CourseArgs carries the full course column set written by ingestion and
// by the create endpoint.
type CourseArgs struct {
	ProviderID    uuid.UUID        `json:"provider_id" validate:"required"`
	ExternalID    string           `json:"external_id" validate:"required"`
	Title         string           `json:"title" validate:"required"`
	Description   *string          `json:"description"`
	URL           *string          `json:"url" validate:"omitempty,url"`
	Price         *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	Currency      string           `json:"currency"`
	Level         Level            `json:"level" validate:"omitempty,oneof=beginner intermediate advanced all"`
	IsFree        bool             `json:"is_free"`
	Rating        *float64         `json:"rating" validate:"omitempty,gte=0,lte=5"`
	RatingsCount  int              `json:"ratings_count" validate:"gte=0"`
	Language      string           `json:"language"`
	DurationHours *float64         `json:"duration_hours" validate:"omitempty,gte=0"`
	PublishedAt   *time.Time       `json:"published_at"`
	ThumbnailURL  *string          `json:"thumbnail_url" validate:"omitempty,url"`
}

// WithDefaults fills the columns that have catalog-wide defaults.
func (a CourseArgs) WithDefaults() CourseArgs {
	if a.Currency == "" {
		a.Currency = "USD"
	}
	if a.Language == "" {
		a.Language = "en"
	}
	if a.Level == "" {
		a.Level = LevelAll
	}
	return a
}

func (a CourseArgs) values() []any {
	return []any{
		a.ProviderID, a.ExternalID, a.Title, a.Description, a.URL, a.Price,
		a.Currency, string(a.Level), a.IsFree, a.Rating, a.RatingsCount,
		a.Language, a.DurationHours, a.PublishedAt, a.ThumbnailURL,
	}
}

// CoursePatch holds the fields of a partial course update. Nil fields are
// left untouched.
type CoursePatch struct {
	ProviderID    *uuid.UUID       `json:"provider_id"`
	ExternalID    *string          `json:"external_id" validate:"omitempty,min=1"`
	Title         *string          `json:"title" validate:"omitempty,min=1"`
	Description   *string          `json:"description"`
	URL           *string          `json:"url" validate:"omitempty,url"`
	Price         *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	Currency      *string          `json:"currency" validate:"omitempty,min=1"`
	Level         *Level           `json:"level" validate:"omitempty,oneof=beginner intermediate advanced all"`
	IsFree        *bool            `json:"is_free"`
	Rating        *float64         `json:"rating" validate:"omitempty,gte=0,lte=5"`
	RatingsCount  *int             `json:"ratings_count" validate:"omitempty,gte=0"`
	Language      *string          `json:"language" validate:"omitempty,min=1"`
	DurationHours *float64         `json:"duration_hours" validate:"omitempty,gte=0"`
	PublishedAt   *time.Time       `json:"published_at"`
	ThumbnailURL  *string          `json:"thumbnail_url" validate:"omitempty,url"`
}

type UpsertCategoryArgs struct {
	Slug string
	Name string
}

type AffiliateLinkArgs struct {
	CourseID     uuid.UUID
	Network      string
	AffiliateURL string
}

type InsertPartnerArgs struct {
	Program Program
	Name    string
	Email   string
	Country *string
	Message *string
}

// CourseColumns lists the courses columns in Course field order.
var CourseColumns = strings.Join([]string{
	"id, provider_id, external_id, title, description, url, price, currency,",
	"level, is_free, rating, ratings_count, language, duration_hours,",
	"published_at, thumbnail_url, created_at, updated_at",
}, " ")

var UpsertProviderQuery = strings.Join([]string{
	"INSERT INTO providers (slug, name, website_url)",
	"VALUES ($1, $2, $3)",
	"ON CONFLICT (slug)",
	"DO UPDATE SET name = EXCLUDED.name, website_url = EXCLUDED.website_url, updated_at = NOW()",
	"RETURNING id",
}, " ")

var UpsertCourseQuery = strings.Join([]string{
	"INSERT INTO courses (provider_id, external_id, title, description, url, price, currency,",
	"level, is_free, rating, ratings_count, language, duration_hours, published_at, thumbnail_url)",
	"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)",
	"ON CONFLICT (provider_id, external_id)",
	"DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description, url = EXCLUDED.url,",
	"price = EXCLUDED.price, currency = EXCLUDED.currency, level = EXCLUDED.level,",
	"is_free = EXCLUDED.is_free, rating = EXCLUDED.rating, ratings_count = EXCLUDED.ratings_count,",
	"language = EXCLUDED.language, duration_hours = EXCLUDED.duration_hours,",
	"published_at = EXCLUDED.published_at, thumbnail_url = EXCLUDED.thumbnail_url, updated_at = NOW()",
	"RETURNING id",
}, " ")

var CreateCourseQuery = strings.Join([]string{
	"INSERT INTO courses (provider_id, external_id, title, description, url, price, currency,",
	"level, is_free, rating, ratings_count, language, duration_hours, published_at, thumbnail_url)",
	"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)",
	"RETURNING " + CourseColumns,
}, " ")

var UpsertCategoryQuery = strings.Join([]string{
	"INSERT INTO categories (slug, name)",
	"VALUES ($1, $2)",
	"ON CONFLICT (slug)",
	"DO UPDATE SET name = EXCLUDED.name",
	"RETURNING id",
}, " ")

var UpsertCourseCategoryQuery = strings.Join([]string{
	"INSERT INTO course_categories (course_id, category_id)",
	"VALUES ($1, $2)",
	"ON CONFLICT (course_id, category_id) DO NOTHING",
}, " ")

var InsertAffiliateLinkQuery = strings.Join([]string{
	"INSERT INTO affiliate_links (course_id, network, affiliate_url)",
	"VALUES ($1, $2, $3)",
	"RETURNING id",
}, " ")

// UpsertAffiliateLinkQuery rewrites the newest link of a course in place,
// inserting one when the course has none.
var UpsertAffiliateLinkQuery = strings.Join([]string{
	"WITH updated AS (",
	"UPDATE affiliate_links SET network = $2::text, affiliate_url = $3::text, updated_at = NOW()",
	"WHERE id = (SELECT id FROM affiliate_links WHERE course_id = $1::uuid ORDER BY updated_at DESC LIMIT 1)",
	"RETURNING id",
	"), inserted AS (",
	"INSERT INTO affiliate_links (course_id, network, affiliate_url)",
	"SELECT $1::uuid, $2::text, $3::text WHERE NOT EXISTS (SELECT 1 FROM updated)",
	"RETURNING id",
	")",
	"SELECT id FROM updated UNION ALL SELECT id FROM inserted",
}, " ")

var ListSearchCoursesQuery = strings.Join([]string{
	"SELECT id, external_id, title, description, url, price, currency, level, is_free,",
	"rating, ratings_count, language, duration_hours, published_at, thumbnail_url, updated_at,",
	"provider_slug, provider_name, categories, category_slugs, affiliate_url, affiliate_network",
	"FROM v_search_courses",
}, " ")

var ListCoursesQuery = strings.Join([]string{
	"SELECT " + CourseColumns,
	"FROM courses",
	"ORDER BY updated_at DESC",
	"LIMIT $1",
}, " ")

var CourseByIDQuery = strings.Join([]string{
	"SELECT " + CourseColumns,
	"FROM courses",
	"WHERE id = $1",
}, " ")

var DeleteCourseQuery = "DELETE FROM courses WHERE id = $1"

var LatestAffiliateURLQuery = strings.Join([]string{
	"SELECT affiliate_url FROM affiliate_links",
	"WHERE course_id = $1",
	"ORDER BY updated_at DESC",
	"LIMIT 1",
}, " ")

var CourseURLQuery = "SELECT url FROM courses WHERE id = $1"

var InsertClickQuery = strings.Join([]string{
	"INSERT INTO clicks (course_id, click_token, ip_hash, user_agent, referrer, country,",
	"utm_source, utm_medium, utm_campaign, utm_term, utm_content)",
	"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
}, " ")

var InsertPartnerQuery = strings.Join([]string{
	"INSERT INTO partners (program, name, email, country, message)",
	"VALUES ($1, $2, $3, $4, $5)",
	"RETURNING id, program, name, email, country, message, created_at",
}, " ")

var tmplFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

var updateCourseQueryTmpl = template.Must(
	template.New("updateCourse").Funcs(tmplFuncs).Parse(strings.Join([]string{
		"UPDATE courses SET",
		"{{range $i, $c := .Columns}}{{$c}} = ${{add $i 1}}, {{end}}updated_at = NOW()",
		"WHERE id = ${{add (len .Columns) 1}}",
		"RETURNING {{.Returning}}",
	}, " ")),
)

// RenderUpdateCourseArgs returns the columns set by patch and their values,
// in a stable order.
func RenderUpdateCourseArgs(patch CoursePatch) ([]string, []any) {
	var cols []string
	var args []any
	set := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if patch.ProviderID != nil {
		set("provider_id", *patch.ProviderID)
	}
	if patch.ExternalID != nil {
		set("external_id", *patch.ExternalID)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.URL != nil {
		set("url", *patch.URL)
	}
	if patch.Price != nil {
		set("price", *patch.Price)
	}
	if patch.Currency != nil {
		set("currency", *patch.Currency)
	}
	if patch.Level != nil {
		set("level", string(*patch.Level))
	}
	if patch.IsFree != nil {
		set("is_free", *patch.IsFree)
	}
	if patch.Rating != nil {
		set("rating", *patch.Rating)
	}
	if patch.RatingsCount != nil {
		set("ratings_count", *patch.RatingsCount)
	}
	if patch.Language != nil {
		set("language", *patch.Language)
	}
	if patch.DurationHours != nil {
		set("duration_hours", *patch.DurationHours)
	}
	if patch.PublishedAt != nil {
		set("published_at", *patch.PublishedAt)
	}
	if patch.ThumbnailURL != nil {
		set("thumbnail_url", *patch.ThumbnailURL)
	}
	return cols, args
}

// RenderUpdateCourseQuery builds SQL and args updating only the fields set in patch.
// The course id is always the last positional argument.
func RenderUpdateCourseQuery(id uuid.UUID, patch CoursePatch) (string, []any, error) {
	cols, args := RenderUpdateCourseArgs(patch)
	var buf bytes.Buffer
	err := updateCourseQueryTmpl.Execute(&buf, map[string]any{
		"Columns":   cols,
		"Returning": CourseColumns,
	})
	if err != nil {
		return "", nil, fmt.Errorf("render update course query failed: %w", err)
	}
	return buf.String(), append(args, id), nil
}
