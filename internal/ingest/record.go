package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"k8s.io/utils/ptr"

	"edterm.com/edterm/internal/database"
	"edterm.com/edterm/internal/validation"
)

const defaultNetwork = "custom"

// Record is a validated ingest row. Numeric bounds follow the course
// column types so a bad value is a row error, never a failed write.
type Record struct {
	Line int `csv:"-"`

	ProviderSlug string `csv:"provider_slug" validate:"required"`
	ProviderName string `csv:"provider_name" validate:"required"`
	ProviderURL  string `csv:"provider_url"`

	ExternalID    string           `csv:"external_id" validate:"required"`
	Title         string           `csv:"title" validate:"required"`
	Description   *string          `csv:"description"`
	URL           *string          `csv:"url" validate:"omitempty,url"`
	Price         *decimal.Decimal `csv:"price" validate:"omitempty,gte=0,lt=10000000000"`
	Currency      string           `csv:"currency" validate:"required"`
	Level         database.Level   `csv:"level" validate:"oneof=beginner intermediate advanced all"`
	IsFree        bool             `csv:"is_free"`
	Rating        *float64         `csv:"rating" validate:"omitempty,gte=0,lte=5"`
	RatingsCount  int              `csv:"ratings_count" validate:"gte=0,lte=2147483647"`
	Language      string           `csv:"language" validate:"required"`
	DurationHours *float64         `csv:"duration_hours" validate:"omitempty,gte=0,lt=1000000"`
	PublishedAt   *time.Time       `csv:"published_at"`
	ThumbnailURL  *string          `csv:"thumbnail_url" validate:"omitempty,url"`

	Categories       []string `csv:"categories"`
	AffiliateURL     string   `csv:"affiliate_url" validate:"omitempty,url"`
	AffiliateNetwork string   `csv:"affiliate_network"`
}

// CourseArgs returns the course payload for this record.
func (r *Record) CourseArgs(providerID uuid.UUID) database.CourseArgs {
	return database.CourseArgs{
		ProviderID:    providerID,
		ExternalID:    r.ExternalID,
		Title:         r.Title,
		Description:   r.Description,
		URL:           r.URL,
		Price:         r.Price,
		Currency:      r.Currency,
		Level:         r.Level,
		IsFree:        r.IsFree,
		Rating:        r.Rating,
		RatingsCount:  r.RatingsCount,
		Language:      r.Language,
		DurationHours: r.DurationHours,
		PublishedAt:   r.PublishedAt,
		ThumbnailURL:  r.ThumbnailURL,
	}
}

var recordValidator = validation.New("csv")

var publishedLayouts = []string{time.RFC3339, "2006-01-02"}

// ParseRecord coerces and validates a row. Every problem found is returned
// together in a *RecordError.
func ParseRecord(row Row) (*Record, error) {
	var errs []FieldError
	bad := func(field, value, reason string) {
		errs = append(errs, FieldError{Field: field, Value: value, Reason: reason})
	}

	rec := &Record{
		Line:             row.Line,
		ProviderSlug:     row.Get("provider_slug"),
		ProviderName:     row.Get("provider_name"),
		ProviderURL:      row.Get("provider_url"),
		ExternalID:       row.Get("external_id"),
		Title:            row.Get("title"),
		Description:      optional(row.Get("description")),
		URL:              optional(row.Get("url")),
		Currency:         orDefault(row.Get("currency"), "USD"),
		Level:            database.Level(strings.ToLower(orDefault(row.Get("level"), string(database.LevelAll)))),
		IsFree:           strings.EqualFold(row.Get("is_free"), "true"),
		Language:         orDefault(row.Get("language"), "en"),
		ThumbnailURL:     optional(row.Get("thumbnail_url")),
		Categories:       SplitCategories(row.Values["categories"]),
		AffiliateURL:     row.Get("affiliate_url"),
		AffiliateNetwork: orDefault(row.Get("affiliate_network"), defaultNetwork),
	}

	if v := row.Get("price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			bad("price", v, "is not a number")
		} else {
			rec.Price = ptr.To(d)
		}
	}
	if v := row.Get("rating"); v != "" {
		if f, ok := parseFloat(v); ok {
			rec.Rating = ptr.To(f)
		} else {
			bad("rating", v, "is not a finite number")
		}
	}
	if v := row.Get("duration_hours"); v != "" {
		if f, ok := parseFloat(v); ok {
			rec.DurationHours = ptr.To(f)
		} else {
			bad("duration_hours", v, "is not a finite number")
		}
	}
	if v := row.Get("ratings_count"); v != "" {
		if n, ok := parseCount(v); ok {
			rec.RatingsCount = n
		} else {
			bad("ratings_count", v, "is not an integer")
		}
	}
	if v := row.Get("published_at"); v != "" {
		if t, ok := parseTime(v); ok {
			rec.PublishedAt = ptr.To(t)
		} else {
			bad("published_at", v, "is not an RFC 3339 timestamp or YYYY-MM-DD date")
		}
	}

	if err := recordValidator.Struct(rec); err != nil {
		if ves, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ves {
				bad(fe.Field(), stringValue(fe.Value()), validation.Message(fe))
			}
		} else {
			bad("row", "", err.Error())
		}
	}

	if len(errs) > 0 {
		return nil, &RecordError{Line: row.Line, Fields: errs}
	}
	return rec, nil
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseCount accepts integers written in any float notation, such as
// "1200.0" or "1.2e3", as spreadsheet exports often do.
func parseCount(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, ok := parseFloat(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return ptr.To(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case database.Level:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case *string:
		if x != nil {
			return *x
		}
	}
	return ""
}
