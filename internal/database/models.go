package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Prices are JSON numbers on the wire.
	decimal.MarshalJSONWithoutQuotes = true
}

// Level is the closed set of course difficulty levels.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
	LevelAll          Level = "all"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelAll:
		return true
	}
	return false
}

// Program identifies which form a partner submission came from.
type Program string

const (
	ProgramPartner Program = "partner"
	ProgramMentor  Program = "mentor"
)

type Provider struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Slug       string    `json:"slug" db:"slug"`
	Name       string    `json:"name" db:"name"`
	WebsiteURL string    `json:"website_url" db:"website_url"`
}

type Course struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	ProviderID    uuid.UUID        `json:"provider_id" db:"provider_id"`
	ExternalID    string           `json:"external_id" db:"external_id"`
	Title         string           `json:"title" db:"title"`
	Description   *string          `json:"description" db:"description"`
	URL           *string          `json:"url" db:"url"`
	Price         *decimal.Decimal `json:"price" db:"price"`
	Currency      string           `json:"currency" db:"currency"`
	Level         Level            `json:"level" db:"level"`
	IsFree        bool             `json:"is_free" db:"is_free"`
	Rating        *float64         `json:"rating" db:"rating"`
	RatingsCount  int              `json:"ratings_count" db:"ratings_count"`
	Language      string           `json:"language" db:"language"`
	DurationHours *float64         `json:"duration_hours" db:"duration_hours"`
	PublishedAt   *time.Time       `json:"published_at" db:"published_at"`
	ThumbnailURL  *string          `json:"thumbnail_url" db:"thumbnail_url"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// SearchCourse is one row of the v_search_courses view and the document
// shape pushed to the search index.
type SearchCourse struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	ExternalID       string     `json:"external_id" db:"external_id"`
	Title            string     `json:"title" db:"title"`
	Description      *string    `json:"description" db:"description"`
	URL              *string    `json:"url" db:"url"`
	Price            *float64   `json:"price" db:"price"`
	Currency         string     `json:"currency" db:"currency"`
	Level            Level      `json:"level" db:"level"`
	IsFree           bool       `json:"is_free" db:"is_free"`
	Rating           *float64   `json:"rating" db:"rating"`
	RatingsCount     int        `json:"ratings_count" db:"ratings_count"`
	Language         string     `json:"language" db:"language"`
	DurationHours    *float64   `json:"duration_hours" db:"duration_hours"`
	PublishedAt      *time.Time `json:"published_at" db:"published_at"`
	ThumbnailURL     *string    `json:"thumbnail_url" db:"thumbnail_url"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	ProviderSlug     string     `json:"provider_slug" db:"provider_slug"`
	ProviderName     string     `json:"provider_name" db:"provider_name"`
	Categories       []string   `json:"categories" db:"categories"`
	CategorySlugs    []string   `json:"category_slugs" db:"category_slugs"`
	AffiliateURL     *string    `json:"affiliate_url" db:"affiliate_url"`
	AffiliateNetwork *string    `json:"affiliate_network" db:"affiliate_network"`
}

type Partner struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Program   Program   `json:"program" db:"program"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Country   *string   `json:"country" db:"country"`
	Message   *string   `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Click struct {
	CourseID    uuid.UUID
	ClickToken  uuid.UUID
	IPHash      string
	UserAgent   string
	Referrer    string
	Country     string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string
}
