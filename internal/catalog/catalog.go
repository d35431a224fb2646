// Package catalog wires the record store, search index and mailer used by
// every edterm command.
package catalog

import (
	"context"
	"fmt"

	"edterm.com/edterm/internal/config"
	"edterm.com/edterm/internal/database"
	"edterm.com/edterm/internal/ingest"
	"edterm.com/edterm/internal/notify"
	"edterm.com/edterm/internal/search"
)

// Catalog aggregates the clients used by the application.
type Catalog struct {
	db   *database.Database
	cfg  *config.Config
	opts ClientSetOptions
}

// ClientSetOptions holds the optional clients of a Catalog.
type ClientSetOptions struct {
	search    *search.Client
	searchErr error
	mailer    *notify.Mailer
}

// ClientSetOption applies a configuration to ClientSetOptions.
type ClientSetOption func(*ClientSetOptions)

// WithSearch sets the search index client.
func WithSearch(c *search.Client) ClientSetOption {
	return func(o *ClientSetOptions) { o.search = c }
}

// WithMailer sets the submission mailer.
func WithMailer(m *notify.Mailer) ClientSetOption {
	return func(o *ClientSetOptions) { o.mailer = m }
}

// NewForConfig connects every client cfg configures. A missing search
// configuration is reported only when search is used.
func NewForConfig(ctx context.Context, cfg *config.Config) (*Catalog, error) {
	opts := []ClientSetOption{WithMailer(notify.NewForConfig(cfg))}
	if sc, serr := search.NewForConfig(cfg); serr != nil {
		opts = append(opts, func(o *ClientSetOptions) { o.searchErr = serr })
	} else {
		opts = append(opts, WithSearch(sc))
	}
	db, err := database.NewForConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(db, cfg, opts...), nil
}

// New constructs a Catalog with the given database and options.
func New(db *database.Database, cfg *config.Config, opts ...ClientSetOption) *Catalog {
	var o ClientSetOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.mailer == nil {
		o.mailer = notify.New(nil, cfg.GetNotifyFrom(), cfg.GetNotifyTo())
	}
	return &Catalog{db: db, cfg: cfg, opts: o}
}

func (c *Catalog) Database() *database.Database { return c.db }

// Mailer returns the submission mailer. It is never nil but may be disabled.
func (c *Catalog) Mailer() *notify.Mailer { return c.opts.mailer }

// Search returns the search client or the reason it is unavailable.
func (c *Catalog) Search() (*search.Client, error) {
	if c.opts.search != nil {
		return c.opts.search, nil
	}
	if c.opts.searchErr != nil {
		return nil, fmt.Errorf("search not configured: %w", c.opts.searchErr)
	}
	return nil, fmt.Errorf("search not configured")
}

// Syncer returns a job republishing the search view into the configured index.
func (c *Catalog) Syncer() (*search.Syncer, error) {
	sc, err := c.Search()
	if err != nil {
		return nil, err
	}
	return search.NewSyncer(c.db, sc, c.cfg.GetSearchIndex()), nil
}

// Bootstrapper returns the index bootstrap job.
func (c *Catalog) Bootstrapper() (*search.Bootstrapper, error) {
	sc, err := c.Search()
	if err != nil {
		return nil, err
	}
	return search.NewBootstrapper(sc), nil
}

// Ingester returns a CSV ingestion pipeline writing to the database and
// publishing through Syncer.
func (c *Catalog) Ingester(opts ingest.Options) (*ingest.Pipeline, error) {
	syncer, err := c.Syncer()
	if err != nil {
		return nil, err
	}
	if opts.AffiliateMode == "" {
		opts.AffiliateMode = c.cfg.GetAffiliateLinkMode()
	}
	return ingest.New(ingest.NewDatabaseStore(c.db), syncer, opts), nil
}

func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies that the database is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not configured")
	}
	if err := c.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
