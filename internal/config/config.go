package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Affiliate link write modes used by the ingestion pipeline.
const (
	AffiliateLinkAppend = "append"
	AffiliateLinkUpsert = "upsert"
)

type Config struct{ v *viper.Viper }

func New() *Config {
	vv := viper.New()
	vv.AutomaticEnv()
	return &Config{v: vv}
}

func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

// GetDsn resolves the final DSN using env vars.
// The password is left to libpq-style PGPASSWORD resolution by pgx.
func (c *Config) GetDsn() (*url.URL, error) {
	source := c.v.GetString("DSN")
	if source == "" {
		user := c.v.GetString("PGUSER")
		if user == "" {
			user = c.v.GetString("USER")
		}
		if user == "" {
			user = "postgres"
		}

		dbName := c.v.GetString("PGDATABASE")
		if dbName == "" {
			dbName = "postgres"
		}

		host := c.v.GetString("PGHOST")
		if host == "" {
			host = "localhost"
		}

		port := c.v.GetString("PGPORT")
		hasPortEnv := port != ""
		if !hasPortEnv {
			port = "5432"
		}

		if strings.HasPrefix(host, "/") {
			socketDir := host

			// If PGHOST points to a file, derive directory and only infer port when PGPORT isn't set.
			if fi, err := os.Stat(host); err == nil && !fi.IsDir() {
				socketDir = filepath.Dir(host)
				if !hasPortEnv {
					base := filepath.Base(host)
					// Expected filename pattern: ".s.PGSQL.<port>"
					if inferred, ok := strings.CutPrefix(base, ".s.PGSQL."); ok && inferred != "" {
						if _, err := strconv.Atoi(inferred); err == nil {
							port = inferred
						}
					}
				}
			}

			q := url.Values{}
			q.Set("host", socketDir)
			q.Set("port", port)
			q.Set("sslmode", "disable")
			source = "postgres://" + user + "@/" + dbName + "?" + q.Encode()
		} else {
			source = "postgres://" + user + "@" + host + ":" + port + "/" + dbName + "?sslmode=disable"
		}
	}

	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return nil, errors.New("invalid DSN: must be in format driver://dataSourceName")
	}
	return u, nil
}

func (c *Config) GetAddr() string {
	port := c.v.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	host := c.v.GetString("HOST")
	if host == "" {
		host = "localhost"
	}
	return host + ":" + port
}

// GetServiceName returns the OpenTelemetry service name from SERVICE_NAME; defaults to "edterm".
func (c *Config) GetServiceName() string {
	if s := c.v.GetString("SERVICE_NAME"); s != "" {
		return s
	}
	return "edterm"
}

// GetSearchHost returns the Meilisearch host from env var MEILI_HOST.
func (c *Config) GetSearchHost() string { return c.v.GetString("MEILI_HOST") }

// GetSearchAPIKey returns the Meilisearch admin key from env var MEILI_MASTER_KEY.
func (c *Config) GetSearchAPIKey() string { return c.v.GetString("MEILI_MASTER_KEY") }

// RequireSearch reports every missing search setting at once.
func (c *Config) RequireSearch() error {
	var missing []string
	if c.GetSearchHost() == "" {
		missing = append(missing, "MEILI_HOST")
	}
	if c.GetSearchAPIKey() == "" {
		missing = append(missing, "MEILI_MASTER_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing env: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GetSearchIndex returns the index documents are synced into; defaults to "courses".
func (c *Config) GetSearchIndex() string {
	if s := c.v.GetString("SEARCH_INDEX"); s != "" {
		return s
	}
	return "courses"
}

func (c *Config) GetSearchSettingsFile() string {
	if s := c.v.GetString("SEARCH_SETTINGS_FILE"); s != "" {
		return s
	}
	return "meilisearch_settings.json"
}

// GetSearchTaskPollInterval returns how often search tasks are polled while waiting.
// Reads SEARCH_TASK_POLL_INTERVAL; defaults to 100ms.
func (c *Config) GetSearchTaskPollInterval() time.Duration {
	return c.getDuration("SEARCH_TASK_POLL_INTERVAL", 100*time.Millisecond)
}

func (c *Config) GetResendAPIKey() string { return c.v.GetString("RESEND_API_KEY") }

func (c *Config) GetNotifyFrom() string {
	if s := c.v.GetString("NOTIFY_FROM"); s != "" {
		return s
	}
	return "EdTerm Notifications <partners@edterm.com>"
}

// GetNotifyTo returns the comma-separated recipients in NOTIFY_TO.
func (c *Config) GetNotifyTo() []string {
	raw := c.v.GetString("NOTIFY_TO")
	if raw == "" {
		return []string{"partners@edterm.com"}
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) GetSiteURL() string {
	if s := c.v.GetString("SITE_URL"); s != "" {
		return strings.TrimRight(s, "/")
	}
	return "https://www.edterm.com"
}

// GetAffiliateLinkMode returns AFFILIATE_LINK_MODE (append or upsert); defaults to append.
func (c *Config) GetAffiliateLinkMode() string {
	switch strings.ToLower(c.v.GetString("AFFILIATE_LINK_MODE")) {
	case AffiliateLinkUpsert:
		return AffiliateLinkUpsert
	default:
		return AffiliateLinkAppend
	}
}

func (c *Config) GetIngestFile() string {
	if s := c.v.GetString("INGEST_FILE"); s != "" {
		return s
	}
	return "ingest-courses.example.csv"
}

// GetSubmissionsPerMinute returns the form submission rate limit; defaults to 30.
func (c *Config) GetSubmissionsPerMinute() int {
	if n, err := strconv.Atoi(c.v.GetString("SUBMISSIONS_PER_MINUTE")); err == nil && n > 0 {
		return n
	}
	return 30
}

// GetClickLogTimeout bounds each best-effort click insert; defaults to 5s.
func (c *Config) GetClickLogTimeout() time.Duration {
	return c.getDuration("CLICK_LOG_TIMEOUT", 5*time.Second)
}

func (c *Config) GetSyncSchedule() string { return c.v.GetString("SYNC_SCHEDULE") }

// GetTelemetryEnabled reports whether an OTLP endpoint is configured.
func (c *Config) GetTelemetryEnabled() bool {
	return c.v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
		c.v.GetString("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") != ""
}

// GetLogLevel returns the log level from env var LOG_LEVEL mapped to slog.Level.
// Recognized values: debug, info (default), warn|warning, error.
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToLower(c.v.GetString("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OnLogLevelChange calls fn with the slog.Level whenever it changes.
// The initial call is made immediately.
func (c *Config) OnLogLevelChange(fn func(slog.Level)) {
	apply := func() { fn(c.GetLogLevel()) }
	apply()
	c.v.OnConfigChange(func(e fsnotify.Event) { apply() })
}

// GetLogFormat returns LOG_FORMAT, either "json" or "text" (default).
func (c *Config) GetLogFormat() string {
	if strings.EqualFold(c.v.GetString("LOG_FORMAT"), "json") {
		return "json"
	}
	return "text"
}

// SetConfigFile points the config at an optional file and reads it.
// Values from the file are overridden by env vars.
func (c *Config) SetConfigFile(path string) error {
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Watch watches for changes in the config file, if one was loaded.
func (c *Config) Watch() {
	if c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.WatchConfig()
}

func (c *Config) getDuration(key string, def time.Duration) time.Duration {
	if v := c.v.GetString(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
