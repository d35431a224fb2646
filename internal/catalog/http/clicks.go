package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"edterm.com/edterm/internal/database"
)

// ClickStore persists redirect clicks.
type ClickStore interface {
	InsertClick(ctx context.Context, c database.Click) error
}

// ClickLogger records clicks in the background. Writes are bounded by a
// timeout, survive request cancellation, and never delay the redirect.
type ClickLogger struct {
	store    ClickStore
	timeout  time.Duration
	wg       sync.WaitGroup
	recorded metric.Int64Counter
	failed   metric.Int64Counter
}

func NewClickLogger(store ClickStore, timeout time.Duration) *ClickLogger {
	meter := otel.Meter("edterm/http")
	recorded, _ := meter.Int64Counter("edterm.clicks.recorded",
		metric.WithDescription("Affiliate clicks written to the store"))
	failed, _ := meter.Int64Counter("edterm.clicks.failed",
		metric.WithDescription("Affiliate clicks that could not be written"))
	return &ClickLogger{store: store, timeout: timeout, recorded: recorded, failed: failed}
}

// Log schedules c to be written.
func (l *ClickLogger) Log(ctx context.Context, c database.Click) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		if err := l.store.InsertClick(ctx, c); err != nil {
			slog.WarnContext(ctx, "click log failed", "course_id", c.CourseID, "error", err)
			if l.failed != nil {
				l.failed.Add(ctx, 1)
			}
			return
		}
		if l.recorded != nil {
			l.recorded.Add(ctx, 1)
		}
	}()
}

// Wait blocks until every scheduled write has finished.
func (l *ClickLogger) Wait() { l.wg.Wait() }

// clickFromRequest extracts the click metadata of a redirect request.
func clickFromRequest(r *stdhttp.Request, courseID uuid.UUID) database.Click {
	q := r.URL.Query()
	return database.Click{
		CourseID:    courseID,
		ClickToken:  uuid.New(),
		IPHash:      hashIP(clientIP(r)),
		UserAgent:   r.UserAgent(),
		Referrer:    r.Referer(),
		Country:     firstHeader(r, "X-Vercel-IP-Country", "CF-IPCountry"),
		UTMSource:   q.Get("utm_source"),
		UTMMedium:   q.Get("utm_medium"),
		UTMCampaign: q.Get("utm_campaign"),
		UTMTerm:     q.Get("utm_term"),
		UTMContent:  q.Get("utm_content"),
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote address.
func clientIP(r *stdhttp.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func hashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

func firstHeader(r *stdhttp.Request, names ...string) string {
	for _, n := range names {
		if v := r.Header.Get(n); v != "" {
			return v
		}
	}
	return ""
}
