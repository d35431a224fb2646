package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"time"

	"connectrpc.com/connect"
	grpchealth "connectrpc.com/grpchealth"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"edterm.com/edterm/internal/catalog"
	"edterm.com/edterm/internal/config"
	"edterm.com/edterm/internal/database"
	"edterm.com/edterm/internal/validation"
)

// ServiceName is the name reported by the gRPC health endpoint.
const ServiceName = "edterm.catalog"

// Store is the record store surface used by the HTTP handlers.
type Store interface {
	ClickStore
	ListCourses(ctx context.Context, limit int) ([]database.Course, error)
	GetCourse(ctx context.Context, id uuid.UUID) (*database.Course, error)
	CreateCourse(ctx context.Context, args database.CourseArgs) (*database.Course, error)
	UpdateCourse(ctx context.Context, id uuid.UUID, patch database.CoursePatch) (*database.Course, error)
	DeleteCourse(ctx context.Context, id uuid.UUID) error
	LatestAffiliateURL(ctx context.Context, courseID uuid.UUID) (string, error)
	GetCourseURL(ctx context.Context, courseID uuid.UUID) (string, error)
	InsertPartner(ctx context.Context, args database.InsertPartnerArgs) (*database.Partner, error)
	Ping(ctx context.Context) error
}

// Notifier delivers submission emails.
type Notifier interface {
	NotifySubmission(ctx context.Context, p *database.Partner) (string, error)
}

// ServerOptions holds the tunables of a Server.
type ServerOptions struct {
	siteURL              string
	submissionsPerMinute int
	clickTimeout         time.Duration
}

// ServerOption applies a configuration to ServerOptions.
type ServerOption func(*ServerOptions)

func WithSiteURL(u string) ServerOption {
	return func(o *ServerOptions) { o.siteURL = u }
}

// WithSubmissionRate limits the form endpoints to n requests per minute.
func WithSubmissionRate(n int) ServerOption {
	return func(o *ServerOptions) { o.submissionsPerMinute = n }
}

// WithClickTimeout bounds each background click write.
func WithClickTimeout(d time.Duration) ServerOption {
	return func(o *ServerOptions) { o.clickTimeout = d }
}

// Server holds handlers and dependencies for the catalog HTTP server.
type Server struct {
	store    Store
	notifier Notifier
	clicks   *ClickLogger
	limiter  *rate.Limiter
	validate *validator.Validate
	siteURL  string
	mux      *stdhttp.ServeMux
	closer   func() error
}

// NewServer mounts the catalog routes and the gRPC health handler.
func NewServer(store Store, notifier Notifier, opts ...ServerOption) *Server {
	o := ServerOptions{
		siteURL:              "https://www.edterm.com",
		submissionsPerMinute: 30,
		clickTimeout:         5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.submissionsPerMinute <= 0 {
		o.submissionsPerMinute = 30
	}
	s := &Server{
		store:    store,
		notifier: notifier,
		clicks:   NewClickLogger(store, o.clickTimeout),
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(o.submissionsPerMinute)), o.submissionsPerMinute),
		validate: validation.New("json"),
		siteURL:  o.siteURL,
		mux:      stdhttp.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/courses", s.listCourses)
	s.mux.HandleFunc("POST /api/courses", s.createCourse)
	s.mux.HandleFunc("GET /api/courses/{id}", s.getCourse)
	s.mux.HandleFunc("PATCH /api/courses/{id}", s.patchCourse)
	s.mux.HandleFunc("DELETE /api/courses/{id}", s.deleteCourse)
	s.mux.HandleFunc("GET /api/go/{courseId}", s.redirect)
	s.mux.HandleFunc("POST /api/mentor-submissions", s.submit(database.ProgramMentor))
	s.mux.HandleFunc("POST /api/partner-submissions", s.submit(database.ProgramPartner))
	s.mux.HandleFunc("GET /sitemap.xml", s.sitemap)
	s.mux.HandleFunc("GET /health", s.health)
	hpath, hhandler := grpchealth.NewHandler(HealthChecker{store: store})
	s.mux.Handle(hpath, hhandler)
	return s
}

// NewServerForConfig builds catalog clients from cfg and returns a configured Server.
func NewServerForConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	cat, err := catalog.NewForConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := NewServer(cat.Database(), cat.Mailer(),
		WithSiteURL(cfg.GetSiteURL()),
		WithSubmissionRate(cfg.GetSubmissionsPerMinute()),
		WithClickTimeout(cfg.GetClickLogTimeout()),
	)
	s.closer = cat.Close
	return s, nil
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() stdhttp.Handler {
	return otelhttp.NewHandler(s.mux, "http.server")
}

// Close waits for pending click writes and closes database connections.
func (s *Server) Close() error {
	s.clicks.Wait()
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and drains pending click writes.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &stdhttp.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		slog.Info("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.clicks.Wait()
		return nil
	})
	return g.Wait()
}

// HealthChecker reports health based on database connectivity.
type HealthChecker struct{ store Store }

// Check implements grpchealth.Checker. It returns StatusServing when the database ping succeeds.
func (c HealthChecker) Check(
	ctx context.Context,
	req *grpchealth.CheckRequest,
) (*grpchealth.CheckResponse, error) {
	ctx, span := otel.Tracer("edterm/http").Start(ctx, "HealthChecker.Check")
	defer span.End()
	switch req.Service {
	case "", ServiceName:
		if err := c.store.Ping(ctx); err != nil {
			return &grpchealth.CheckResponse{Status: grpchealth.StatusNotServing}, nil
		}
		return &grpchealth.CheckResponse{Status: grpchealth.StatusServing}, nil
	default:
		return nil, connect.NewError(
			connect.CodeNotFound,
			fmt.Errorf("unknown service: %s", req.Service),
		)
	}
}
