package http

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/ptr"

	"edterm.com/edterm/internal/database"
	"edterm.com/edterm/internal/notify"
	"edterm.com/edterm/internal/validation"
)

const listCoursesLimit = 50

// flattenedError mirrors the {formErrors, fieldErrors} shape form clients expect.
type flattenedError struct {
	FormErrors  []string            `json:"formErrors"`
	FieldErrors map[string][]string `json:"fieldErrors"`
}

func writeJSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w stdhttp.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeValid decodes the JSON body into dst and validates it. On failure
// it writes a 400 response and returns false.
func (s *Server) decodeValid(w stdhttp.ResponseWriter, r *stdhttp.Request, dst any) bool {
	flat := flattenedError{FormErrors: []string{}, FieldErrors: map[string][]string{}}
	if err := json.NewDecoder(stdhttp.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		flat.FormErrors = append(flat.FormErrors, "Invalid JSON body: "+err.Error())
		writeJSON(w, stdhttp.StatusBadRequest, map[string]any{"error": flat})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		fes := validation.FieldErrors(err)
		if fes == nil {
			flat.FormErrors = append(flat.FormErrors, err.Error())
		}
		for _, fe := range fes {
			flat.FieldErrors[fe.Field] = append(flat.FieldErrors[fe.Field], fe.Message)
		}
		writeJSON(w, stdhttp.StatusBadRequest, map[string]any{"error": flat})
		return false
	}
	return true
}

func (s *Server) listCourses(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	courses, err := s.store.ListCourses(r.Context(), listCoursesLimit)
	if err != nil {
		slog.ErrorContext(r.Context(), "list courses failed", "error", err)
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
		return
	}
	if courses == nil {
		courses = []database.Course{}
	}
	writeJSON(w, stdhttp.StatusOK, courses)
}

func (s *Server) createCourse(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	var args database.CourseArgs
	if !s.decodeValid(w, r, &args) {
		return
	}
	c, err := s.store.CreateCourse(r.Context(), args.WithDefaults())
	if err != nil {
		slog.ErrorContext(r.Context(), "create course failed", "error", err)
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, stdhttp.StatusCreated, c)
}

func (s *Server) getCourse(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, stdhttp.StatusNotFound, "Not found")
		return
	}
	c, err := s.store.GetCourse(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "get course failed", "id", id, "error", err)
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, stdhttp.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, stdhttp.StatusOK, c)
}

func (s *Server) patchCourse(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, stdhttp.StatusNotFound, "Not found")
		return
	}
	var patch database.CoursePatch
	if !s.decodeValid(w, r, &patch) {
		return
	}
	c, err := s.store.UpdateCourse(r.Context(), id, patch)
	if err != nil {
		slog.ErrorContext(r.Context(), "update course failed", "id", id, "error", err)
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
		return
	}
	if c == nil {
		writeError(w, stdhttp.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, stdhttp.StatusOK, c)
}

func (s *Server) deleteCourse(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, stdhttp.StatusNotFound, "Not found")
		return
	}
	if err := s.store.DeleteCourse(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "delete course failed", "id", id, "error", err)
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, stdhttp.StatusOK, map[string]bool{"ok": true})
}

// redirect sends the visitor to the course's newest affiliate link, or to
// the course page when it has none, and logs the click in the background.
func (s *Server) redirect(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(r.PathValue("courseId"))
	if err != nil {
		writeError(w, stdhttp.StatusNotFound, "Course not found")
		return
	}

	target, err := s.store.LatestAffiliateURL(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "affiliate lookup failed", "course_id", id, "error", err)
		target = ""
	}
	if target == "" {
		target, err = s.store.GetCourseURL(ctx, id)
		if err != nil {
			slog.WarnContext(ctx, "course url lookup failed", "course_id", id, "error", err)
			target = ""
		}
	}
	if target == "" {
		writeError(w, stdhttp.StatusNotFound, "Course not found")
		return
	}

	s.clicks.Log(ctx, clickFromRequest(r, id))
	stdhttp.Redirect(w, r, target, stdhttp.StatusFound)
}

type submissionRequest struct {
	Name    string  `json:"name" validate:"required,min=2"`
	Email   string  `json:"email" validate:"required,email"`
	Country *string `json:"country"`
	Message *string `json:"message"`
}

func (s *Server) submit(program database.Program) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		ctx := r.Context()
		if !s.limiter.Allow() {
			writeError(w, stdhttp.StatusTooManyRequests, "Too many requests")
			return
		}
		var req submissionRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		p, err := s.store.InsertPartner(ctx, database.InsertPartnerArgs{
			Program: program,
			Name:    strings.TrimSpace(req.Name),
			Email:   strings.TrimSpace(req.Email),
			Country: nonBlank(req.Country),
			Message: nonBlank(req.Message),
		})
		if err != nil {
			slog.ErrorContext(ctx, "store submission failed", "program", program, "error", err)
			writeError(w, stdhttp.StatusInternalServerError, err.Error())
			return
		}

		emailSent := false
		if s.notifier != nil {
			_, err := s.notifier.NotifySubmission(ctx, p)
			switch {
			case err == nil:
				emailSent = true
			case errors.Is(err, notify.ErrNotConfigured):
				slog.WarnContext(ctx, "submission email skipped", "program", program, "error", err)
			default:
				slog.ErrorContext(ctx, "submission email failed", "program", program, "error", err)
			}
		}
		writeJSON(w, stdhttp.StatusOK, map[string]any{"data": p, "emailSent": emailSent})
	}
}

func nonBlank(s *string) *string {
	if v := strings.TrimSpace(ptr.Deref(s, "")); v != "" {
		return ptr.To(v)
	}
	return nil
}

var sitemapPaths = []string{"/", "/foundation", "/partners", "/mentors", "/tero"}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

func (s *Server) sitemap(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range sitemapPaths {
		u := sitemapURL{Loc: s.siteURL + p, LastMod: now, ChangeFreq: "weekly", Priority: "0.7"}
		if p == "/" {
			u.Priority = "1.0"
		}
		set.URLs = append(set.URLs, u)
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(set); err != nil {
		slog.WarnContext(r.Context(), "write sitemap failed", "error", err)
	}
}

func (s *Server) health(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
	writeJSON(w, stdhttp.StatusOK, map[string]string{"status": "ok"})
}
