// Package notify sends operator emails for stored form submissions.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/resend/resend-go/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"edterm.com/edterm/internal/config"
	"edterm.com/edterm/internal/database"
)

// ErrNotConfigured is returned when no email API key was provided.
var ErrNotConfigured = errors.New("email notifications are not configured")

// Sender is implemented by resend.EmailsSvc.
type Sender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type Mailer struct {
	emails Sender
	from   string
	to     []string
	md     goldmark.Markdown
}

// NewForConfig returns a Mailer backed by Resend. Without RESEND_API_KEY
// the Mailer is disabled and every send returns ErrNotConfigured.
func NewForConfig(cfg *config.Config) *Mailer {
	key := cfg.GetResendAPIKey()
	if key == "" {
		slog.Warn("RESEND_API_KEY is not configured, submission emails are disabled")
		return New(nil, cfg.GetNotifyFrom(), cfg.GetNotifyTo())
	}
	return New(resend.NewClient(key).Emails, cfg.GetNotifyFrom(), cfg.GetNotifyTo())
}

func New(emails Sender, from string, to []string) *Mailer {
	return &Mailer{
		emails: emails,
		from:   from,
		to:     to,
		md:     goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps())),
	}
}

// Enabled reports whether sends reach the email service.
func (m *Mailer) Enabled() bool { return m != nil && m.emails != nil }

// NotifySubmission emails the operators about a stored submission and
// returns the provider's message id.
func (m *Mailer) NotifySubmission(ctx context.Context, p *database.Partner) (string, error) {
	ctx, span := otel.Tracer("edterm/notify").Start(ctx, "Mailer.NotifySubmission")
	span.SetAttributes(attribute.String("program", string(p.Program)))
	defer span.End()

	if !m.Enabled() {
		return "", ErrNotConfigured
	}
	body, err := m.render(p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	resp, err := m.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      m.to,
		Subject: subjects[p.Program],
		Html:    body,
		ReplyTo: p.Email,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("send submission email failed: %w", err)
	}
	slog.InfoContext(ctx, "submission email sent", "program", p.Program, "id", resp.Id)
	return resp.Id, nil
}

var subjects = map[database.Program]string{
	database.ProgramMentor:  "New Mentor Submission - Shell-less Mentors Program",
	database.ProgramPartner: "New Partner Submission - EdTerm Partners",
}

var headings = map[database.Program]string{
	database.ProgramMentor:  "New mentor submission received",
	database.ProgramPartner: "New partner submission received",
}

var submissionTmpl = template.Must(template.New("submission").Parse(`<div style="font-family:Arial, sans-serif; line-height:1.6; color:#0f172a;">
<h2 style="margin-bottom:16px;">{{.Heading}}</h2>
<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
{{- if .Country}}
<p><strong>Country:</strong> {{.Country}}</p>
{{- end}}
{{- if .Message}}
<div style="margin-top:16px;"><strong>Message:</strong>
{{.Message}}</div>
{{- end}}
<hr style="margin:24px 0; border:none; border-top:1px solid #e2e8f0;" />
<p style="font-size:13px; color:#475569;">This email was sent automatically after a new submission was stored.</p>
</div>
`))

func (m *Mailer) render(p *database.Partner) (string, error) {
	data := struct {
		Heading, Name, Email, Country string
		Message                       template.HTML
	}{
		Heading: headings[p.Program],
		Name:    p.Name,
		Email:   p.Email,
	}
	if p.Country != nil {
		data.Country = *p.Country
	}
	if p.Message != nil && *p.Message != "" {
		var buf bytes.Buffer
		if err := m.md.Convert([]byte(*p.Message), &buf); err != nil {
			return "", fmt.Errorf("render submission message failed: %w", err)
		}
		// goldmark omits raw HTML unless html.WithUnsafe is set.
		data.Message = template.HTML(buf.String())
	}
	var out bytes.Buffer
	if err := submissionTmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render submission email failed: %w", err)
	}
	return out.String(), nil
}
