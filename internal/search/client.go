package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"edterm.com/edterm/internal/config"
)

// Client is a thin wrapper around the Meilisearch service manager exposing
// the three operations the catalog needs. Settings updates bypass the typed
// SDK call so the settings document reaches the server unchanged.
type Client struct {
	sm     meilisearch.ServiceManager
	host   string
	apiKey string
	hc     *http.Client
	poll   time.Duration
}

// NewForConfig connects to MEILI_HOST with MEILI_MASTER_KEY. Both must be set.
func NewForConfig(cfg *config.Config) (*Client, error) {
	if err := cfg.RequireSearch(); err != nil {
		return nil, err
	}
	sm := meilisearch.New(cfg.GetSearchHost(), meilisearch.WithAPIKey(cfg.GetSearchAPIKey()))
	return New(sm, cfg.GetSearchHost(), cfg.GetSearchAPIKey(), cfg.GetSearchTaskPollInterval()), nil
}

// New wraps sm. host and apiKey must point at the same server as sm.
func New(sm meilisearch.ServiceManager, host, apiKey string, poll time.Duration) *Client {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Client{
		sm:     sm,
		host:   strings.TrimRight(host, "/"),
		apiKey: apiKey,
		hc: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		poll: poll,
	}
}

func startSpan(ctx context.Context, name, index string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("edterm/search").Start(ctx, name)
	span.SetAttributes(attribute.String("index", index))
	return ctx, span
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// CreateIndex creates uid with the given primary key and waits for the
// task. An existing index yields *AlreadyExistsError.
func (c *Client) CreateIndex(ctx context.Context, uid, primaryKey string) error {
	ctx, span := startSpan(ctx, "Client.CreateIndex", uid)
	defer span.End()

	info, err := c.sm.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{Uid: uid, PrimaryKey: primaryKey})
	if err == nil {
		err = c.wait(ctx, info.TaskUID)
	}
	if err != nil {
		if IsAlreadyExists(err) {
			return &AlreadyExistsError{Index: uid}
		}
		return fail(span, &IndexError{Op: "create index", Index: uid, Err: err})
	}
	return nil
}

// UpdateSettings sends the settings JSON object as-is and waits for the task.
func (c *Client) UpdateSettings(ctx context.Context, uid string, settings json.RawMessage) (int64, error) {
	ctx, span := startSpan(ctx, "Client.UpdateSettings", uid)
	defer span.End()

	taskUID, err := c.patchSettings(ctx, uid, settings)
	if err != nil {
		return 0, fail(span, &IndexError{Op: "update settings", Index: uid, Err: err})
	}
	span.SetAttributes(attribute.Int64("task_uid", taskUID))
	if err := c.wait(ctx, taskUID); err != nil {
		return taskUID, fail(span, &IndexError{Op: "update settings", Index: uid, Err: err})
	}
	return taskUID, nil
}

func (c *Client) patchSettings(ctx context.Context, uid string, body json.RawMessage) (int64, error) {
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	endpoint := c.host + "/indexes/" + url.PathEscape(uid) + "/settings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read settings response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return 0, apiErr
	}
	var info struct {
		TaskUID int64 `json:"taskUid"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return 0, fmt.Errorf("decode settings task: %w", err)
	}
	return info.TaskUID, nil
}

// AddDocuments enqueues docs for indexing and returns the task uid without
// waiting. Documents replace existing ones with the same primary key.
func (c *Client) AddDocuments(ctx context.Context, uid string, docs any, primaryKey string) (int64, error) {
	ctx, span := startSpan(ctx, "Client.AddDocuments", uid)
	defer span.End()

	info, err := c.sm.Index(uid).AddDocumentsWithContext(ctx, docs, primaryKey)
	if err != nil {
		return 0, fail(span, &IndexError{Op: "add documents", Index: uid, Err: err})
	}
	span.SetAttributes(attribute.Int64("task_uid", info.TaskUID))
	return info.TaskUID, nil
}

func (c *Client) wait(ctx context.Context, taskUID int64) error {
	task, err := c.sm.WaitForTaskWithContext(ctx, taskUID, c.poll)
	if err != nil {
		return err
	}
	if task.Status == meilisearch.TaskStatusFailed {
		return &TaskFailedError{TaskUID: taskUID, Code: task.Error.Code, Message: task.Error.Message}
	}
	return nil
}
