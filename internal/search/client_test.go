package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/meilisearch/meilisearch-go"
)

// fakeMeili answers the subset of the Meilisearch HTTP API used by Client.
type fakeMeili struct {
	mu       sync.Mutex
	indexes  map[string]bool
	tasks    map[int64]map[string]any
	nextTask int64
	docs     map[string][]json.RawMessage
	pkQuery  string
	settings []byte
	auth     string
}

func newFakeMeili(t *testing.T) (*fakeMeili, *Client) {
	t.Helper()
	f := &fakeMeili{indexes: map[string]bool{}, tasks: map[int64]map[string]any{}, docs: map[string][]json.RawMessage{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	sm := meilisearch.New(srv.URL, meilisearch.WithAPIKey("test-key"))
	return f, New(sm, srv.URL, "test-key", time.Millisecond)
}

func (f *fakeMeili) enqueue(w http.ResponseWriter, uid, typ string, taskErr map[string]any) {
	f.nextTask++
	task := map[string]any{"uid": f.nextTask, "indexUid": uid, "status": "succeeded", "type": typ}
	if taskErr != nil {
		task["status"] = "failed"
		task["error"] = taskErr
	}
	f.tasks[f.nextTask] = task
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"taskUid": f.nextTask, "indexUid": uid, "status": "enqueued", "type": typ,
	})
}

func (f *fakeMeili) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/indexes":
		var req struct {
			UID string `json:"uid"`
		}
		_ = json.Unmarshal(body, &req)
		if f.indexes[req.UID] {
			f.enqueue(w, req.UID, "indexCreation", map[string]any{
				"message": "Index `" + req.UID + "` already exists.",
				"code":    "index_already_exists",
				"type":    "invalid_request",
				"link":    "https://docs.meilisearch.com/errors#index_already_exists",
			})
			return
		}
		f.indexes[req.UID] = true
		f.enqueue(w, req.UID, "indexCreation", nil)
	case r.Method == http.MethodPatch && r.URL.Path == "/indexes/broken/settings":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Unknown field","code":"bad_request","type":"invalid_request","link":""}`))
	case r.Method == http.MethodPatch && r.URL.Path == "/indexes/courses/settings":
		f.settings = body
		f.auth = r.Header.Get("Authorization")
		f.enqueue(w, "courses", "settingsUpdate", nil)
	case r.Method == http.MethodPost && r.URL.Path == "/indexes/courses/documents":
		var docs []json.RawMessage
		_ = json.Unmarshal(body, &docs)
		f.docs["courses"] = append(f.docs["courses"], docs...)
		f.pkQuery = r.URL.Query().Get("primaryKey")
		f.enqueue(w, "courses", "documentAdditionOrUpdate", nil)
	case r.Method == http.MethodGet && len(r.URL.Path) > len("/tasks/"):
		var id int64
		_ = json.Unmarshal([]byte(r.URL.Path[len("/tasks/"):]), &id)
		task, ok := f.tasks[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(task)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestClientCreateIndexTwice(t *testing.T) {
	_, c := newFakeMeili(t)
	ctx := context.Background()

	if err := c.CreateIndex(ctx, "courses", "id"); err != nil {
		t.Fatalf("first CreateIndex: %v", err)
	}
	err := c.CreateIndex(ctx, "courses", "id")
	var ae *AlreadyExistsError
	if !errors.As(err, &ae) {
		t.Fatalf("second CreateIndex err = %v, want AlreadyExistsError", err)
	}
}

func TestClientAddDocuments(t *testing.T) {
	f, c := newFakeMeili(t)
	docs := []map[string]any{{"id": "a", "title": "Go"}, {"id": "b", "title": "SQL"}}

	uid, err := c.AddDocuments(context.Background(), "courses", docs, "id")
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if uid != 1 {
		t.Errorf("task uid = %d, want 1", uid)
	}
	if len(f.docs["courses"]) != 2 || f.pkQuery != "id" {
		t.Errorf("server saw %d docs with primaryKey=%q", len(f.docs["courses"]), f.pkQuery)
	}
}

func TestClientUpdateSettings(t *testing.T) {
	f, c := newFakeMeili(t)
	ctx := context.Background()

	if _, err := c.UpdateSettings(ctx, "courses", json.RawMessage(`{"sortableAttributes":["price"]}`)); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if f.auth != "Bearer test-key" {
		t.Errorf("authorization = %q", f.auth)
	}
	_, err := c.UpdateSettings(ctx, "broken", json.RawMessage(`{}`))
	var ie *IndexError
	if !errors.As(err, &ie) || ie.Index != "broken" {
		t.Fatalf("err = %v, want IndexError for broken", err)
	}
	var api *APIError
	if !errors.As(err, &api) || api.StatusCode != http.StatusBadRequest || api.Code != "bad_request" {
		t.Fatalf("err = %v, want APIError 400 bad_request", err)
	}
}

func TestClientUpdateSettingsSendsDocumentVerbatim(t *testing.T) {
	f, c := newFakeMeili(t)
	s, err := ParseSettings([]byte(`{"indexUid":"courses","searchableAttributes":["title"],` +
		`"facetSearch":false,"prefixSearch":"disabled","customRankingBoost":{"x":1}}`))
	if err != nil {
		t.Fatalf("ParseSettings: %v", err)
	}

	if _, err := c.UpdateSettings(context.Background(), s.IndexUID, s.Index); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(f.settings, &got); err != nil {
		t.Fatalf("server body %q: %v", f.settings, err)
	}
	if v, ok := got["facetSearch"]; !ok || v != false {
		t.Errorf("facetSearch = %v (present %v), want false", v, ok)
	}
	if got["prefixSearch"] != "disabled" {
		t.Errorf("prefixSearch = %v", got["prefixSearch"])
	}
	if boost, ok := got["customRankingBoost"].(map[string]any); !ok || boost["x"] != float64(1) {
		t.Errorf("customRankingBoost = %v", got["customRankingBoost"])
	}
	if _, ok := got["indexUid"]; ok {
		t.Error("indexUid forwarded in settings body")
	}
}
