package search

import (
	"errors"
	"fmt"

	"github.com/meilisearch/meilisearch-go"
)

// codeIndexAlreadyExists is the Meilisearch error code for a duplicate index.
const codeIndexAlreadyExists = "index_already_exists"

// IndexError wraps a failed search index operation.
type IndexError struct {
	Op    string
	Index string
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("search %s on index %q failed: %v", e.Op, e.Index, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// AlreadyExistsError is returned by CreateIndex when the index exists.
type AlreadyExistsError struct {
	Index string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("search index %q already exists", e.Index)
}

// APIError is an error response returned by the search server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search api error %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

// TaskFailedError reports a task that Meilisearch accepted but could not apply.
type TaskFailedError struct {
	TaskUID int64
	Code    string
	Message string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %d failed: %s (%s)", e.TaskUID, e.Message, e.Code)
}

// IsAlreadyExists reports whether err means the index is already there,
// whether it surfaced as an API error or as a failed creation task.
func IsAlreadyExists(err error) bool {
	var ae *AlreadyExistsError
	if errors.As(err, &ae) {
		return true
	}
	var me *meilisearch.Error
	if errors.As(err, &me) && me.MeilisearchApiError.Code == codeIndexAlreadyExists {
		return true
	}
	var api *APIError
	if errors.As(err, &api) && api.Code == codeIndexAlreadyExists {
		return true
	}
	var te *TaskFailedError
	return errors.As(err, &te) && te.Code == codeIndexAlreadyExists
}
