package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoIdentifier is returned when the store accepts a write but reports no id.
var ErrNoIdentifier = errors.New("store returned no identifier")

// ParseError reports a CSV file that could not be read or tokenized.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e FieldError) String() string {
	if e.Value == "" {
		return e.Field + " " + e.Reason
	}
	return fmt.Sprintf("%s %q %s", e.Field, e.Value, e.Reason)
}

// RecordError collects every field-level problem of a single row.
type RecordError struct {
	Line   int
	Fields []FieldError
}

func (e *RecordError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("line %d: %s", e.Line, strings.Join(parts, "; "))
}

// ValidationError aborts a run before any write when rows are invalid.
type ValidationError struct {
	Records []*RecordError
}

func (e *ValidationError) Error() string {
	if len(e.Records) == 1 {
		return "invalid row: " + e.Records[0].Error()
	}
	return fmt.Sprintf("%d invalid rows, first: %v", len(e.Records), e.Records[0])
}

// StoreWriteError is a fatal provider or course write failure.
type StoreWriteError struct {
	Line   int
	Entity string
	Key    string
	Err    error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("line %d: write %s %s failed: %v", e.Line, e.Entity, e.Key, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// RowWarning is a non-fatal problem recorded while ingesting a row.
type RowWarning struct {
	Line    int
	Message string
	Err     error
}

func (w RowWarning) String() string {
	if w.Err != nil {
		return fmt.Sprintf("line %d: %s: %v", w.Line, w.Message, w.Err)
	}
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}
