package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// RequiredColumns must be present in the header of every ingest file.
var RequiredColumns = []string{"provider_slug", "provider_name", "provider_url", "external_id", "title"}

// Row is one CSV record keyed by header name. Line is the 1-based line the
// record starts on.
type Row struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value of column key, or "" when absent.
func (r Row) Get(key string) string { return strings.TrimSpace(r.Values[key]) }

// ReadRows parses the CSV file at path. In strict mode every record must
// have as many fields as the header; otherwise missing trailing fields read
// as "" and extra fields are ignored.
func ReadRows(path string, strict bool) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()
	rows, err := parseRows(f, strict)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
			return nil, pe
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	return rows, nil
}

func parseRows(r io.Reader, strict bool) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if strict {
		cr.FieldsPerRecord = 0
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ParseError{Line: 1, Err: errors.New("empty file")}
	}
	if err != nil {
		return nil, csvError(err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	if err := checkHeader(header); err != nil {
		return nil, &ParseError{Line: 1, Err: err}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}
		values := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(rec) {
				values[key] = rec[i]
			} else {
				values[key] = ""
			}
		}
		rows = append(rows, Row{Line: line, Values: values})
	}
	return rows, nil
}

func checkHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		seen[h] = true
	}
	var missing []string
	for _, c := range RequiredColumns {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func csvError(err error) error {
	var ce *csv.ParseError
	if errors.As(err, &ce) {
		return &ParseError{Line: ce.Line, Err: ce.Err}
	}
	return &ParseError{Err: err}
}
