package search

import (
	"encoding/json"
	"fmt"
	"os"
)

// Settings is the index bootstrap document: the index identity plus the
// index configuration applied on every bootstrap.
type Settings struct {
	IndexUID   string
	PrimaryKey string
	// Index holds every other key of the document, forwarded untouched.
	Index      json.RawMessage
}

// LoadSettings reads a JSON settings file of the form
// {"indexUid": "...", "primaryKey": "...", <index settings>...}.
func LoadSettings(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read search settings: %w", err)
	}
	return ParseSettings(b)
}

func ParseSettings(b []byte) (*Settings, error) {
	var head struct {
		IndexUID   string `json:"indexUid"`
		PrimaryKey string `json:"primaryKey"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("decode search settings: %w", err)
	}
	if head.IndexUID == "" {
		return nil, fmt.Errorf("search settings: indexUid is required")
	}

	var rest map[string]json.RawMessage
	if err := json.Unmarshal(b, &rest); err != nil {
		return nil, fmt.Errorf("decode index settings: %w", err)
	}
	delete(rest, "indexUid")
	delete(rest, "primaryKey")
	index, err := json.Marshal(rest)
	if err != nil {
		return nil, fmt.Errorf("encode index settings: %w", err)
	}

	s := &Settings{IndexUID: head.IndexUID, PrimaryKey: head.PrimaryKey, Index: index}
	if s.PrimaryKey == "" {
		s.PrimaryKey = DefaultPrimaryKey
	}
	return s, nil
}
