package ingest

import (
	"errors"
	"testing"

	"edterm.com/edterm/internal/database"
)

func validRow(overrides map[string]string) Row {
	values := map[string]string{
		"provider_slug": "coursera",
		"provider_name": "Coursera",
		"provider_url":  "https://www.coursera.org",
		"external_id":   "abc123",
		"title":         "Machine Learning",
	}
	for k, v := range overrides {
		values[k] = v
	}
	return Row{Line: 7, Values: values}
}

func TestParseRecordDefaults(t *testing.T) {
	rec, err := ParseRecord(validRow(nil))
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if rec.Currency != "USD" || rec.Language != "en" || rec.Level != database.LevelAll {
		t.Errorf("defaults = %s/%s/%s", rec.Currency, rec.Language, rec.Level)
	}
	if rec.RatingsCount != 0 || rec.Price != nil || rec.Rating != nil || rec.DurationHours != nil {
		t.Errorf("numeric fields should be empty: %+v", rec)
	}
	if rec.AffiliateNetwork != "custom" {
		t.Errorf("network = %q, want custom", rec.AffiliateNetwork)
	}
	if rec.Description != nil || rec.URL != nil {
		t.Errorf("optional text fields should be nil")
	}
	if rec.Line != 7 {
		t.Errorf("line = %d", rec.Line)
	}
}

func TestParseRecordCoercion(t *testing.T) {
	rec, err := ParseRecord(validRow(map[string]string{
		"price":          " 49.90 ",
		"rating":         "4.7",
		"ratings_count":  "1200",
		"duration_hours": "12.5",
		"level":          "Beginner",
		"currency":       "eur",
		"published_at":   "2024-03-01",
		"categories":     "AI & Data, Leadership",
	}))
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if rec.Price == nil || rec.Price.String() != "49.9" {
		t.Errorf("price = %v", rec.Price)
	}
	if rec.Rating == nil || *rec.Rating != 4.7 {
		t.Errorf("rating = %v", rec.Rating)
	}
	if rec.RatingsCount != 1200 || rec.DurationHours == nil || *rec.DurationHours != 12.5 {
		t.Errorf("counts = %d / %v", rec.RatingsCount, rec.DurationHours)
	}
	if rec.Level != database.LevelBeginner || rec.Currency != "eur" {
		t.Errorf("level/currency = %s/%s", rec.Level, rec.Currency)
	}
	if rec.PublishedAt == nil || rec.PublishedAt.Year() != 2024 {
		t.Errorf("published_at = %v", rec.PublishedAt)
	}
	if len(rec.Categories) != 2 {
		t.Errorf("categories = %q", rec.Categories)
	}
}

func TestParseRecordIsFree(t *testing.T) {
	cases := map[string]bool{"true": true, "TRUE": true, " True ": true, "false": false, "yes": false, "1": false, "": false}
	for in, want := range cases {
		rec, err := ParseRecord(validRow(map[string]string{"is_free": in}))
		if err != nil {
			t.Fatalf("is_free=%q: %v", in, err)
		}
		if rec.IsFree != want {
			t.Errorf("is_free=%q: got %v, want %v", in, rec.IsFree, want)
		}
	}
}

func TestParseRecordCollectsAllFieldErrors(t *testing.T) {
	_, err := ParseRecord(validRow(map[string]string{
		"title":         "",
		"price":         "NaN",
		"rating":        "Inf",
		"ratings_count": "many",
		"level":         "expert",
		"url":           "not a url",
		"published_at":  "yesterday",
	}))
	var re *RecordError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RecordError", err)
	}
	if re.Line != 7 {
		t.Errorf("line = %d", re.Line)
	}
	got := map[string]bool{}
	for _, f := range re.Fields {
		got[f.Field] = true
	}
	for _, field := range []string{"title", "price", "rating", "ratings_count", "level", "url", "published_at"} {
		if !got[field] {
			t.Errorf("missing field error for %s in %v", field, re)
		}
	}
}

func TestParseRecordRejectsNegativePrice(t *testing.T) {
	_, err := ParseRecord(validRow(map[string]string{"price": "-1"}))
	var re *RecordError
	if !errors.As(err, &re) || len(re.Fields) != 1 || re.Fields[0].Field != "price" {
		t.Fatalf("err = %v, want single price error", err)
	}
}

func TestParseRecordCurrencyPassesThrough(t *testing.T) {
	for _, currency := range []string{"EUR", "usd", "USDT"} {
		rec, err := ParseRecord(validRow(map[string]string{"currency": currency}))
		if err != nil {
			t.Fatalf("currency %q: %v", currency, err)
		}
		if rec.Currency != currency {
			t.Errorf("currency = %q, want %q", rec.Currency, currency)
		}
	}
}

func TestParseRecordRatingsCountNotation(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"1200", 1200, true},
		{"1200.0", 1200, true},
		{"1.2e3", 1200, true},
		{"1200.5", 0, false},
		{"3000000000", 0, false},
		{"NaN", 0, false},
	}
	for _, tc := range cases {
		rec, err := ParseRecord(validRow(map[string]string{"ratings_count": tc.in}))
		if !tc.ok {
			var re *RecordError
			if !errors.As(err, &re) || re.Fields[0].Field != "ratings_count" {
				t.Errorf("%s: err = %v, want ratings_count error", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tc.in, err)
			continue
		}
		if rec.RatingsCount != tc.want {
			t.Errorf("%s: ratings_count = %d, want %d", tc.in, rec.RatingsCount, tc.want)
		}
	}
}

func TestParseRecordRejectsOutOfRangeNumbers(t *testing.T) {
	cases := []struct {
		field, value string
	}{
		{"price", "10000000000"},
		{"price", "123456789012.5"},
		{"duration_hours", "1000000"},
		{"duration_hours", "1e9"},
	}
	for _, tc := range cases {
		_, err := ParseRecord(validRow(map[string]string{tc.field: tc.value}))
		var re *RecordError
		if !errors.As(err, &re) || len(re.Fields) != 1 || re.Fields[0].Field != tc.field {
			t.Errorf("%s=%s: err = %v, want single %s error", tc.field, tc.value, err, tc.field)
		}
	}

	rec, err := ParseRecord(validRow(map[string]string{"price": "9999999999.99", "duration_hours": "999999.99"}))
	if err != nil {
		t.Fatalf("largest storable values rejected: %v", err)
	}
	if rec.Price.String() != "9999999999.99" || *rec.DurationHours != 999999.99 {
		t.Errorf("price/duration = %v/%v", rec.Price, *rec.DurationHours)
	}
}
