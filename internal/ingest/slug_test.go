package ingest

import (
	"reflect"
	"testing"
)

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"AI & Data", "ai-data"},
		{"Leadership", "leadership"},
		{"  Web   Development ", "web-development"},
		{"C++ / Rust", "c-rust"},
		{"--Already-Slugged--", "already-slugged"},
		{"Café", "caf"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitCategories(t *testing.T) {
	got := SplitCategories(" AI & Data, ,Leadership,, ")
	want := []string{"AI & Data", "Leadership"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitCategories = %q, want %q", got, want)
	}
	if got := SplitCategories(""); got != nil {
		t.Errorf("SplitCategories(\"\") = %q, want nil", got)
	}
}
