package util

import (
	"errors"
	"testing"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Informe de Análisis Q1":   "informe-de-analisis-q1",
		"  Ventas -- Año 2024!! ":  "ventas-ano-2024",
		"Çà et là: résumé":         "ca-et-la-resume",
		"***":                      "",
		"Already-a-slug":           "already-a-slug",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUniqueSlugAppendsSuffix(t *testing.T) {
	used := map[string]bool{"q1": true, "q1-2": true}
	got, err := UniqueSlug("q1", func(s string) (bool, error) { return used[s], nil })
	if err != nil {
		t.Fatalf("unique slug: %v", err)
	}
	if got != "q1-3" {
		t.Fatalf("slug = %q, want q1-3", got)
	}
}

func TestUniqueSlugPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := UniqueSlug("q1", func(string) (bool, error) { return false, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Excerpt("ñandú grande", 2); got != "ñ…" {
		t.Fatalf("got %q", got)
	}
}
