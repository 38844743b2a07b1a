package helpers

import (
	"testing"
	"time"
)

func TestParseFlexibleDate(t *testing.T) {
	cases := map[string]time.Time{
		"2026-08-30":       time.Date(2026, 8, 30, 0, 0, 0, 0, time.Local),
		"2026-8-5":         time.Date(2026, 8, 5, 0, 0, 0, 0, time.Local),
		"30.08.2026":       time.Date(2026, 8, 30, 0, 0, 0, 0, time.Local),
		"2026-08-30 14:05": time.Date(2026, 8, 30, 14, 5, 0, 0, time.Local),
	}
	for input, want := range cases {
		got, ok := ParseFlexibleDate(input)
		if !ok {
			t.Fatalf("parse %q failed", input)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q = %v, want %v", input, got, want)
		}
	}
}

func TestParseFlexibleDateRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "  ", "yesterday", "30/08/2026"} {
		if _, ok := ParseFlexibleDate(input); ok {
			t.Fatalf("parse %q unexpectedly succeeded", input)
		}
	}
}
