package main

import "testing"

func TestFormatCounts(t *testing.T) {
	got := formatCounts(map[string]any{"saved": 2.0, "http_error": 1.0})
	if got != "{http_error=1 saved=2}" {
		t.Fatalf("unexpected %q", got)
	}
	if formatCounts(nil) != "{}" {
		t.Fatalf("nil counts")
	}
}

func TestGetString(t *testing.T) {
	m := map[string]any{"a": 1, "b": "x"}
	if getString(m, "a", "b") != "x" {
		t.Fatalf("expected fallback to b")
	}
	if getString(m, "zzz") != "" {
		t.Fatalf("expected empty")
	}
}
