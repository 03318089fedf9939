package filter

import (
	"errors"
	"testing"
)

func TestFilter_Allows_IncludeMode(t *testing.T) {
	opts := Options{
		IncludeHeader: []string{"Subject: Invoice"},
	}
	f, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	header := []byte("Subject: Invoice 2024-01\nFrom: billing@example.com\n")
	body := []byte("Please find the invoice attached")

	if !f.Allows(header, body) {
		t.Error("Expected message to be allowed (header matches)")
	}

	headerNoMatch := []byte("Subject: Newsletter\nFrom: news@example.com\n")
	if f.Allows(headerNoMatch, body) {
		t.Error("Expected message to be filtered out (header doesn't match)")
	}
}

func TestFilter_Allows_ExcludeMode(t *testing.T) {
	opts := Options{
		ExcludeHeader: []string{"(?i)x-spam-flag: yes"},
	}
	f, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	header := []byte("Subject: Normal Message\nFrom: sender@example.com\n")
	body := []byte("This is the message body")

	if !f.Allows(header, body) {
		t.Error("Expected message to be allowed (no spam flag)")
	}

	headerSpam := []byte("Subject: Win\nX-Spam-Flag: YES\n")
	if f.Allows(headerSpam, body) {
		t.Error("Expected message to be filtered out (spam flag set)")
	}
}

func TestFilter_MutuallyExclusive(t *testing.T) {
	opts := Options{
		IncludeHeader: []string{"test"},
		ExcludeBody:   []string{"spam"},
	}
	_, err := New(opts)
	if !errors.Is(err, ErrModeConflict) {
		t.Errorf("Expected ErrModeConflict, got %v", err)
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	_, err := New(Options{IncludeBody: []string{"(unclosed"}})
	if err == nil {
		t.Error("Expected error for invalid regex")
	}
}

func TestFilter_NoFilters(t *testing.T) {
	f, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows([]byte("Subject: Any Message\n"), []byte("Any body content")) {
		t.Error("Expected message to be allowed when no filters are active")
	}

	var nilFilter *Filter
	if !nilFilter.Allows(nil, nil) {
		t.Error("Expected nil filter to allow everything")
	}
}

func TestFilter_BodyFiltering(t *testing.T) {
	f, err := New(Options{IncludeBody: []string{"important"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	header := []byte("Subject: Message\n")
	if !f.Allows(header, []byte("This is an important message")) {
		t.Error("Expected message to be allowed (body matches)")
	}
	if f.Allows(header, []byte("This is a regular message")) {
		t.Error("Expected message to be filtered out (body doesn't match)")
	}
}

func TestFilter_GetStats(t *testing.T) {
	f, err := New(Options{ExcludeHeader: []string{"spam", "  ", "phish"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	f.Allows([]byte("Subject: spam and phish"), nil)
	f.Allows([]byte("Subject: spam"), nil)
	f.Allows([]byte("Subject: fine"), nil)

	stats := f.GetStats()
	if len(stats.ExcludeHeaderPatterns) != 2 {
		t.Fatalf("ExcludeHeaderPatterns = %v, want 2 patterns", stats.ExcludeHeaderPatterns)
	}
	if got := stats.ExcludeHeaderHits["spam"]; got != 2 {
		t.Errorf("spam hits = %d, want 2", got)
	}
	if got := stats.ExcludeHeaderHits["phish"]; got != 1 {
		t.Errorf("phish hits = %d, want 1", got)
	}

	stats.ExcludeHeaderHits["spam"] = 100
	if got := f.GetStats().ExcludeHeaderHits["spam"]; got != 2 {
		t.Errorf("GetStats must return a copy, got %d", got)
	}
}
