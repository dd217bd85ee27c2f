package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestDownloadURLToFileReportsMonotonicProgress streams a payload with a
// known length and checks the percentage sequence.
func TestDownloadURLToFileReportsMonotonicProgress(t *testing.T) {
	payload := strings.Repeat("x", 64*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "65536")
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "models", "weights.gguf")
	var pcts []int
	err := downloadURLToFile(context.Background(), target, server.URL, func(pct int) {
		pcts = append(pcts, pct)
	})
	if err != nil {
		t.Fatalf("download error = %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if len(data) != len(payload) {
		t.Fatalf("len = %d, want %d", len(data), len(payload))
	}

	if len(pcts) == 0 {
		t.Fatal("expected progress callbacks")
	}
	last := 0
	for _, pct := range pcts {
		if pct <= last && pct != 100 {
			t.Fatalf("progress not monotonic: %v", pcts)
		}
		last = pct
	}
	if last != 100 {
		t.Fatalf("final pct = %d, want 100", last)
	}

	if _, err := os.Stat(target + ".download"); !os.IsNotExist(err) {
		t.Fatal("temp file must be removed after success")
	}
}

// TestDownloadURLToFileRejectsHTTPErrors keeps the target untouched.
func TestDownloadURLToFileRejectsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "weights.gguf")
	if err := downloadURLToFile(context.Background(), target, server.URL, nil); err == nil {
		t.Fatal("expected error for 404 response")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatal("failed download must not create the target file")
	}
}

// TestProgressWriterUnknownLength suppresses percentages without a total.
func TestProgressWriterUnknownLength(t *testing.T) {
	var pcts []int
	w := &progressWriter{total: -1, onProgress: func(pct int) { pcts = append(pcts, pct) }}
	if _, err := w.Write(make([]byte, 1024)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(pcts) != 0 {
		t.Fatalf("pcts = %v, want none without content length", pcts)
	}
}
