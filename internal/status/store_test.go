package status

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neillmiller2/Verbatim/internal/domain"
)

// TestDefaultStatus verifies the documented first-launch record.
func TestDefaultStatus(t *testing.T) {
	record := DefaultStatus()
	if record.Version != StatusVersion {
		t.Fatalf("version = %q, want %q", record.Version, StatusVersion)
	}
	if record.Completed {
		t.Fatal("default record must not be completed")
	}
	if record.CurrentStep != 1 {
		t.Fatalf("currentStep = %d, want 1", record.CurrentStep)
	}
	if record.Permissions.Microphone != domain.PermissionNotDetermined {
		t.Fatalf("microphone = %s, want not_determined", record.Permissions.Microphone)
	}
	if record.Permissions.SystemAudio != domain.PermissionNotDetermined {
		t.Fatalf("systemAudio = %s, want not_determined", record.Permissions.SystemAudio)
	}
	if record.LastUpdated.IsZero() {
		t.Fatal("expected lastUpdated to be stamped")
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "onboarding-status.json")
	store := NewJSONStore(path)

	record, persisted, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if persisted {
		t.Fatal("missing file must not report a persisted record")
	}
	if record.Completed {
		t.Fatal("defaults must not be completed")
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted record fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status", "onboarding-status.json")
	store := NewJSONStore(path)

	want := DefaultStatus()
	want.Completed = true
	want.CurrentStep = 5
	want.Permissions.Microphone = domain.PermissionAuthorized
	want.Permissions.SystemAudio = domain.PermissionDenied
	want.ModelStatus.Transcription = domain.ModelDownloaded
	want.LastUpdated = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, persisted, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !persisted {
		t.Fatal("expected persisted record after save")
	}
	if got != want {
		t.Fatalf("record = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadCorruptFileFallsBack checks parse failure handling.
func TestJSONStoreLoadCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onboarding-status.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	record, persisted, err := store.Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if persisted {
		t.Fatal("corrupt file must not report a persisted record")
	}
	if record.Version != StatusVersion {
		t.Fatalf("expected defaults on corrupt file, got %+v", record)
	}
}

// TestJSONStoreClear removes the record and tolerates a missing file.
func TestJSONStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onboarding-status.json")
	store := NewJSONStore(path)

	if err := store.Save(DefaultStatus()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() on missing file error = %v", err)
	}
}
