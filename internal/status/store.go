package status

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/neillmiller2/Verbatim/internal/domain"
)

// StatusVersion is the persisted record format identifier.
const StatusVersion = "1.0"

// Store defines persistence operations for the onboarding record.
type Store interface {
	// Load returns the persisted record and whether one was ever saved.
	Load() (domain.OnboardingStatus, bool, error)
	Save(domain.OnboardingStatus) error
	Clear() error
}

// JSONStore persists the onboarding record in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed onboarding status store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// DefaultStatus returns the baseline record for a first launch.
func DefaultStatus() domain.OnboardingStatus {
	return domain.OnboardingStatus{
		Version:     StatusVersion,
		Completed:   false,
		CurrentStep: 1,
		Permissions: domain.PermissionSnapshot{
			Microphone:  domain.PermissionNotDetermined,
			SystemAudio: domain.PermissionNotDetermined,
		},
		ModelStatus: domain.ModelStatus{
			Transcription: domain.ModelNotDownloaded,
			Summary:       domain.ModelNotDownloaded,
		},
		LastUpdated: time.Now().UTC(),
	}
}

// Load reads the record from disk or returns defaults when missing.
func (s *JSONStore) Load() (domain.OnboardingStatus, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultStatus(), false, nil
		}

		return DefaultStatus(), false, err
	}

	var record domain.OnboardingStatus
	if err := json.Unmarshal(data, &record); err != nil {
		return DefaultStatus(), false, err
	}

	return record, true, nil
}

// Save writes the record as indented JSON and creates parent directories.
func (s *JSONStore) Save(record domain.OnboardingStatus) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// Clear removes the persisted record, ignoring a missing file.
func (s *JSONStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
