package dbsetup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Scopes for model configuration rows.
const (
	scopeSummary    = "summary"
	scopeTranscript = "transcript"
)

// ModelConfig is one persisted model selection.
type ModelConfig struct {
	Scope        string
	Provider     string
	Model        string
	WhisperModel string
	Endpoint     string
	UpdatedAt    time.Time
}

// SettingsRepository persists model configuration chosen during onboarding.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository wraps an open application database.
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// EnsureSchema creates the settings tables when missing.
func (r *SettingsRepository) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS model_settings (
	scope         TEXT PRIMARY KEY,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	whisper_model TEXT NOT NULL DEFAULT '',
	endpoint      TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMP NOT NULL
);`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create model_settings table: %w", err)
	}
	return nil
}

// SaveModelConfig upserts the summarization model selection.
func (r *SettingsRepository) SaveModelConfig(ctx context.Context, provider, model, whisperModel, endpoint string) error {
	return r.upsert(ctx, ModelConfig{
		Scope:        scopeSummary,
		Provider:     provider,
		Model:        model,
		WhisperModel: whisperModel,
		Endpoint:     endpoint,
	})
}

// SaveTranscriptConfig upserts the transcription model selection.
func (r *SettingsRepository) SaveTranscriptConfig(ctx context.Context, provider, model string) error {
	return r.upsert(ctx, ModelConfig{
		Scope:    scopeTranscript,
		Provider: provider,
		Model:    model,
	})
}

// ModelConfig loads one configuration row by scope.
func (r *SettingsRepository) ModelConfig(ctx context.Context, scope string) (ModelConfig, error) {
	const query = `
SELECT scope, provider, model, whisper_model, endpoint, updated_at
FROM model_settings WHERE scope = ?;`

	var config ModelConfig
	err := r.db.QueryRowContext(ctx, query, scope).Scan(
		&config.Scope,
		&config.Provider,
		&config.Model,
		&config.WhisperModel,
		&config.Endpoint,
		&config.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelConfig{}, fmt.Errorf("no model config for scope %s", scope)
	}
	if err != nil {
		return ModelConfig{}, fmt.Errorf("load model config: %w", err)
	}
	return config, nil
}

func (r *SettingsRepository) upsert(ctx context.Context, config ModelConfig) error {
	const statement = `
INSERT INTO model_settings (scope, provider, model, whisper_model, endpoint, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(scope) DO UPDATE SET
	provider = excluded.provider,
	model = excluded.model,
	whisper_model = excluded.whisper_model,
	endpoint = excluded.endpoint,
	updated_at = excluded.updated_at;`

	_, err := r.db.ExecContext(ctx, statement,
		config.Scope,
		config.Provider,
		config.Model,
		config.WhisperModel,
		config.Endpoint,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save %s model config: %w", config.Scope, err)
	}
	return nil
}
