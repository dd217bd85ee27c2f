package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/neillmiller2/Verbatim/internal/domain"
)

// ErrUnknownModel is returned for names absent from the catalog.
var ErrUnknownModel = errors.New("unknown model")

// Engine manages local AI model files: readiness checks, recommendations,
// and downloads into a single models directory.
type Engine struct {
	mu       sync.Mutex
	dir      string
	logger   *zap.Logger
	download func(ctx context.Context, dst, url string, onProgress func(int)) error
	ready    map[string]bool
}

// NewEngine creates an engine storing models under dir.
func NewEngine(dir string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		dir:      dir,
		logger:   logger,
		download: downloadURLToFile,
		ready:    map[string]bool{},
	}
}

// DefaultModelsDir returns the models directory under the user profile.
func DefaultModelsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(homeDir, ".verbatim", "models"), nil
}

// Init prepares the models directory.
func (e *Engine) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}
	return nil
}

// ModelPath returns where one catalog entry lives on disk.
func (e *Engine) ModelPath(option domain.ModelOption) string {
	return filepath.Join(e.dir, option.FileName)
}

// IsModelReady reports whether the named model file is present. With
// refresh=false a cached answer may be returned; refresh=true re-stats disk.
func (e *Engine) IsModelReady(name string, refresh bool) (bool, error) {
	option, found := ModelByID(name)
	if !found {
		return false, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !refresh {
		if ready, cached := e.ready[option.ID]; cached {
			return ready, nil
		}
	}

	ready := e.fileExists(option)
	e.ready[option.ID] = ready
	return ready, nil
}

// HasAvailableModels reports whether any summarization model is on disk.
func (e *Engine) HasAvailableModels() bool {
	_, found := e.AvailableModel()
	return found
}

// AvailableModel returns the first summarization model already present
// locally, in catalog order. Any compatible model counts, not only the
// platform-recommended one.
func (e *Engine) AvailableModel() (domain.ModelOption, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, option := range SummaryModels() {
		if e.fileExists(option) {
			option.Downloaded = true
			option.LocalPath = filepath.Join(e.dir, option.FileName)
			return option, true
		}
	}
	return domain.ModelOption{}, false
}

// RecommendedModel returns the platform-appropriate summarization preset.
func (e *Engine) RecommendedModel() domain.ModelOption {
	return recommendedForPlatform(goruntime.GOOS, goruntime.GOARCH)
}

// Models returns the catalog annotated with local availability.
func (e *Engine) Models() []domain.ModelOption {
	e.mu.Lock()
	defer e.mu.Unlock()

	models := Catalog()
	for i := range models {
		if e.fileExists(models[i]) {
			models[i].Downloaded = true
			models[i].LocalPath = filepath.Join(e.dir, models[i].FileName)
		}
	}
	return models
}

// Download fetches the named model, reporting progress as 0-100. A model
// already on disk is not fetched again.
func (e *Engine) Download(ctx context.Context, name string, onProgress func(int)) error {
	option, found := ModelByID(name)
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	ready, err := e.IsModelReady(name, true)
	if err != nil {
		return err
	}
	if ready {
		e.logger.Info("model already downloaded, skipping", zap.String("model", name))
		if onProgress != nil {
			onProgress(100)
		}
		return nil
	}

	if err := e.Init(ctx); err != nil {
		return err
	}

	target := e.ModelPath(option)
	e.logger.Info("downloading model",
		zap.String("model", name),
		zap.String("target", target))
	if err := e.download(ctx, target, option.URL, onProgress); err != nil {
		return fmt.Errorf("download model %s: %w", option.Name, err)
	}

	e.mu.Lock()
	e.ready[option.ID] = true
	e.mu.Unlock()
	return nil
}

// fileExists checks one catalog entry's file without touching the cache.
// Caller holds e.mu.
func (e *Engine) fileExists(option domain.ModelOption) bool {
	info, err := os.Stat(filepath.Join(e.dir, option.FileName))
	return err == nil && !info.IsDir()
}

// recommendedForPlatform picks the summary preset for the host: Apple
// silicon gets the larger model, everything else the small one.
func recommendedForPlatform(goos, goarch string) domain.ModelOption {
	id := "gemma3:1b"
	if goos == "darwin" && goarch == "arm64" {
		id = "gemma3:4b"
	}

	option, _ := ModelByID(id)
	return option
}
