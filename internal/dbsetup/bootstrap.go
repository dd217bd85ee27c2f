package dbsetup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	goruntime "runtime"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DatabaseProbe reports whether a candidate database file exists on disk.
type DatabaseProbe struct {
	Exists bool  `json:"exists"`
	Size   int64 `json:"size"`
}

// Paths holds the application database location and the ordered candidate
// locations where a prior installation may have left its database.
type Paths struct {
	AppDatabase string
	Homebrew    string
	Legacy      string
}

// DefaultPaths resolves platform well-known locations.
func DefaultPaths() (Paths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve user home: %w", err)
	}

	legacy := filepath.Join(homeDir, ".verbatim", "verbatim.db")

	switch goruntime.GOOS {
	case "darwin":
		return Paths{
			AppDatabase: filepath.Join(homeDir, "Library", "Application Support", "Verbatim", "verbatim.db"),
			Homebrew:    "/opt/homebrew/var/verbatim/verbatim.db",
			Legacy:      legacy,
		}, nil
	case "windows":
		configDir, err := os.UserConfigDir()
		if err != nil {
			return Paths{}, fmt.Errorf("resolve user config dir: %w", err)
		}
		return Paths{
			AppDatabase: filepath.Join(configDir, "Verbatim", "verbatim.db"),
			Legacy:      legacy,
		}, nil
	default:
		return Paths{
			AppDatabase: filepath.Join(homeDir, ".local", "share", "verbatim", "verbatim.db"),
			Homebrew:    "/home/linuxbrew/.linuxbrew/var/verbatim/verbatim.db",
			Legacy:      legacy,
		}, nil
	}
}

// Bootstrapper probes, imports, and initializes the application database.
type Bootstrapper struct {
	paths  Paths
	logger *zap.Logger
	stat   func(string) (os.FileInfo, error)
}

// NewBootstrapper builds a bootstrapper using real OS dependencies.
func NewBootstrapper(paths Paths, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bootstrapper{
		paths:  paths,
		logger: logger,
		stat:   os.Stat,
	}
}

// AppDatabasePath returns the resolved application database location.
func (b *Bootstrapper) AppDatabasePath() string {
	return b.paths.AppDatabase
}

// CheckFirstLaunch reports whether the application database is absent.
func (b *Bootstrapper) CheckFirstLaunch() bool {
	_, err := b.stat(b.paths.AppDatabase)
	return errors.Is(err, os.ErrNotExist)
}

// CheckHomebrewDatabase probes the Homebrew install location (or an explicit
// path) and returns file metadata, or nil when nothing is there.
func (b *Bootstrapper) CheckHomebrewDatabase(path string) (*DatabaseProbe, error) {
	if path == "" {
		path = b.paths.Homebrew
	}
	if path == "" {
		return nil, nil
	}

	info, err := b.stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("probe database at %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, nil
	}

	return &DatabaseProbe{Exists: true, Size: info.Size()}, nil
}

// CheckDefaultLegacyDatabase returns the first existing candidate database
// from the ordered well-known locations, or empty when none is found.
func (b *Bootstrapper) CheckDefaultLegacyDatabase() string {
	for _, candidate := range []string{b.paths.Homebrew, b.paths.Legacy} {
		if candidate == "" {
			continue
		}
		info, err := b.stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		b.logger.Info("found prior installation database", zap.String("path", candidate))
		return candidate
	}
	return ""
}

// ImportAndInitialize copies a legacy database into the application location
// and applies the current schema on top of it.
func (b *Bootstrapper) ImportAndInitialize(ctx context.Context, legacyPath string) error {
	if legacyPath == "" {
		return fmt.Errorf("legacy database path is required")
	}
	if _, err := b.stat(legacyPath); err != nil {
		return fmt.Errorf("read legacy database: %w", err)
	}

	if err := copyFileAtomic(legacyPath, b.paths.AppDatabase); err != nil {
		return fmt.Errorf("import legacy database: %w", err)
	}

	if err := b.applySchema(ctx); err != nil {
		return err
	}

	b.logger.Info("imported legacy database",
		zap.String("from", legacyPath),
		zap.String("to", b.paths.AppDatabase))
	return nil
}

// InitializeFresh creates an empty application database with the schema.
func (b *Bootstrapper) InitializeFresh(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(b.paths.AppDatabase), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	if err := b.applySchema(ctx); err != nil {
		return err
	}

	b.logger.Info("initialized fresh database", zap.String("path", b.paths.AppDatabase))
	return nil
}

// Open opens the application database.
func (b *Bootstrapper) Open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", b.paths.AppDatabase)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// applySchema opens the database (creating the file if needed) and ensures
// the settings schema exists.
func (b *Bootstrapper) applySchema(ctx context.Context) error {
	db, err := b.Open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	repo := NewSettingsRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// copyFileAtomic copies src to dst through a temp file plus rename so a
// failed import never leaves a truncated database behind.
func copyFileAtomic(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmpPath := dst + ".import"
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("copy database file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temporary file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move database into place: %w", err)
	}
	return nil
}
