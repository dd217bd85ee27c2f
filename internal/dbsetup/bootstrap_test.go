package dbsetup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func testPaths(t *testing.T) Paths {
	t.Helper()
	root := t.TempDir()
	return Paths{
		AppDatabase: filepath.Join(root, "app", "verbatim.db"),
		Homebrew:    filepath.Join(root, "homebrew", "verbatim.db"),
		Legacy:      filepath.Join(root, "legacy", "verbatim.db"),
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// TestCheckFirstLaunch reports absence of the application database.
func TestCheckFirstLaunch(t *testing.T) {
	paths := testPaths(t)
	b := NewBootstrapper(paths, zap.NewNop())

	if !b.CheckFirstLaunch() {
		t.Fatal("expected first launch with no database file")
	}

	writeFile(t, paths.AppDatabase, []byte("db"))
	if b.CheckFirstLaunch() {
		t.Fatal("expected non-first launch once database exists")
	}
}

// TestCheckHomebrewDatabase probes the candidate file metadata.
func TestCheckHomebrewDatabase(t *testing.T) {
	paths := testPaths(t)
	b := NewBootstrapper(paths, zap.NewNop())

	probe, err := b.CheckHomebrewDatabase("")
	if err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if probe != nil {
		t.Fatalf("probe = %+v, want nil for missing file", probe)
	}

	writeFile(t, paths.Homebrew, []byte("legacy-bytes"))
	probe, err = b.CheckHomebrewDatabase("")
	if err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if probe == nil || !probe.Exists {
		t.Fatalf("probe = %+v, want existing file", probe)
	}
	if probe.Size != int64(len("legacy-bytes")) {
		t.Fatalf("size = %d, want %d", probe.Size, len("legacy-bytes"))
	}
}

// TestCheckDefaultLegacyDatabaseOrder prefers the Homebrew candidate.
func TestCheckDefaultLegacyDatabaseOrder(t *testing.T) {
	paths := testPaths(t)
	b := NewBootstrapper(paths, zap.NewNop())

	if found := b.CheckDefaultLegacyDatabase(); found != "" {
		t.Fatalf("found = %q, want empty with no candidates", found)
	}

	writeFile(t, paths.Legacy, []byte("old"))
	if found := b.CheckDefaultLegacyDatabase(); found != paths.Legacy {
		t.Fatalf("found = %q, want %q", found, paths.Legacy)
	}

	writeFile(t, paths.Homebrew, []byte("older"))
	if found := b.CheckDefaultLegacyDatabase(); found != paths.Homebrew {
		t.Fatalf("found = %q, want homebrew candidate first", found)
	}
}

// TestInitializeFreshCreatesSchema verifies the empty-database path.
func TestInitializeFreshCreatesSchema(t *testing.T) {
	paths := testPaths(t)
	b := NewBootstrapper(paths, zap.NewNop())
	ctx := context.Background()

	if err := b.InitializeFresh(ctx); err != nil {
		t.Fatalf("InitializeFresh() error = %v", err)
	}
	if b.CheckFirstLaunch() {
		t.Fatal("database file should exist after fresh init")
	}

	db, err := b.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	repo := NewSettingsRepository(db)
	if err := repo.SaveTranscriptConfig(ctx, "parakeet", "parakeet-tdt-0.6b-v3-int8"); err != nil {
		t.Fatalf("save transcript config: %v", err)
	}
	config, err := repo.ModelConfig(ctx, "transcript")
	if err != nil {
		t.Fatalf("load transcript config: %v", err)
	}
	if config.Provider != "parakeet" {
		t.Fatalf("provider = %q, want parakeet", config.Provider)
	}
}

// TestImportAndInitializePreservesData copies the legacy file and layers the
// current schema on top of it.
func TestImportAndInitializePreservesData(t *testing.T) {
	paths := testPaths(t)
	ctx := context.Background()

	legacy := NewBootstrapper(Paths{AppDatabase: paths.Legacy}, zap.NewNop())
	if err := legacy.InitializeFresh(ctx); err != nil {
		t.Fatalf("init legacy db: %v", err)
	}
	legacyDB, err := legacy.Open()
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	legacyRepo := NewSettingsRepository(legacyDB)
	if err := legacyRepo.SaveModelConfig(ctx, "builtin-ai", "gemma3:1b", "large-v3", ""); err != nil {
		t.Fatalf("seed legacy config: %v", err)
	}
	legacyDB.Close()

	b := NewBootstrapper(paths, zap.NewNop())
	if err := b.ImportAndInitialize(ctx, paths.Legacy); err != nil {
		t.Fatalf("ImportAndInitialize() error = %v", err)
	}

	db, err := b.Open()
	if err != nil {
		t.Fatalf("open imported db: %v", err)
	}
	defer db.Close()

	config, err := NewSettingsRepository(db).ModelConfig(ctx, "summary")
	if err != nil {
		t.Fatalf("load imported config: %v", err)
	}
	if config.Model != "gemma3:1b" {
		t.Fatalf("model = %q, want gemma3:1b", config.Model)
	}
}

// TestImportRequiresExistingSource rejects missing legacy paths.
func TestImportRequiresExistingSource(t *testing.T) {
	paths := testPaths(t)
	b := NewBootstrapper(paths, zap.NewNop())

	if err := b.ImportAndInitialize(context.Background(), paths.Legacy); err == nil {
		t.Fatal("expected error importing a missing legacy database")
	}
	if err := b.ImportAndInitialize(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty legacy path")
	}
}
