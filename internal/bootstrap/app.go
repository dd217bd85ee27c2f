package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"github.com/neillmiller2/Verbatim/internal/audio"
	"github.com/neillmiller2/Verbatim/internal/dbsetup"
	"github.com/neillmiller2/Verbatim/internal/domain"
	"github.com/neillmiller2/Verbatim/internal/flow"
	"github.com/neillmiller2/Verbatim/internal/model"
	"github.com/neillmiller2/Verbatim/internal/permission"
	"github.com/neillmiller2/Verbatim/internal/setup"
	"github.com/neillmiller2/Verbatim/internal/status"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// onboardingStatusFile sits next to the application database.
const onboardingStatusFile = "onboarding.json"

// Summary configuration written when onboarding completes. The whisper model
// column is kept for compatibility with records written by older releases.
const (
	summaryProvider     = "builtin-ai"
	summaryWhisperModel = "large-v3"
	transcriptProvider  = "parakeet"
)

// App wires the onboarding coordinators and exposes them to the UI runtime.
type App struct {
	logger *zap.Logger
	assets fs.FS

	status      *status.Manager
	permissions *permission.Coordinator
	database    *dbsetup.Bootstrapper
	engine      *model.Engine
	sequencer   *setup.Sequencer
	flow        *flow.Controller
	devices     audio.Lister

	mu         sync.Mutex
	runtimeCtx context.Context
	db         *sql.DB
}

// New builds the application with production wiring.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	paths, err := dbsetup.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("resolve database paths: %w", err)
	}

	modelsDir, err := model.DefaultModelsDir()
	if err != nil {
		return nil, fmt.Errorf("resolve models directory: %w", err)
	}

	statusPath := filepath.Join(filepath.Dir(paths.AppDatabase), onboardingStatusFile)
	store := status.NewJSONStore(statusPath)

	app := newApp(appComponents{
		logger:   logger,
		assets:   assets,
		status:   status.NewManager(store, logger),
		bridge:   permission.NewSystemBridge(logger),
		database: dbsetup.NewBootstrapper(paths, logger),
		engine:   model.NewEngine(modelsDir, logger),
		devices:  audio.NewPortAudioLister(),
	})
	return app, nil
}

// appComponents carries the injectable collaborators.
type appComponents struct {
	logger   *zap.Logger
	assets   fs.FS
	status   *status.Manager
	bridge   permission.Bridge
	database *dbsetup.Bootstrapper
	engine   *model.Engine
	devices  audio.Lister
}

// newApp assembles the coordinators around a shared status manager. Callback
// wiring runs here so the sequencer and flow controller can push through the
// app's event emitter.
func newApp(c appComponents) *App {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := &App{
		logger:   logger,
		assets:   c.assets,
		status:   c.status,
		database: c.database,
		engine:   c.engine,
		devices:  c.devices,
	}

	record, _ := c.status.Status()
	app.permissions = permission.NewCoordinator(c.bridge, record.Permissions, logger,
		func(kind domain.PermissionKind, state domain.PermissionState) {
			c.status.SetPermission(kind, state)
			app.emit("permission:changed", string(kind), string(state))
		})

	app.sequencer = setup.NewSequencer(setup.Config{
		Database:      c.database,
		Engine:        c.engine,
		Logger:        logger,
		Notify:        func(event setup.Event) { app.emit("setup:event", event) },
		OnModelState:  c.status.SetModelState,
		OnAutoAdvance: app.autoAdvance,
	})

	app.flow = flow.NewController(flow.Step(record.CurrentStep), app.permissions, app.sequencer, c.status,
		func() { app.emit("onboarding:complete") }, logger)

	return app
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Verbatim",
		Width:       1100,
		Height:      760,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown suppresses pending writes and releases held resources.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	db := a.db
	a.db = nil
	a.mu.Unlock()

	a.sequencer.Close()
	a.status.Close()
	if db != nil {
		_ = db.Close()
	}
	_ = a.logger.Sync()
}

// GetOnboardingStatus returns the persisted record, or nil when onboarding
// has never been saved on this machine.
func (a *App) GetOnboardingStatus() *domain.OnboardingStatus {
	record, persisted := a.status.Status()
	if !persisted {
		return nil
	}
	return &record
}

// SaveOnboardingStatus replaces the in-memory record and schedules one
// coalesced write.
func (a *App) SaveOnboardingStatus(record domain.OnboardingStatus) {
	a.status.Update(func(current *domain.OnboardingStatus) {
		*current = record
	})
}

// CompleteOnboarding commits the chosen summary model to the application
// database and marks onboarding finished. The final-step gate is checked
// before any settings row is written, so a call made off the finish step
// leaves the database untouched.
func (a *App) CompleteOnboarding(summaryModel string) error {
	ctx := context.Background()

	if current := a.flow.CurrentStep(); current != flow.StepFinish {
		return fmt.Errorf("complete onboarding on %s: %w", current, flow.ErrStepGated)
	}

	if summaryModel == "" {
		summaryModel = a.sequencer.SelectedSummaryModel()
	}
	if summaryModel == "" {
		summaryModel = a.engine.RecommendedModel().ID
	}

	db, err := a.openDatabase()
	if err != nil {
		return err
	}

	repo := dbsetup.NewSettingsRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := repo.SaveModelConfig(ctx, summaryProvider, summaryModel, summaryWhisperModel, ""); err != nil {
		return err
	}
	if err := repo.SaveTranscriptConfig(ctx, transcriptProvider, model.TranscriptionModel().ID); err != nil {
		return err
	}

	a.logger.Info("onboarding completed", zap.String("summaryModel", summaryModel))
	return a.flow.Finish()
}

// ResetOnboardingStatus clears the record so onboarding runs again.
func (a *App) ResetOnboardingStatus() error {
	return a.status.Reset()
}

// TriggerMicrophonePermission raises the OS microphone prompt.
func (a *App) TriggerMicrophonePermission() (domain.PermissionState, error) {
	return a.permissions.Request(a.callCtx(), domain.PermissionMicrophone)
}

// TriggerSystemAudioPermission raises the OS system-audio capture prompt.
func (a *App) TriggerSystemAudioPermission() (domain.PermissionState, error) {
	return a.permissions.Request(a.callCtx(), domain.PermissionSystemAudio)
}

// RecheckPermissions re-reads both grants without prompting.
func (a *App) RecheckPermissions() (domain.PermissionSnapshot, error) {
	return a.permissions.Recheck(a.callCtx())
}

// GetPermissionStatus returns the tracked permission pair.
func (a *App) GetPermissionStatus() domain.PermissionSnapshot {
	return a.permissions.Snapshot()
}

// OpenSystemSettings deep-links the OS privacy pane for one permission.
func (a *App) OpenSystemSettings(kind string) error {
	parsed, err := parsePermissionKind(kind)
	if err != nil {
		return err
	}
	return a.permissions.OpenSettings(parsed)
}

// CheckFirstLaunch reports whether the application database is absent.
func (a *App) CheckFirstLaunch() bool {
	return a.database.CheckFirstLaunch()
}

// CheckHomebrewDatabase probes an explicit candidate database path.
func (a *App) CheckHomebrewDatabase(path string) (*dbsetup.DatabaseProbe, error) {
	return a.database.CheckHomebrewDatabase(path)
}

// CheckDefaultLegacyDatabase returns the first known prior-install database,
// or empty when none exists.
func (a *App) CheckDefaultLegacyDatabase() string {
	return a.database.CheckDefaultLegacyDatabase()
}

// ImportAndInitializeDatabase copies a legacy database into place and applies
// the current schema.
func (a *App) ImportAndInitializeDatabase(path string) error {
	return a.database.ImportAndInitialize(a.callCtx(), path)
}

// InitializeFreshDatabase creates an empty application database.
func (a *App) InitializeFreshDatabase() error {
	return a.database.InitializeFresh(a.callCtx())
}

// GetAudioDevices enumerates capture and playback endpoints.
func (a *App) GetAudioDevices() ([]domain.AudioDevice, error) {
	return a.devices.Devices()
}

// InitModelEngine prepares the local models directory.
func (a *App) InitModelEngine() error {
	return a.engine.Init(a.callCtx())
}

// ListModels returns the catalog annotated with local availability.
func (a *App) ListModels() []domain.ModelOption {
	return a.engine.Models()
}

// HasAvailableModels reports whether any summary model is on disk.
func (a *App) HasAvailableModels() bool {
	return a.engine.HasAvailableModels()
}

// GetRecommendedModel returns the platform's default summary model.
func (a *App) GetRecommendedModel() domain.ModelOption {
	return a.engine.RecommendedModel()
}

// GetAvailableModel returns the first locally present summary model, or nil.
func (a *App) GetAvailableModel() *domain.ModelOption {
	option, found := a.engine.AvailableModel()
	if !found {
		return nil
	}
	return &option
}

// IsModelReady reports whether one model's weights are on disk.
func (a *App) IsModelReady(name string, refresh bool) (bool, error) {
	return a.engine.IsModelReady(name, refresh)
}

// DownloadModel fetches one model outside the setup pipeline, pushing
// progress to the UI.
func (a *App) DownloadModel(name string) error {
	return a.engine.Download(a.callCtx(), name, func(pct int) {
		a.emit("model:progress", name, pct)
	})
}

// StartSetup runs the database bootstrap and begins any needed downloads.
func (a *App) StartSetup() setup.Snapshot {
	return a.sequencer.Start(a.callCtx())
}

// GetSetupStatus returns the current pipeline snapshot.
func (a *App) GetSetupStatus() setup.Snapshot {
	return a.sequencer.Snapshot()
}

// RetryDatabaseSetup re-runs the database bootstrap after a blocking error.
func (a *App) RetryDatabaseSetup() (setup.Snapshot, error) {
	return a.sequencer.RetryDatabase(a.callCtx())
}

// RetryModelDownload re-runs one failed download stage.
func (a *App) RetryModelDownload(kind string) error {
	parsed, err := parseModelKind(kind)
	if err != nil {
		return err
	}
	return a.sequencer.RetryDownload(a.callCtx(), parsed)
}

// SetupEvents returns pipeline events with sequence greater than sinceSeq.
func (a *App) SetupEvents(sinceSeq int64) []setup.Event {
	return a.sequencer.Events(sinceSeq)
}

// CurrentStep returns the active onboarding step index.
func (a *App) CurrentStep() int {
	return int(a.flow.CurrentStep())
}

// CanAdvance reports whether the active step's gate is open.
func (a *App) CanAdvance() bool {
	return a.flow.CanAdvance()
}

// AdvanceStep moves to the next onboarding step when its gate is open.
func (a *App) AdvanceStep() (int, error) {
	next, err := a.flow.Advance()
	if err != nil {
		return int(next), err
	}
	a.emit("onboarding:step", int(next))
	return int(next), nil
}

// autoAdvance runs the scheduled step transition when both models were
// already present at the setup check.
func (a *App) autoAdvance() {
	next, err := a.flow.Advance()
	if err != nil {
		a.logger.Warn("auto-advance skipped", zap.Error(err))
		return
	}
	a.emit("onboarding:step", int(next))
}

// openDatabase lazily opens and caches the application database handle.
func (a *App) openDatabase() (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db, nil
	}

	db, err := a.database.Open()
	if err != nil {
		return nil, fmt.Errorf("open application database: %w", err)
	}
	a.db = db
	return db, nil
}

// emit pushes a runtime event to the UI when the runtime is up.
func (a *App) emit(name string, payload ...interface{}) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload...)
	}
}

// callCtx is the context for UI-initiated backend calls. Cancellation of
// in-flight work on navigation away is not supported.
func (a *App) callCtx() context.Context {
	return context.Background()
}

func parsePermissionKind(kind string) (domain.PermissionKind, error) {
	switch parsed := domain.PermissionKind(kind); parsed {
	case domain.PermissionMicrophone, domain.PermissionSystemAudio:
		return parsed, nil
	default:
		return "", fmt.Errorf("unknown permission kind: %q", kind)
	}
}

func parseModelKind(kind string) (domain.ModelKind, error) {
	switch parsed := domain.ModelKind(kind); parsed {
	case domain.ModelTranscription, domain.ModelSummary:
		return parsed, nil
	default:
		return "", fmt.Errorf("unknown model kind: %q", kind)
	}
}
