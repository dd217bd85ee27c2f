package setup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neillmiller2/Verbatim/internal/domain"
	"github.com/neillmiller2/Verbatim/internal/model"
)

// Phase is the global setup pipeline state.
type Phase string

const (
	PhaseChecking                 Phase = "checking"
	PhaseDatabaseError            Phase = "database_error"
	PhaseDownloadingTranscription Phase = "downloading-transcription"
	PhaseDownloadingSummary       Phase = "downloading-summary"
	PhaseDownloadError            Phase = "download_error"
	PhaseReady                    Phase = "ready"
)

// StageState is one model download stage's state.
type StageState string

const (
	StageIdle        StageState = "idle"
	StageDownloading StageState = "downloading"
	StageDownloaded  StageState = "downloaded"
	StageErrored     StageState = "errored"
)

// StageStatus tracks one model download stage.
type StageStatus struct {
	State    StageState `json:"state"`
	Progress int        `json:"progress"`
	Error    string     `json:"error,omitempty"`
}

// Snapshot is the sequencer state at one point in time.
type Snapshot struct {
	SessionID            string      `json:"sessionId"`
	Phase                Phase       `json:"phase"`
	DatabaseReady        bool        `json:"databaseReady"`
	DatabaseError        string      `json:"databaseError,omitempty"`
	Transcription        StageStatus `json:"transcription"`
	Summary              StageStatus `json:"summary"`
	SelectedSummaryModel string      `json:"selectedSummaryModel,omitempty"`
}

// ErrStageNotRetryable is returned when retry targets a stage that did not fail.
var ErrStageNotRetryable = errors.New("stage is not in a retryable state")

// ErrSummaryGated is returned when a summary download is requested before
// the transcription model finished downloading.
var ErrSummaryGated = errors.New("summary download gated on transcription completion")

// ErrDatabaseNotRetryable is returned when a database retry is requested
// without a blocking database error.
var ErrDatabaseNotRetryable = errors.New("database setup is not in an error state")

// DatabaseBootstrapper isolates the database bootstrap behind an interface.
type DatabaseBootstrapper interface {
	CheckFirstLaunch() bool
	CheckDefaultLegacyDatabase() string
	ImportAndInitialize(ctx context.Context, legacyPath string) error
	InitializeFresh(ctx context.Context) error
}

// ModelEngine isolates local model management behind an interface.
type ModelEngine interface {
	Init(ctx context.Context) error
	IsModelReady(name string, refresh bool) (bool, error)
	AvailableModel() (domain.ModelOption, bool)
	RecommendedModel() domain.ModelOption
	Download(ctx context.Context, name string, onProgress func(int)) error
}

// defaultAutoAdvanceDelay is the pause before auto-advancing when both
// models are already present at the initialization check.
const defaultAutoAdvanceDelay = 1500 * time.Millisecond

// Config wires sequencer collaborators.
type Config struct {
	Database DatabaseBootstrapper
	Engine   ModelEngine
	Bus      *EventBus
	Logger   *zap.Logger
	// Notify pushes each published event to the UI.
	Notify func(Event)
	// OnModelState mirrors stage completion into the persisted record.
	OnModelState func(domain.ModelKind, domain.ModelDownloadState)
	// OnAutoAdvance fires when both models were present at the init check.
	OnAutoAdvance    func()
	AutoAdvanceDelay time.Duration
}

// Sequencer drives the gated setup pipeline: database bootstrap, then the
// transcription model download, then the summary model download. Gates are
// evaluated against current state; downloads already completed are never
// re-triggered, which keeps concurrent gate evaluations idempotent.
type Sequencer struct {
	mu              sync.Mutex
	logger          *zap.Logger
	bus             *EventBus
	db              DatabaseBootstrapper
	engine          ModelEngine
	notify          func(Event)
	onModelState    func(domain.ModelKind, domain.ModelDownloadState)
	onAutoAdvance   func()
	autoDelay       time.Duration
	sessionID       string
	dbReady         bool
	dbErr           string
	stages          map[domain.ModelKind]*StageStatus
	selectedSummary string
	advanceTimer    *time.Timer
}

// NewSequencer creates a sequencer in the checking phase.
func NewSequencer(cfg Config) *Sequencer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := cfg.Bus
	if bus == nil {
		bus = NewEventBus(500)
	}
	delay := cfg.AutoAdvanceDelay
	if delay <= 0 {
		delay = defaultAutoAdvanceDelay
	}

	return &Sequencer{
		logger:        logger,
		bus:           bus,
		db:            cfg.Database,
		engine:        cfg.Engine,
		notify:        cfg.Notify,
		onModelState:  cfg.OnModelState,
		onAutoAdvance: cfg.OnAutoAdvance,
		autoDelay:     delay,
		sessionID:     uuid.NewString(),
		stages: map[domain.ModelKind]*StageStatus{
			domain.ModelTranscription: {State: StageIdle},
			domain.ModelSummary:       {State: StageIdle},
		},
	}
}

// Snapshot returns a copy of the current pipeline state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Events returns bus events with sequence greater than sinceSeq.
func (s *Sequencer) Events(sinceSeq int64) []Event {
	return s.bus.Since(sinceSeq)
}

// Start runs the database bootstrap and, on success, evaluates model state:
// starting the transcription download, or scheduling auto-advance when both
// models are already present.
func (s *Sequencer) Start(ctx context.Context) Snapshot {
	if err := s.bootstrapDatabase(ctx); err != nil {
		return s.Snapshot()
	}
	s.evaluateModels(ctx)
	return s.Snapshot()
}

// RetryDatabase re-runs the blocking database bootstrap after a failure.
func (s *Sequencer) RetryDatabase(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.dbReady || s.dbErr == "" {
		s.mu.Unlock()
		return s.snapshotLocked(), ErrDatabaseNotRetryable
	}
	s.dbErr = ""
	s.mu.Unlock()

	if err := s.bootstrapDatabase(ctx); err != nil {
		return s.Snapshot(), err
	}
	s.evaluateModels(ctx)
	return s.Snapshot(), nil
}

// RetryDownload re-runs one failed download stage. The retry is scoped to
// that stage only; the other stage's completed state is untouched.
func (s *Sequencer) RetryDownload(ctx context.Context, kind domain.ModelKind) error {
	s.mu.Lock()
	stage, ok := s.stages[kind]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown model kind: %s", kind)
	}
	if stage.State != StageErrored {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrStageNotRetryable, kind, stage.State)
	}
	if kind == domain.ModelSummary && s.stages[domain.ModelTranscription].State != StageDownloaded {
		s.mu.Unlock()
		return ErrSummaryGated
	}
	// Retry resets progress and clears the stage error before restarting.
	stage.State = StageIdle
	stage.Progress = 0
	stage.Error = ""
	s.mu.Unlock()

	switch kind {
	case domain.ModelTranscription:
		s.startTranscription(ctx)
	case domain.ModelSummary:
		s.startSummary(ctx)
	}
	return nil
}

// Close stops any scheduled auto-advance.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceTimer != nil {
		s.advanceTimer.Stop()
		s.advanceTimer = nil
	}
}

// bootstrapDatabase probes for a first launch and imports or initializes the
// application database. Failures block the pipeline until a manual retry.
func (s *Sequencer) bootstrapDatabase(ctx context.Context) error {
	s.publish(Event{Type: EventTypePhase, Phase: PhaseChecking, Message: "Checking database"})

	if !s.db.CheckFirstLaunch() {
		s.setDatabaseReady()
		return nil
	}

	var err error
	if legacy := s.db.CheckDefaultLegacyDatabase(); legacy != "" {
		err = s.db.ImportAndInitialize(ctx, legacy)
	} else {
		err = s.db.InitializeFresh(ctx)
	}
	if err != nil {
		s.logger.Error("database bootstrap failed", zap.Error(err))
		s.mu.Lock()
		s.dbErr = err.Error()
		s.mu.Unlock()
		s.publish(Event{Type: EventTypeError, Phase: PhaseDatabaseError, Message: err.Error()})
		return err
	}

	s.setDatabaseReady()
	return nil
}

func (s *Sequencer) setDatabaseReady() {
	s.mu.Lock()
	s.dbReady = true
	s.dbErr = ""
	s.mu.Unlock()
	s.publish(Event{Type: EventTypePhase, Phase: PhaseDownloadingTranscription, Message: "Database ready"})
}

// evaluateModels settles stage state from disk and decides the next action.
func (s *Sequencer) evaluateModels(ctx context.Context) {
	if err := s.engine.Init(ctx); err != nil {
		s.logger.Warn("model engine init failed", zap.Error(err))
	}

	transcriptionReady := false
	if ready, err := s.engine.IsModelReady(transcriptionModelID(), true); err == nil {
		transcriptionReady = ready
	} else {
		s.logger.Warn("transcription readiness check failed", zap.Error(err))
	}

	summaryOption, summaryReady := s.engine.AvailableModel()

	s.mu.Lock()
	if transcriptionReady {
		s.stages[domain.ModelTranscription].State = StageDownloaded
		s.stages[domain.ModelTranscription].Progress = 100
	}
	if summaryReady {
		s.stages[domain.ModelSummary].State = StageDownloaded
		s.stages[domain.ModelSummary].Progress = 100
		s.selectedSummary = summaryOption.ID
	}
	bothPresent := transcriptionReady && summaryReady
	s.mu.Unlock()

	if transcriptionReady {
		s.notifyModelState(domain.ModelTranscription, domain.ModelDownloaded)
	}
	if summaryReady {
		s.notifyModelState(domain.ModelSummary, domain.ModelDownloaded)
	}

	if bothPresent {
		s.publish(Event{Type: EventTypePhase, Phase: PhaseReady, Message: "All models already present"})
		s.scheduleAutoAdvance()
		return
	}

	if !transcriptionReady {
		s.startTranscription(ctx)
		return
	}
	s.startSummary(ctx)
}

// startTranscription begins the transcription model download when the stage
// allows it.
func (s *Sequencer) startTranscription(ctx context.Context) {
	if !s.beginStage(domain.ModelTranscription) {
		return
	}

	id := transcriptionModelID()
	go s.runDownload(ctx, domain.ModelTranscription, id, func() {
		s.maybeStartSummary(ctx)
	})
}

// maybeStartSummary evaluates the sequential gate after a transcription
// completion event. The summary download must never start while the
// transcription stage is incomplete.
func (s *Sequencer) maybeStartSummary(ctx context.Context) {
	s.mu.Lock()
	gateOpen := s.stages[domain.ModelTranscription].State == StageDownloaded &&
		s.stages[domain.ModelSummary].State == StageIdle
	s.mu.Unlock()

	if !gateOpen {
		return
	}
	s.startSummary(ctx)
}

// startSummary adopts a locally present summary model, or downloads the
// recommended one.
func (s *Sequencer) startSummary(ctx context.Context) {
	if option, found := s.engine.AvailableModel(); found {
		// A compatible model is already on disk; adopt it instead of
		// downloading the recommended one.
		s.mu.Lock()
		s.selectedSummary = option.ID
		stage := s.stages[domain.ModelSummary]
		stage.State = StageDownloaded
		stage.Progress = 100
		stage.Error = ""
		s.mu.Unlock()

		s.logger.Info("adopting local summary model", zap.String("model", option.ID))
		s.publish(Event{
			Type:    EventTypeStage,
			Model:   domain.ModelSummary,
			State:   StageDownloaded,
			Message: "Adopted local model " + option.Name,
		})
		s.notifyModelState(domain.ModelSummary, domain.ModelDownloaded)
		s.finishIfReady()
		return
	}

	if !s.beginStage(domain.ModelSummary) {
		return
	}

	recommended := s.engine.RecommendedModel()
	s.mu.Lock()
	s.selectedSummary = recommended.ID
	s.mu.Unlock()

	go s.runDownload(ctx, domain.ModelSummary, recommended.ID, s.finishIfReady)
}

// beginStage transitions one stage to downloading, enforcing the stage
// state machine. Downloaded is terminal: further attempts are suppressed.
func (s *Sequencer) beginStage(kind domain.ModelKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stage := s.stages[kind]
	if !validStageTransition(stage.State, StageDownloading) {
		return false
	}
	stage.State = StageDownloading
	stage.Progress = 0
	stage.Error = ""
	return true
}

// runDownload executes one model download and maps the outcome to stage
// state, persisted markers, and events. onDone runs only after success.
func (s *Sequencer) runDownload(ctx context.Context, kind domain.ModelKind, modelID string, onDone func()) {
	s.publish(Event{Type: EventTypeStage, Model: kind, State: StageDownloading, Message: "Downloading " + modelID})
	s.notifyModelState(kind, domain.ModelDownloading)

	err := s.engine.Download(ctx, modelID, func(pct int) {
		s.recordProgress(kind, pct)
	})
	if err != nil {
		s.logger.Error("model download failed",
			zap.String("model", modelID),
			zap.Error(err))
		s.mu.Lock()
		stage := s.stages[kind]
		stage.State = StageErrored
		stage.Error = err.Error()
		s.mu.Unlock()

		s.publish(Event{Type: EventTypeError, Model: kind, State: StageErrored, Message: err.Error()})
		s.notifyModelState(kind, domain.ModelNotDownloaded)
		return
	}

	s.mu.Lock()
	stage := s.stages[kind]
	stage.State = StageDownloaded
	stage.Progress = 100
	stage.Error = ""
	s.mu.Unlock()

	s.publish(Event{Type: EventTypeStage, Model: kind, State: StageDownloaded, Progress: 100})
	s.notifyModelState(kind, domain.ModelDownloaded)

	if onDone != nil {
		onDone()
	}
}

// recordProgress applies a monotonic progress update and publishes it.
func (s *Sequencer) recordProgress(kind domain.ModelKind, pct int) {
	s.mu.Lock()
	stage := s.stages[kind]
	if stage.State != StageDownloading || pct <= stage.Progress {
		s.mu.Unlock()
		return
	}
	if pct > 100 {
		pct = 100
	}
	stage.Progress = pct
	s.mu.Unlock()

	s.publish(Event{Type: EventTypeProgress, Model: kind, State: StageDownloading, Progress: pct})
}

// finishIfReady moves the pipeline to ready once both stages completed.
func (s *Sequencer) finishIfReady() {
	s.mu.Lock()
	done := s.dbReady &&
		s.stages[domain.ModelTranscription].State == StageDownloaded &&
		s.stages[domain.ModelSummary].State == StageDownloaded
	s.mu.Unlock()

	if done {
		s.publish(Event{Type: EventTypePhase, Phase: PhaseReady, Message: "Setup complete"})
	}
}

// scheduleAutoAdvance arms the one-shot transition to the next onboarding
// step after the fixed delay, replacing any previously armed timer.
func (s *Sequencer) scheduleAutoAdvance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onAutoAdvance == nil {
		return
	}
	if s.advanceTimer != nil {
		s.advanceTimer.Stop()
	}
	s.advanceTimer = time.AfterFunc(s.autoDelay, s.onAutoAdvance)
}

// SelectedSummaryModel returns the adopted or recommended summary model ID.
func (s *Sequencer) SelectedSummaryModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedSummary
}

// publish stores an event on the bus and forwards it to the UI notifier.
func (s *Sequencer) publish(event Event) {
	event.SessionID = s.sessionID
	published := s.bus.Publish(event)
	if s.notify != nil {
		s.notify(published)
	}
}

func (s *Sequencer) notifyModelState(kind domain.ModelKind, state domain.ModelDownloadState) {
	if s.onModelState != nil {
		s.onModelState(kind, state)
	}
}

func (s *Sequencer) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:            s.sessionID,
		Phase:                s.phaseLocked(),
		DatabaseReady:        s.dbReady,
		DatabaseError:        s.dbErr,
		Transcription:        *s.stages[domain.ModelTranscription],
		Summary:              *s.stages[domain.ModelSummary],
		SelectedSummaryModel: s.selectedSummary,
	}
}

// phaseLocked derives the global phase from component state. An errored
// stage surfaces as download_error so the UI never sees a downloading phase
// while the pipeline is actually stalled on a failed stage.
func (s *Sequencer) phaseLocked() Phase {
	if !s.dbReady {
		if s.dbErr != "" {
			return PhaseDatabaseError
		}
		return PhaseChecking
	}
	if s.stages[domain.ModelTranscription].State == StageErrored ||
		s.stages[domain.ModelSummary].State == StageErrored {
		return PhaseDownloadError
	}
	if s.stages[domain.ModelTranscription].State != StageDownloaded {
		return PhaseDownloadingTranscription
	}
	if s.stages[domain.ModelSummary].State != StageDownloaded {
		return PhaseDownloadingSummary
	}
	return PhaseReady
}

// validStageTransition enforces the allowed stage state machine edges.
func validStageTransition(from, to StageState) bool {
	switch from {
	case StageIdle:
		return to == StageDownloading
	case StageDownloading:
		return to == StageDownloaded || to == StageErrored
	case StageErrored:
		return to == StageDownloading || to == StageIdle
	case StageDownloaded:
		return false
	default:
		return false
	}
}

// transcriptionModelID is the single required STT model preset.
func transcriptionModelID() string {
	return model.TranscriptionModel().ID
}
