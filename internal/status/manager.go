package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"github.com/neillmiller2/Verbatim/internal/domain"
)

// saveDebounceInterval coalesces bursts of mutations into one disk write.
const saveDebounceInterval = 500 * time.Millisecond

// completedStep is the step index recorded once onboarding finishes.
const completedStep = 5

// Manager owns the in-memory onboarding record and schedules persistence.
// The record is hydrated from the store once at construction; afterwards the
// persisted file follows in-memory state with last-write-wins semantics.
type Manager struct {
	mu        sync.Mutex
	store     Store
	logger    *zap.Logger
	debounced func(func())
	current   domain.OnboardingStatus
	persisted bool
	dirty     bool
	closed    bool
}

// NewManager creates a manager hydrated from the store. A load failure is
// logged and replaced with defaults; it never blocks app startup.
func NewManager(store Store, logger *zap.Logger) *Manager {
	return NewManagerWithInterval(store, logger, saveDebounceInterval)
}

// NewManagerWithInterval creates a manager with a custom debounce window.
func NewManagerWithInterval(store Store, logger *zap.Logger, interval time.Duration) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	record, persisted, err := store.Load()
	if err != nil {
		logger.Warn("load onboarding status failed, using defaults", zap.Error(err))
		record = DefaultStatus()
		persisted = false
	}

	return &Manager{
		store:     store,
		logger:    logger,
		debounced: debounce.New(interval),
		current:   record,
		persisted: persisted,
	}
}

// Status returns the current record and whether one was ever persisted.
func (m *Manager) Status() (domain.OnboardingStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.persisted
}

// Update applies a mutation and schedules one coalesced save. A mutation may
// not clear the completed flag; only Reset does that.
func (m *Manager) Update(mutate func(*domain.OnboardingStatus)) {
	m.mu.Lock()
	wasCompleted := m.current.Completed
	mutate(&m.current)
	if wasCompleted && !m.current.Completed {
		m.logger.Warn("ignoring attempt to clear completed flag outside reset")
		m.current.Completed = true
	}
	m.dirty = true
	m.mu.Unlock()

	m.debounced(m.flush)
}

// SetPermission records the latest state for one permission kind.
func (m *Manager) SetPermission(kind domain.PermissionKind, state domain.PermissionState) {
	m.Update(func(record *domain.OnboardingStatus) {
		switch kind {
		case domain.PermissionMicrophone:
			record.Permissions.Microphone = state
		case domain.PermissionSystemAudio:
			record.Permissions.SystemAudio = state
		}
	})
}

// SetModelState records the latest download marker for one model kind.
func (m *Manager) SetModelState(kind domain.ModelKind, state domain.ModelDownloadState) {
	m.Update(func(record *domain.OnboardingStatus) {
		switch kind {
		case domain.ModelTranscription:
			record.ModelStatus.Transcription = state
		case domain.ModelSummary:
			record.ModelStatus.Summary = state
		}
	})
}

// SetStep records the active onboarding step.
func (m *Manager) SetStep(step int) {
	m.Update(func(record *domain.OnboardingStatus) {
		record.CurrentStep = step
	})
}

// Complete marks onboarding finished and persists immediately, bypassing the
// debounce window so the commitment is durable before control returns.
func (m *Manager) Complete() error {
	m.mu.Lock()
	m.current.Completed = true
	m.current.CurrentStep = completedStep
	m.current.ModelStatus.Transcription = domain.ModelDownloaded
	m.current.ModelStatus.Summary = domain.ModelDownloaded
	m.current.LastUpdated = time.Now().UTC()
	m.dirty = false
	record := m.current
	m.mu.Unlock()

	if err := m.store.Save(record); err != nil {
		return fmt.Errorf("persist completed onboarding status: %w", err)
	}

	m.mu.Lock()
	m.persisted = true
	m.mu.Unlock()
	return nil
}

// Reset clears the record back to defaults and removes the persisted file.
// Clearing the dirty flag invalidates any flush scheduled before the reset,
// so a pending debounced write cannot resurrect the deleted record.
func (m *Manager) Reset() error {
	m.mu.Lock()
	m.current = DefaultStatus()
	m.persisted = false
	m.dirty = false
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clear onboarding status: %w", err)
	}

	m.logger.Info("onboarding status reset")
	return nil
}

// Close suppresses any pending debounced write after teardown.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// flush writes the latest snapshot. Only the state at fire time matters, so
// mutations made during the debounce window are never lost. A flush whose
// scheduling mutation was superseded by Reset or Complete is a no-op.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.closed || !m.dirty {
		m.mu.Unlock()
		return
	}
	m.dirty = false
	m.current.LastUpdated = time.Now().UTC()
	record := m.current
	m.mu.Unlock()

	if err := m.store.Save(record); err != nil {
		m.logger.Warn("save onboarding status failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.persisted = true
	m.mu.Unlock()
}
