package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/neillmiller2/Verbatim/internal/domain"
)

// ErrRequestPending is returned when a request for the same permission kind
// is already in flight. The UI disables the triggering control on it.
var ErrRequestPending = errors.New("permission request already pending")

// Bridge reaches the native permission layer.
type Bridge interface {
	// TriggerMicrophone prompts the OS microphone dialog and reports grant.
	TriggerMicrophone(ctx context.Context) (bool, error)
	// TriggerSystemAudio requests system audio capture access. Success is
	// inferred from the absence of an error after a fixed wait; the platform
	// gives no explicit confirmation.
	TriggerSystemAudio(ctx context.Context) error
	// Snapshot reads current grants without prompting.
	Snapshot(ctx context.Context) (domain.PermissionSnapshot, error)
	// OpenSystemSettings sends the user to the OS privacy settings pane.
	OpenSystemSettings(kind domain.PermissionKind) error
}

// Coordinator tracks per-permission state for microphone and system audio.
// States only change as the result of a completed request or recheck, never
// passively. A bridge error during a request degrades to denied.
type Coordinator struct {
	mu       sync.RWMutex
	bridge   Bridge
	logger   *zap.Logger
	states   map[domain.PermissionKind]domain.PermissionState
	pending  map[domain.PermissionKind]bool
	onChange func(domain.PermissionKind, domain.PermissionState)
}

// NewCoordinator creates a coordinator seeded from a persisted snapshot.
// onChange fires on every state transition; the caller persists it.
func NewCoordinator(bridge Bridge, seed domain.PermissionSnapshot, logger *zap.Logger, onChange func(domain.PermissionKind, domain.PermissionState)) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	states := map[domain.PermissionKind]domain.PermissionState{
		domain.PermissionMicrophone:  normalizeState(seed.Microphone),
		domain.PermissionSystemAudio: normalizeState(seed.SystemAudio),
	}

	return &Coordinator{
		bridge:   bridge,
		logger:   logger,
		states:   states,
		pending:  map[domain.PermissionKind]bool{},
		onChange: onChange,
	}
}

// State returns the current state for one permission kind.
func (c *Coordinator) State(kind domain.PermissionKind) domain.PermissionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[kind]
}

// Snapshot returns both tracked permission states.
func (c *Coordinator) Snapshot() domain.PermissionSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.PermissionSnapshot{
		Microphone:  c.states[domain.PermissionMicrophone],
		SystemAudio: c.states[domain.PermissionSystemAudio],
	}
}

// IsPending reports whether a request for kind is in flight.
func (c *Coordinator) IsPending(kind domain.PermissionKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending[kind]
}

// AllAuthorized is the completion gate for the permissions step: a simple
// conjunction over every tracked permission.
func (c *Coordinator) AllAuthorized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, state := range c.states {
		if state != domain.PermissionAuthorized {
			return false
		}
	}
	return true
}

// Request triggers the OS prompt for kind and settles the resulting state.
// A permission already denied is never re-prompted (platform policy
// suppresses repeat dialogs); the user is redirected to system settings and
// the state is left unchanged until a manual recheck observes the grant.
func (c *Coordinator) Request(ctx context.Context, kind domain.PermissionKind) (domain.PermissionState, error) {
	c.mu.Lock()
	if c.pending[kind] {
		c.mu.Unlock()
		return c.states[kind], ErrRequestPending
	}
	if c.states[kind] == domain.PermissionDenied {
		c.mu.Unlock()
		c.logger.Info("permission already denied, redirecting to settings",
			zap.String("kind", string(kind)))
		if err := c.bridge.OpenSystemSettings(kind); err != nil {
			return domain.PermissionDenied, fmt.Errorf("open system settings: %w", err)
		}
		return domain.PermissionDenied, nil
	}
	c.pending[kind] = true
	c.mu.Unlock()

	state := c.trigger(ctx, kind)

	c.mu.Lock()
	c.pending[kind] = false
	c.mu.Unlock()
	c.setState(kind, state)
	return state, nil
}

// Recheck refreshes both permission states from the bridge without
// prompting; used after the user returns from system settings, since
// externally granted permissions are not observed automatically.
func (c *Coordinator) Recheck(ctx context.Context) (domain.PermissionSnapshot, error) {
	snapshot, err := c.bridge.Snapshot(ctx)
	if err != nil {
		c.logger.Warn("permission recheck failed", zap.Error(err))
		return c.Snapshot(), fmt.Errorf("recheck permissions: %w", err)
	}

	c.setState(domain.PermissionMicrophone, normalizeState(snapshot.Microphone))
	c.setState(domain.PermissionSystemAudio, normalizeState(snapshot.SystemAudio))
	return c.Snapshot(), nil
}

// OpenSettings redirects the user to the OS privacy pane for kind.
func (c *Coordinator) OpenSettings(kind domain.PermissionKind) error {
	return c.bridge.OpenSystemSettings(kind)
}

// trigger invokes the bridge call for kind and maps the outcome to a state.
// Any bridge error resolves to denied so the state is never left ambiguous.
func (c *Coordinator) trigger(ctx context.Context, kind domain.PermissionKind) domain.PermissionState {
	switch kind {
	case domain.PermissionMicrophone:
		granted, err := c.bridge.TriggerMicrophone(ctx)
		if err != nil {
			c.logger.Warn("microphone permission request failed, treating as denied",
				zap.Error(err))
			return domain.PermissionDenied
		}
		if !granted {
			return domain.PermissionDenied
		}
		return domain.PermissionAuthorized
	case domain.PermissionSystemAudio:
		if err := c.bridge.TriggerSystemAudio(ctx); err != nil {
			c.logger.Warn("system audio permission request failed, treating as denied",
				zap.Error(err))
			return domain.PermissionDenied
		}
		return domain.PermissionAuthorized
	default:
		c.logger.Warn("unknown permission kind", zap.String("kind", string(kind)))
		return domain.PermissionDenied
	}
}

// setState applies a transition and notifies the persistence hook.
func (c *Coordinator) setState(kind domain.PermissionKind, state domain.PermissionState) {
	c.mu.Lock()
	changed := c.states[kind] != state
	c.states[kind] = state
	c.mu.Unlock()

	if changed && c.onChange != nil {
		c.onChange(kind, state)
	}
}

// normalizeState maps unknown persisted values back to not_determined.
func normalizeState(state domain.PermissionState) domain.PermissionState {
	switch state {
	case domain.PermissionAuthorized, domain.PermissionDenied, domain.PermissionNotDetermined:
		return state
	default:
		return domain.PermissionNotDetermined
	}
}
