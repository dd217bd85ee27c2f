package flow

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/neillmiller2/Verbatim/internal/setup"
)

// Step identifies one onboarding screen. The order is fixed; there is no
// branching or skipping beyond the per-step gates.
type Step int

const (
	StepWelcome Step = iota + 1
	StepPermissions
	StepSetup
	StepModels
	StepFinish
)

func (s Step) String() string {
	switch s {
	case StepWelcome:
		return "welcome"
	case StepPermissions:
		return "permissions"
	case StepSetup:
		return "setup"
	case StepModels:
		return "models"
	case StepFinish:
		return "finish"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// ErrStepGated is returned when Advance is called while the current step's
// blocking condition still holds.
var ErrStepGated = errors.New("current step is not complete")

// ErrAlreadyFinished is returned when Advance is called past the final step.
var ErrAlreadyFinished = errors.New("onboarding already finished")

// PermissionChecker reports whether every tracked permission is authorized.
type PermissionChecker interface {
	AllAuthorized() bool
}

// SetupReader exposes the setup pipeline snapshot.
type SetupReader interface {
	Snapshot() setup.Snapshot
}

// StatusRecorder persists step progression and the final completion mark.
type StatusRecorder interface {
	SetStep(step int)
	Complete() error
}

// Controller walks the fixed onboarding step sequence. Each Advance
// re-evaluates the current step's gate against live coordinator state, and
// Finish commits the completed record before the host callback runs.
type Controller struct {
	mu          sync.Mutex
	logger      *zap.Logger
	permissions PermissionChecker
	pipeline    SetupReader
	status      StatusRecorder
	onComplete  func()
	completeOne sync.Once
	current     Step
	finished    bool
}

// NewController starts at the given step, letting a restored record resume
// where the user left off.
func NewController(startStep Step, permissions PermissionChecker, pipeline SetupReader, status StatusRecorder, onComplete func(), logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if startStep < StepWelcome || startStep > StepFinish {
		startStep = StepWelcome
	}

	return &Controller{
		logger:      logger,
		permissions: permissions,
		pipeline:    pipeline,
		status:      status,
		onComplete:  onComplete,
		current:     startStep,
	}
}

// CurrentStep returns the active step.
func (c *Controller) CurrentStep() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// CanAdvance reports whether the active step's gate is open.
func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	return c.gateOpen(current)
}

// Advance moves to the next step when the active step's gate is open, and
// records the new step in the persisted status.
func (c *Controller) Advance() (Step, error) {
	c.mu.Lock()
	if c.finished || c.current >= StepFinish {
		c.mu.Unlock()
		return c.current, ErrAlreadyFinished
	}
	current := c.current
	c.mu.Unlock()

	if !c.gateOpen(current) {
		return current, fmt.Errorf("%w: %s", ErrStepGated, current)
	}

	c.mu.Lock()
	if c.current != current {
		next := c.current
		c.mu.Unlock()
		return next, nil
	}
	c.current = current + 1
	next := c.current
	c.mu.Unlock()

	c.status.SetStep(int(next))
	c.logger.Info("onboarding step advanced", zap.Stringer("step", next))
	return next, nil
}

// Finish completes onboarding from the final step. The completed record is
// persisted before the host callback fires, and the callback fires at most
// once across repeated calls.
func (c *Controller) Finish() error {
	c.mu.Lock()
	if c.current != StepFinish {
		current := c.current
		c.mu.Unlock()
		return fmt.Errorf("%w: on %s", ErrStepGated, current)
	}
	c.finished = true
	c.mu.Unlock()

	if err := c.status.Complete(); err != nil {
		return fmt.Errorf("finish onboarding: %w", err)
	}

	c.completeOne.Do(func() {
		if c.onComplete != nil {
			c.onComplete()
		}
	})
	return nil
}

// gateOpen evaluates the blocking condition for one step. Gates read live
// coordinator state so a change on either side is picked up on the next call.
func (c *Controller) gateOpen(step Step) bool {
	switch step {
	case StepWelcome:
		return true
	case StepPermissions:
		return c.permissions.AllAuthorized()
	case StepSetup:
		snapshot := c.pipeline.Snapshot()
		return snapshot.DatabaseReady
	case StepModels:
		snapshot := c.pipeline.Snapshot()
		return snapshot.DatabaseReady &&
			snapshot.Transcription.State == setup.StageDownloaded &&
			snapshot.Summary.State == setup.StageDownloaded
	default:
		return false
	}
}
