package flow

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/neillmiller2/Verbatim/internal/setup"
)

type fakePermissions struct {
	authorized bool
}

func (p *fakePermissions) AllAuthorized() bool { return p.authorized }

type fakePipeline struct {
	snapshot setup.Snapshot
}

func (p *fakePipeline) Snapshot() setup.Snapshot { return p.snapshot }

type fakeRecorder struct {
	mu          sync.Mutex
	steps       []int
	completes   int
	completeErr error
}

func (r *fakeRecorder) SetStep(step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *fakeRecorder) Complete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
	return r.completeErr
}

func readyPipeline() *fakePipeline {
	return &fakePipeline{snapshot: setup.Snapshot{
		DatabaseReady: true,
		Transcription: setup.StageStatus{State: setup.StageDownloaded, Progress: 100},
		Summary:       setup.StageStatus{State: setup.StageDownloaded, Progress: 100},
	}}
}

// TestAdvanceWalksFixedOrder steps welcome through finish with open gates.
func TestAdvanceWalksFixedOrder(t *testing.T) {
	recorder := &fakeRecorder{}
	c := NewController(StepWelcome, &fakePermissions{authorized: true}, readyPipeline(), recorder, nil, zap.NewNop())

	want := []Step{StepPermissions, StepSetup, StepModels, StepFinish}
	for _, next := range want {
		got, err := c.Advance()
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if got != next {
			t.Fatalf("Advance() = %s, want %s", got, next)
		}
	}

	if _, err := c.Advance(); !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("error = %v, want ErrAlreadyFinished", err)
	}
	if len(recorder.steps) != 4 || recorder.steps[3] != int(StepFinish) {
		t.Fatalf("recorded steps = %v, want each advance persisted", recorder.steps)
	}
}

// TestPermissionsGateBlocksAdvance requires every permission authorized.
func TestPermissionsGateBlocksAdvance(t *testing.T) {
	permissions := &fakePermissions{}
	c := NewController(StepPermissions, permissions, readyPipeline(), &fakeRecorder{}, nil, zap.NewNop())

	if c.CanAdvance() {
		t.Fatal("gate must be closed with pending permissions")
	}
	if _, err := c.Advance(); !errors.Is(err, ErrStepGated) {
		t.Fatalf("error = %v, want ErrStepGated", err)
	}
	if got := c.CurrentStep(); got != StepPermissions {
		t.Fatalf("step = %s, want unchanged", got)
	}

	permissions.authorized = true
	if next, err := c.Advance(); err != nil || next != StepSetup {
		t.Fatalf("Advance() = %s, %v after grant", next, err)
	}
}

// TestSetupGateBlocksOnDatabaseError keeps the user on the setup step.
func TestSetupGateBlocksOnDatabaseError(t *testing.T) {
	pipeline := &fakePipeline{snapshot: setup.Snapshot{DatabaseError: "disk full"}}
	c := NewController(StepSetup, &fakePermissions{authorized: true}, pipeline, &fakeRecorder{}, nil, zap.NewNop())

	if _, err := c.Advance(); !errors.Is(err, ErrStepGated) {
		t.Fatalf("error = %v, want ErrStepGated", err)
	}

	pipeline.snapshot.DatabaseError = ""
	pipeline.snapshot.DatabaseReady = true
	if next, err := c.Advance(); err != nil || next != StepModels {
		t.Fatalf("Advance() = %s, %v after database recovery", next, err)
	}
}

// TestModelsGateRequiresBothDownloads holds until both stages finish.
func TestModelsGateRequiresBothDownloads(t *testing.T) {
	pipeline := &fakePipeline{snapshot: setup.Snapshot{
		DatabaseReady: true,
		Transcription: setup.StageStatus{State: setup.StageDownloaded},
		Summary:       setup.StageStatus{State: setup.StageDownloading, Progress: 40},
	}}
	c := NewController(StepModels, &fakePermissions{authorized: true}, pipeline, &fakeRecorder{}, nil, zap.NewNop())

	if c.CanAdvance() {
		t.Fatal("gate must be closed mid-download")
	}

	pipeline.snapshot.Summary = setup.StageStatus{State: setup.StageDownloaded, Progress: 100}
	if next, err := c.Advance(); err != nil || next != StepFinish {
		t.Fatalf("Advance() = %s, %v once downloads settle", next, err)
	}
}

// TestFinishPersistsBeforeCallbackAndFiresOnce covers the completion order
// and the at-most-once host notification.
func TestFinishPersistsBeforeCallbackAndFiresOnce(t *testing.T) {
	recorder := &fakeRecorder{}
	fired := 0
	var persistedAtCallback int
	c := NewController(StepFinish, &fakePermissions{authorized: true}, readyPipeline(), recorder, func() {
		fired++
		recorder.mu.Lock()
		persistedAtCallback = recorder.completes
		recorder.mu.Unlock()
	}, zap.NewNop())

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1", fired)
	}
	if persistedAtCallback != 1 {
		t.Fatal("completion must be persisted before the callback runs")
	}

	if err := c.Finish(); err != nil {
		t.Fatalf("second Finish() error = %v", err)
	}
	if fired != 1 {
		t.Fatalf("callback fired %d times after repeat, want 1", fired)
	}
}

// TestFinishRejectedBeforeFinalStep gates completion on reaching the end.
func TestFinishRejectedBeforeFinalStep(t *testing.T) {
	recorder := &fakeRecorder{}
	c := NewController(StepModels, &fakePermissions{authorized: true}, readyPipeline(), recorder, nil, zap.NewNop())

	if err := c.Finish(); !errors.Is(err, ErrStepGated) {
		t.Fatalf("error = %v, want ErrStepGated", err)
	}
	if recorder.completes != 0 {
		t.Fatal("Complete must not run before the final step")
	}
}

// TestFinishSurfacesPersistError does not fire the callback on failure.
func TestFinishSurfacesPersistError(t *testing.T) {
	recorder := &fakeRecorder{completeErr: errors.New("read-only volume")}
	fired := false
	c := NewController(StepFinish, &fakePermissions{authorized: true}, readyPipeline(), recorder, func() { fired = true }, zap.NewNop())

	if err := c.Finish(); err == nil {
		t.Fatal("expected persist error to surface")
	}
	if fired {
		t.Fatal("callback must not fire when completion fails to persist")
	}
}

// TestStartStepClampedToRange falls back to the first step.
func TestStartStepClampedToRange(t *testing.T) {
	c := NewController(Step(9), &fakePermissions{}, &fakePipeline{}, &fakeRecorder{}, nil, zap.NewNop())
	if got := c.CurrentStep(); got != StepWelcome {
		t.Fatalf("step = %s, want welcome", got)
	}
}
