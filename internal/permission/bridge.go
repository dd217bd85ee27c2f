package permission

import (
	"context"
	"fmt"
	"os/exec"
	goruntime "runtime"
	"time"

	"go.uber.org/zap"

	"github.com/neillmiller2/Verbatim/internal/audio"
	"github.com/neillmiller2/Verbatim/internal/domain"
)

// systemAudioSettleWait is how long the system audio trigger waits before
// inferring success from the absence of an error. The platform never
// confirms the grant explicitly; this is a heuristic, not a guarantee.
const systemAudioSettleWait = 2 * time.Second

// SystemBridge implements Bridge against the host OS. Opening a capture
// stream is what raises the microphone dialog on macOS, so the probes double
// as permission triggers.
type SystemBridge struct {
	probeInput  func(ctx context.Context) error
	probeOutput func(ctx context.Context) error
	runOpen     func(name string, args ...string) error
	settleWait  time.Duration
	logger      *zap.Logger
}

// NewSystemBridge creates a bridge using real audio and OS dependencies.
func NewSystemBridge(logger *zap.Logger) *SystemBridge {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SystemBridge{
		probeInput:  audio.ProbeDefaultInput,
		probeOutput: audio.ProbeDefaultOutput,
		runOpen: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
		settleWait: systemAudioSettleWait,
		logger:     logger,
	}
}

// TriggerMicrophone opens the default capture device, prompting the OS
// dialog on first access, and reports whether capture is possible.
func (b *SystemBridge) TriggerMicrophone(ctx context.Context) (bool, error) {
	if err := b.probeInput(ctx); err != nil {
		return false, fmt.Errorf("probe default input: %w", err)
	}
	return true, nil
}

// TriggerSystemAudio opens the default playback endpoint used for loopback
// capture, then waits a fixed interval. No error within the window is taken
// as a grant.
func (b *SystemBridge) TriggerSystemAudio(ctx context.Context) error {
	if err := b.probeOutput(ctx); err != nil {
		return fmt.Errorf("probe default output: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.settleWait):
	}
	return nil
}

// Snapshot re-probes both endpoints and maps the outcome to states. Used
// after the user returns from system settings.
func (b *SystemBridge) Snapshot(ctx context.Context) (domain.PermissionSnapshot, error) {
	snapshot := domain.PermissionSnapshot{
		Microphone:  domain.PermissionAuthorized,
		SystemAudio: domain.PermissionAuthorized,
	}

	if err := b.probeInput(ctx); err != nil {
		b.logger.Debug("microphone probe failed during recheck", zap.Error(err))
		snapshot.Microphone = domain.PermissionDenied
	}
	if err := b.probeOutput(ctx); err != nil {
		b.logger.Debug("system audio probe failed during recheck", zap.Error(err))
		snapshot.SystemAudio = domain.PermissionDenied
	}
	return snapshot, nil
}

// OpenSystemSettings launches the platform privacy pane for kind.
func (b *SystemBridge) OpenSystemSettings(kind domain.PermissionKind) error {
	var name string
	var args []string

	switch goruntime.GOOS {
	case "darwin":
		pane := "x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone"
		if kind == domain.PermissionSystemAudio {
			pane = "x-apple.systempreferences:com.apple.preference.security?Privacy_AudioCapture"
		}
		name, args = "open", []string{pane}
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", "ms-settings:privacy-microphone"}
	default:
		name, args = "xdg-open", []string{"settings://privacy"}
	}

	if err := b.runOpen(name, args...); err != nil {
		return fmt.Errorf("launch system settings: %w", err)
	}
	return nil
}
