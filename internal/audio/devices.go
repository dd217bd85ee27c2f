package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/neillmiller2/Verbatim/internal/domain"
)

// Lister enumerates the host's audio endpoints.
type Lister interface {
	Devices() ([]domain.AudioDevice, error)
}

// PortAudioLister enumerates devices through the portaudio host APIs.
type PortAudioLister struct{}

// NewPortAudioLister creates a lister backed by the real audio subsystem.
func NewPortAudioLister() *PortAudioLister {
	return &PortAudioLister{}
}

// Devices initializes the audio subsystem, lists endpoints, and shuts the
// subsystem down again. Enumeration is rare enough that the init cost per
// call does not matter.
func (l *PortAudioLister) Devices() ([]domain.AudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio subsystem: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate audio devices: %w", err)
	}

	devices := make([]domain.AudioDevice, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Classify(info.Name, info.MaxInputChannels, info.MaxOutputChannels)...)
	}
	return devices, nil
}

// Classify maps one endpoint's channel counts to typed device entries. An
// endpoint supporting both directions yields one entry per direction.
func Classify(name string, inputChannels, outputChannels int) []domain.AudioDevice {
	devices := make([]domain.AudioDevice, 0, 2)
	if inputChannels > 0 {
		devices = append(devices, domain.AudioDevice{Name: name, DeviceType: domain.AudioDeviceInput})
	}
	if outputChannels > 0 {
		devices = append(devices, domain.AudioDevice{Name: name, DeviceType: domain.AudioDeviceOutput})
	}
	return devices
}

// ProbeDefaultInput opens and immediately closes the default capture stream.
// On macOS the first open is what raises the microphone permission dialog.
func ProbeDefaultInput(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize audio subsystem: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	buffer := make([]int16, 256)
	stream, err := portaudio.OpenDefaultStream(1, 0, 16000, len(buffer), buffer)
	if err != nil {
		return fmt.Errorf("open default input stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	return stream.Stop()
}

// ProbeDefaultOutput opens and immediately closes the default playback
// stream, the endpoint later used for system audio loopback capture.
func ProbeDefaultOutput(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize audio subsystem: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	buffer := make([]int16, 256)
	stream, err := portaudio.OpenDefaultStream(0, 1, 16000, len(buffer), buffer)
	if err != nil {
		return fmt.Errorf("open default output stream: %w", err)
	}
	return stream.Close()
}
