package audio

import (
	"testing"

	"github.com/neillmiller2/Verbatim/internal/domain"
)

// TestClassifyInputOnly maps a capture-only endpoint to one input entry.
func TestClassifyInputOnly(t *testing.T) {
	devices := Classify("Built-in Microphone", 2, 0)
	if len(devices) != 1 {
		t.Fatalf("len = %d, want 1", len(devices))
	}
	if devices[0].DeviceType != domain.AudioDeviceInput {
		t.Fatalf("type = %s, want Input", devices[0].DeviceType)
	}
	if devices[0].Name != "Built-in Microphone" {
		t.Fatalf("name = %q", devices[0].Name)
	}
}

// TestClassifyDuplexDevice yields one entry per supported direction.
func TestClassifyDuplexDevice(t *testing.T) {
	devices := Classify("USB Headset", 1, 2)
	if len(devices) != 2 {
		t.Fatalf("len = %d, want 2", len(devices))
	}
	if devices[0].DeviceType != domain.AudioDeviceInput || devices[1].DeviceType != domain.AudioDeviceOutput {
		t.Fatalf("unexpected classification: %+v", devices)
	}
}

// TestClassifyNoChannels drops endpoints with no usable channels.
func TestClassifyNoChannels(t *testing.T) {
	if devices := Classify("Phantom", 0, 0); len(devices) != 0 {
		t.Fatalf("expected no entries, got %+v", devices)
	}
}
