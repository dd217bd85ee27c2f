package domain

import "time"

// PermissionState tracks the lifecycle of one OS capability grant.
type PermissionState string

const (
	PermissionNotDetermined PermissionState = "not_determined"
	PermissionAuthorized    PermissionState = "authorized"
	PermissionDenied        PermissionState = "denied"
)

// PermissionKind identifies which capability a request targets.
type PermissionKind string

const (
	PermissionMicrophone  PermissionKind = "microphone"
	PermissionSystemAudio PermissionKind = "system_audio"
)

// PermissionSnapshot is the persisted per-permission state pair.
type PermissionSnapshot struct {
	Microphone  PermissionState `json:"microphone"`
	SystemAudio PermissionState `json:"systemAudio"`
}

// ModelKind distinguishes the two local AI models the app needs.
type ModelKind string

const (
	ModelTranscription ModelKind = "transcription"
	ModelSummary       ModelKind = "summary"
)

// ModelDownloadState is the persisted per-model download marker.
type ModelDownloadState string

const (
	ModelNotDownloaded ModelDownloadState = "not_downloaded"
	ModelDownloading   ModelDownloadState = "downloading"
	ModelDownloaded    ModelDownloadState = "downloaded"
)

// ModelStatus records download markers for both required models.
type ModelStatus struct {
	Transcription ModelDownloadState `json:"transcription"`
	Summary       ModelDownloadState `json:"summary"`
}

// OnboardingStatus is the single persisted onboarding record.
type OnboardingStatus struct {
	Version     string             `json:"version"`
	Completed   bool               `json:"completed"`
	CurrentStep int                `json:"currentStep"`
	Permissions PermissionSnapshot `json:"permissions"`
	ModelStatus ModelStatus        `json:"modelStatus"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// AudioDeviceType classifies an audio endpoint direction.
type AudioDeviceType string

const (
	AudioDeviceInput  AudioDeviceType = "Input"
	AudioDeviceOutput AudioDeviceType = "Output"
)

// AudioDevice is one capture or playback endpoint shown during onboarding.
type AudioDevice struct {
	Name       string          `json:"name"`
	DeviceType AudioDeviceType `json:"device_type"`
}
