package domain

// ModelOption describes one downloadable local AI model preset.
type ModelOption struct {
	ID          string    `json:"id"`
	Kind        ModelKind `json:"kind"`
	Name        string    `json:"name"`
	FileName    string    `json:"fileName"`
	URL         string    `json:"url"`
	SizeLabel   string    `json:"sizeLabel,omitempty"`
	Description string    `json:"description,omitempty"`
	Downloaded  bool      `json:"downloaded"`
	LocalPath   string    `json:"localPath,omitempty"`
}
