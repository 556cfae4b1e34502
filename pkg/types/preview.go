package types

// ImportMap is the browser import map document.
type ImportMap struct {
	Imports map[string]string `json:"imports"`
}

// BlobRef names one compiled module and where the renderer loads it from.
type BlobRef struct {
	Path   string `json:"path"`
	Handle string `json:"handle"`
	URL    string `json:"url"`
}

// Artifact is everything a renderer needs to execute the entry module.
type Artifact struct {
	Revision    uint64       `json:"revision"`
	Entry       BlobRef      `json:"entry"`
	ImportMap   ImportMap    `json:"importMap"`
	Blobs       []BlobRef    `json:"blobs"`
	Styles      []string     `json:"styles,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// PreviewUpdate is pushed to live renderers after every compilation.
// Artifact is nil when the pass produced no entry point.
type PreviewUpdate struct {
	ProjectID   string       `json:"projectID"`
	Revision    uint64       `json:"revision"`
	Artifact    *Artifact    `json:"artifact,omitempty"`
	Error       string       `json:"error,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// PreviewToken grants read access to one project's preview.
type PreviewToken struct {
	Token     string `json:"token"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expiresAt"`
}
