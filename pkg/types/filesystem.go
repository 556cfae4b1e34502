package types

// EntryInfo represents a file or directory entry.
type EntryInfo struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size,omitempty"`
	Path  string `json:"path"`
}

// FileInfo provides detailed information about a file.
type FileInfo struct {
	Name    string `json:"name"`
	IsDir   bool   `json:"isDir"`
	Size    int64  `json:"size"`
	Version uint64 `json:"version"`
	ModTime string `json:"modTime"`
	Path    string `json:"path"`
}

// MoveRequest renames or moves a node to a new absolute path.
type MoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ChangeEvent mirrors a file system change for clients.
type ChangeEvent struct {
	Type    string `json:"type"` // "created", "updated", "deleted", "renamed", "reset"
	Path    string `json:"path"`
	OldPath string `json:"oldPath,omitempty"`
}
