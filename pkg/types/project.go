package types

import "time"

// ProjectStatus represents whether a project's session is loaded in memory.
type ProjectStatus string

const (
	ProjectStatusActive     ProjectStatus = "active"
	ProjectStatusHibernated ProjectStatus = "hibernated"
)

// Project is a single virtual project: one file tree and its live preview.
type Project struct {
	ID        string            `json:"projectID"`
	Name      string            `json:"name"`
	Template  string            `json:"templateID,omitempty"`
	Status    ProjectStatus     `json:"status"`
	Revision  uint64            `json:"revision"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ProjectConfig is the request body for creating a project.
type ProjectConfig struct {
	Name     string            `json:"name"`
	Template string            `json:"templateID,omitempty"`
	Files    map[string]string `json:"files,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ProjectListResponse is the response for listing projects.
type ProjectListResponse struct {
	Projects []Project `json:"projects"`
}

// Snapshot is the flat path to content map exchanged with persistence.
type Snapshot struct {
	Files map[string]string `json:"files"`
}
