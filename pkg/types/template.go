package types

import "time"

// Template is a starter project that new projects can be seeded from.
type Template struct {
	ID          string    `json:"templateID"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Entry       string    `json:"entry"`
	Files       int       `json:"files"`
	CreatedAt   time.Time `json:"createdAt"`
}
