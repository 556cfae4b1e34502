package types

import (
	"encoding/json"
	"time"
)

// Project event types.
const (
	EventCreated       = "created"
	EventDeleted       = "deleted"
	EventCompiled      = "compiled"
	EventCompileFailed = "compile_failed"
	EventToolCalls     = "tool_calls"
	EventHibernated    = "hibernated"
	EventWoken         = "woken"
)

// ProjectEvent is published for every compilation and lifecycle change.
// Update is set for compile events.
type ProjectEvent struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectID"`
	Revision  uint64          `json:"revision"`
	Update    *PreviewUpdate  `json:"update,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
