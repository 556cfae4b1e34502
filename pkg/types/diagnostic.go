package types

// DiagnosticKind classifies a non-fatal build problem.
type DiagnosticKind string

const (
	DiagnosticParse       DiagnosticKind = "ParseDiagnostic"
	DiagnosticMissing     DiagnosticKind = "MissingModule"
	DiagnosticUnsupported DiagnosticKind = "UnsupportedImport"
)

// Diagnostic is a structured problem attached to a build result. Line and
// Column are 1-based; zero means unknown.
type Diagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	Path      string         `json:"path"`
	Message   string         `json:"message"`
	Line      int            `json:"line,omitempty"`
	Column    int            `json:"column,omitempty"`
	Specifier string         `json:"specifier,omitempty"`
}
