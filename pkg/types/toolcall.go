package types

// Tool names understood by the tool-call endpoint.
const (
	ToolEditor      = "str_replace_editor"
	ToolFileManager = "file_manager"
)

// ToolCall is one file-edit command issued by the agent.
type ToolCall struct {
	Tool       string `json:"tool"`
	Command    string `json:"command"` // view, create, str_replace, insert, rename, delete
	Path       string `json:"path"`
	NewPath    string `json:"new_path,omitempty"`
	FileText   string `json:"file_text,omitempty"`
	OldStr     string `json:"old_str,omitempty"`
	NewStr     string `json:"new_str,omitempty"`
	InsertLine int    `json:"insert_line,omitempty"`
	ViewRange  []int  `json:"view_range,omitempty"`
}

// ToolCallRequest is a batch of commands applied together.
type ToolCallRequest struct {
	Calls []ToolCall `json:"calls"`
}

// ToolResult reports the outcome of one command.
type ToolResult struct {
	OK     bool     `json:"ok"`
	Paths  []string `json:"paths,omitempty"`
	Output string   `json:"output,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// ToolCallResponse is returned after a batch has been applied and compiled.
type ToolCallResponse struct {
	Results     []ToolResult `json:"results"`
	Revision    uint64       `json:"revision"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}
