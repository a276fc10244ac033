package protocol

import "time"

// Severity is the normalized 4-level diagnostic severity.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// DiagnosticRecord is one analyzer-reported issue at a file location.
// Line and column are 1-based; the file path is workspace-relative.
type DiagnosticRecord struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Source   string   `json:"source,omitempty"`
	Code     string   `json:"code,omitempty"`
}

// DiagnosticsSnapshot is the complete recollected set for one cycle.
// The same shape is written to the shared diagnostics file and carried
// by the diagnostics-updated broadcast event.
type DiagnosticsSnapshot struct {
	Timestamp   time.Time          `json:"timestamp"`
	Count       int                `json:"count"`
	Diagnostics []DiagnosticRecord `json:"diagnostics"`
}

// OpenFilePayload asks the editor to open a file, optionally at a line.
type OpenFilePayload struct {
	FilePath string `json:"filePath"`
	Line     int    `json:"line,omitempty"`
}

// RunInTerminalPayload starts a command in a named, editor-visible
// terminal without capturing its output.
type RunInTerminalPayload struct {
	Command      string `json:"command"`
	TerminalName string `json:"terminalName,omitempty"`
}

// RunInTerminalAndCapturePayload starts a command in a tracked terminal
// session. If WaitForOutput is set, the handler suspends for TimeoutMs
// wall-clock milliseconds and returns the output snapshot at that
// instant; the timeout is deliberately not tied to command completion.
type RunInTerminalAndCapturePayload struct {
	Command       string `json:"command"`
	TerminalID    string `json:"terminalId,omitempty"`
	WaitForOutput bool   `json:"waitForOutput,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// GetTerminalOutputPayload queries a tracked terminal session by id.
type GetTerminalOutputPayload struct {
	TerminalID string `json:"terminalId"`
}

// TerminalCaptureResult is the snapshot returned for capture and
// output queries. ExitCode is nil while the command is still running
// (or in interactive mode, where no exit code is observable).
type TerminalCaptureResult struct {
	TerminalID string `json:"terminalId"`
	Output     string `json:"output"`
	IsRunning  bool   `json:"isRunning"`
	ExitCode   *int   `json:"exitCode,omitempty"`
}

// CreateCheckpointPayload names the checkpoint to create.
type CreateCheckpointPayload struct {
	CheckpointID string `json:"checkpointId"`
}

// RestoreCheckpointPayload names the checkpoint to restore.
type RestoreCheckpointPayload struct {
	CheckpointID string `json:"checkpointId"`
}

// GetCheckpointDiffPayload addresses a snapshot by its backing
// reference (not by logical id: diffs are read against a ref the
// caller got from a list result).
type GetCheckpointDiffPayload struct {
	BackingRef string `json:"backingRef"`
}

// FilePositionPayload is the shared payload of the analyzer queries
// addressed to a single position (goToDefinition, findReferences,
// getHover, getCodeActions).
type FilePositionPayload struct {
	FilePath string `json:"filePath"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// SearchSymbolsPayload is a workspace-wide symbol query.
type SearchSymbolsPayload struct {
	Query string `json:"query"`
}

// FormatDocumentPayload names the document to format.
type FormatDocumentPayload struct {
	FilePath string `json:"filePath"`
}

// ApplyCodeActionPayload applies a previously listed code action.
type ApplyCodeActionPayload struct {
	FilePath string `json:"filePath"`
	ActionID string `json:"actionId"`
}
