// Package protocol defines the wire types of the bridge RPC protocol:
// command/response envelopes, the closed command type enumeration,
// payload and result shapes, broadcast events and the error taxonomy.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Command type constants. The dispatcher matches this set exhaustively;
// anything else is answered with an "unrecognized command type" error.
const (
	CommandOpenFile                = "openFile"
	CommandRunInTerminal           = "runInTerminal"
	CommandRunInTerminalAndCapture = "runInTerminalAndCapture"
	CommandGetTerminalOutput       = "getTerminalOutput"
	CommandCreateCheckpoint        = "createCheckpoint"
	CommandRestoreCheckpoint       = "restoreCheckpoint"
	CommandListCheckpoints         = "listCheckpoints"
	CommandGetCheckpointDiff       = "getCheckpointDiff"
	CommandGetDiagnostics          = "getDiagnostics"
	CommandGetCodeActions          = "getCodeActions"
	CommandApplyCodeAction         = "applyCodeAction"
	CommandGoToDefinition          = "goToDefinition"
	CommandFindReferences          = "findReferences"
	CommandSearchSymbols           = "searchSymbols"
	CommandFormatDocument          = "formatDocument"
	CommandGetHover                = "getHover"
	CommandCollabStart             = "collabStart"
	CommandCollabEnd               = "collabEnd"
	CommandCollabParticipants      = "collabParticipants"
)

// Broadcast event type constants.
const (
	EventDiagnosticsUpdated = "diagnostics-updated"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventCursorUpdate       = "cursor-update"
	EventSessionChanged     = "session-changed"
	EventSessionEnded       = "session-ended"
)

// CommandEnvelope is one request from the agent. The id is an opaque
// correlation token; it is echoed back verbatim in the response.
type CommandEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResponseEnvelope is the single reply produced for a CommandEnvelope.
type ResponseEnvelope struct {
	ID      string      `json:"id"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK builds a successful response correlated with the request id.
func OK(id string, data interface{}) *ResponseEnvelope {
	return &ResponseEnvelope{ID: id, Success: true, Data: data}
}

// Fail builds an error response correlated with the request id.
func Fail(id string, err error) *ResponseEnvelope {
	return &ResponseEnvelope{ID: id, Success: false, Error: err.Error()}
}

// BroadcastEvent is a transient notification fanned out to every client
// connected at publish time. There is no replay for late joiners.
type BroadcastEvent struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewEvent builds a broadcast event stamped with the current time.
func NewEvent(eventType string, payload interface{}) *BroadcastEvent {
	return &BroadcastEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Error taxonomy. Handlers wrap these sentinels; the dispatcher flattens
// everything into {success:false, error} before it crosses the socket.
var (
	// ErrNotFound covers unknown terminal and checkpoint ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCommand covers unrecognized types and malformed payloads.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrUpstream covers failed version-control, subprocess and analyzer
	// calls; the upstream message is passed through verbatim.
	ErrUpstream = errors.New("upstream failure")
)

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidCommandf wraps ErrInvalidCommand with a formatted message.
func InvalidCommandf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}

// Upstreamf wraps ErrUpstream with a formatted message.
func Upstreamf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUpstream, fmt.Sprintf(format, args...))
}
