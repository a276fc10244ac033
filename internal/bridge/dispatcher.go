package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/codefionn/agentbridge/internal/analysis"
	"github.com/codefionn/agentbridge/internal/checkpoint"
	"github.com/codefionn/agentbridge/internal/collab"
	"github.com/codefionn/agentbridge/internal/diagnostics"
	"github.com/codefionn/agentbridge/internal/logger"
	"github.com/codefionn/agentbridge/internal/protocol"
	"github.com/codefionn/agentbridge/internal/terminal"
)

// Dispatcher routes command envelopes to component handlers. The
// command enumeration is matched exhaustively; an unknown type is an
// explicit error case, never a silent fallthrough. The dispatcher
// holds no locks of its own: serialization requirements live in the
// components that need them (the checkpoint manager in particular).
type Dispatcher struct {
	terminals   *terminal.Manager
	checkpoints *checkpoint.Manager
	analyzer    analysis.Analyzer
	collab      collab.Provider
	diag        *diagnostics.Collector
	log         *logger.Logger
}

// NewDispatcher wires the component registries into a dispatcher.
func NewDispatcher(terminals *terminal.Manager, checkpoints *checkpoint.Manager, analyzer analysis.Analyzer, provider collab.Provider, diag *diagnostics.Collector, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Global()
	}
	return &Dispatcher{
		terminals:   terminals,
		checkpoints: checkpoints,
		analyzer:    analyzer,
		collab:      provider,
		diag:        diag,
		log:         log.WithPrefix("dispatch"),
	}
}

// SetDiagnostics attaches the diagnostics collector. Called once during
// startup wiring, before the server starts accepting connections: the
// collector needs the server's hub, which in turn needs the dispatcher.
func (d *Dispatcher) SetDiagnostics(diag *diagnostics.Collector) {
	d.diag = diag
}

// Dispatch executes one command and produces exactly one response.
// Handler panics are recovered into a structured error response; no
// single bad command can take the dispatcher down.
func (d *Dispatcher) Dispatch(ctx context.Context, env *protocol.CommandEnvelope) (resp *protocol.ResponseEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Handler panic for %s: %v", env.Type, r)
			resp = protocol.Fail(env.ID, protocol.Upstreamf("internal error: %v", r))
		}
	}()

	d.log.Debug("Dispatching %s (id=%s)", env.Type, env.ID)

	var data interface{}
	var err error

	switch env.Type {
	case protocol.CommandOpenFile:
		data, err = d.handleOpenFile(ctx, env.Payload)
	case protocol.CommandRunInTerminal:
		data, err = d.handleRunInTerminal(ctx, env.Payload)
	case protocol.CommandRunInTerminalAndCapture:
		data, err = d.handleRunInTerminalAndCapture(ctx, env.Payload)
	case protocol.CommandGetTerminalOutput:
		data, err = d.handleGetTerminalOutput(env.Payload)
	case protocol.CommandCreateCheckpoint:
		data, err = d.handleCreateCheckpoint(ctx, env.Payload)
	case protocol.CommandRestoreCheckpoint:
		data, err = d.handleRestoreCheckpoint(ctx, env.Payload)
	case protocol.CommandListCheckpoints:
		data, err = d.handleListCheckpoints(ctx)
	case protocol.CommandGetCheckpointDiff:
		data, err = d.handleGetCheckpointDiff(ctx, env.Payload)
	case protocol.CommandGetDiagnostics:
		data = d.handleGetDiagnostics()
	case protocol.CommandGoToDefinition:
		data, err = d.handleLocationsQuery(ctx, env.Payload, d.analyzer.GoToDefinition)
	case protocol.CommandFindReferences:
		data, err = d.handleLocationsQuery(ctx, env.Payload, d.analyzer.FindReferences)
	case protocol.CommandSearchSymbols:
		data, err = d.handleSearchSymbols(ctx, env.Payload)
	case protocol.CommandGetHover:
		data, err = d.handleGetHover(ctx, env.Payload)
	case protocol.CommandGetCodeActions:
		data, err = d.handleGetCodeActions(ctx, env.Payload)
	case protocol.CommandApplyCodeAction:
		data, err = d.handleApplyCodeAction(ctx, env.Payload)
	case protocol.CommandFormatDocument:
		data, err = d.handleFormatDocument(ctx, env.Payload)
	case protocol.CommandCollabStart:
		data, err = d.handleCollabStart(ctx)
	case protocol.CommandCollabEnd:
		data, err = d.handleCollabEnd(ctx)
	case protocol.CommandCollabParticipants:
		data, err = d.handleCollabParticipants(ctx)
	default:
		err = protocol.InvalidCommandf("unrecognized command type: %q", env.Type)
	}

	if err != nil {
		return protocol.Fail(env.ID, err)
	}
	return protocol.OK(env.ID, data)
}

// decodePayload parses a payload into its typed shape. An absent
// payload is valid for commands whose fields are all optional.
func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.InvalidCommandf("malformed payload: %v", err)
	}
	return nil
}

func (d *Dispatcher) handleOpenFile(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.OpenFilePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.FilePath == "" {
		return nil, protocol.InvalidCommandf("filePath is required")
	}
	if err := d.analyzer.OpenFile(ctx, p.FilePath, p.Line); err != nil {
		return nil, err
	}
	return map[string]interface{}{"opened": true, "filePath": p.FilePath}, nil
}

func (d *Dispatcher) handleRunInTerminal(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.RunInTerminalPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	result, err := d.terminals.Create(ctx, p.TerminalName, p.Command, false, 0)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"started": true, "terminalName": result.TerminalID}, nil
}

func (d *Dispatcher) handleRunInTerminalAndCapture(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.RunInTerminalAndCapturePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	timeout := time.Duration(p.TimeoutMs) * time.Millisecond
	return d.terminals.Create(ctx, p.TerminalID, p.Command, p.WaitForOutput, timeout)
}

func (d *Dispatcher) handleGetTerminalOutput(raw json.RawMessage) (interface{}, error) {
	var p protocol.GetTerminalOutputPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.TerminalID == "" {
		return nil, protocol.InvalidCommandf("terminalId is required")
	}
	return d.terminals.Get(p.TerminalID)
}

func (d *Dispatcher) handleCreateCheckpoint(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.CreateCheckpointPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	return d.checkpoints.Create(ctx, p.CheckpointID)
}

func (d *Dispatcher) handleRestoreCheckpoint(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.RestoreCheckpointPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	result, files, err := d.checkpoints.Restore(ctx, p.CheckpointID)
	if err != nil {
		return nil, err
	}
	// Best effort: the restore itself already succeeded.
	if len(files) > 0 {
		if err := d.analyzer.ReloadFiles(ctx, files); err != nil {
			d.log.Warn("Editor reload after restore failed: %v", err)
		}
	}
	return result, nil
}

func (d *Dispatcher) handleListCheckpoints(ctx context.Context) (interface{}, error) {
	entries, err := d.checkpoints.List(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []checkpoint.Entry{}
	}
	return map[string]interface{}{"checkpoints": entries}, nil
}

func (d *Dispatcher) handleGetCheckpointDiff(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.GetCheckpointDiffPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.BackingRef == "" {
		return nil, protocol.InvalidCommandf("backingRef is required")
	}
	return d.checkpoints.Diff(ctx, p.BackingRef), nil
}

func (d *Dispatcher) handleGetDiagnostics() interface{} {
	if d.diag == nil {
		return protocol.DiagnosticsSnapshot{Diagnostics: []protocol.DiagnosticRecord{}}
	}
	return d.diag.Snapshot()
}

func (d *Dispatcher) handleLocationsQuery(ctx context.Context, raw json.RawMessage, query func(context.Context, analysis.Location) ([]analysis.Location, error)) (interface{}, error) {
	loc, err := decodeLocation(raw)
	if err != nil {
		return nil, err
	}
	locations, err := query(ctx, loc)
	if err != nil {
		return nil, err
	}
	if locations == nil {
		locations = []analysis.Location{}
	}
	return map[string]interface{}{"locations": locations}, nil
}

func (d *Dispatcher) handleSearchSymbols(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.SearchSymbolsPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, protocol.InvalidCommandf("query is required")
	}
	symbols, err := d.analyzer.SearchSymbols(ctx, p.Query)
	if err != nil {
		return nil, err
	}
	if symbols == nil {
		symbols = []analysis.SymbolInfo{}
	}
	return map[string]interface{}{"symbols": symbols}, nil
}

func (d *Dispatcher) handleGetHover(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	loc, err := decodeLocation(raw)
	if err != nil {
		return nil, err
	}
	return d.analyzer.GetHover(ctx, loc)
}

func (d *Dispatcher) handleGetCodeActions(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	loc, err := decodeLocation(raw)
	if err != nil {
		return nil, err
	}
	actions, err := d.analyzer.GetCodeActions(ctx, loc)
	if err != nil {
		return nil, err
	}
	if actions == nil {
		actions = []analysis.CodeAction{}
	}
	return map[string]interface{}{"actions": actions}, nil
}

func (d *Dispatcher) handleApplyCodeAction(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.ApplyCodeActionPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.ActionID == "" {
		return nil, protocol.InvalidCommandf("actionId is required")
	}
	if err := d.analyzer.ApplyCodeAction(ctx, p.FilePath, p.ActionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"applied": true}, nil
}

func (d *Dispatcher) handleFormatDocument(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p protocol.FormatDocumentPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.FilePath == "" {
		return nil, protocol.InvalidCommandf("filePath is required")
	}
	if err := d.analyzer.FormatDocument(ctx, p.FilePath); err != nil {
		return nil, err
	}
	return map[string]interface{}{"formatted": true}, nil
}

func (d *Dispatcher) handleCollabStart(ctx context.Context) (interface{}, error) {
	link, err := d.collab.Start(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"shareLink": link}, nil
}

func (d *Dispatcher) handleCollabEnd(ctx context.Context) (interface{}, error) {
	if err := d.collab.End(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{"ended": true}, nil
}

func (d *Dispatcher) handleCollabParticipants(ctx context.Context) (interface{}, error) {
	participants, err := d.collab.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	if participants == nil {
		participants = []collab.Participant{}
	}
	return map[string]interface{}{"participants": participants}, nil
}

func decodeLocation(raw json.RawMessage) (analysis.Location, error) {
	var p protocol.FilePositionPayload
	if err := decodePayload(raw, &p); err != nil {
		return analysis.Location{}, err
	}
	if p.FilePath == "" {
		return analysis.Location{}, protocol.InvalidCommandf("filePath is required")
	}
	return analysis.Location{FilePath: p.FilePath, Line: p.Line, Column: p.Column}, nil
}
