package analysis

import (
	"context"

	"github.com/codefionn/agentbridge/internal/protocol"
)

// Unavailable is the Analyzer used when no language-analysis engine is
// reachable. Queries fail with an upstream error; the editor-side
// operations (open, reload) degrade to no-ops so checkpoint restores
// and diagnostics collection keep working without an analyzer.
type Unavailable struct{}

// NewUnavailable returns the fallback analyzer.
func NewUnavailable() *Unavailable { return &Unavailable{} }

func (u *Unavailable) OpenFile(ctx context.Context, filePath string, line int) error {
	return nil
}

func (u *Unavailable) ReloadFiles(ctx context.Context, filePaths []string) error {
	return nil
}

func (u *Unavailable) GoToDefinition(ctx context.Context, loc Location) ([]Location, error) {
	return nil, protocol.Upstreamf("language analyzer unavailable")
}

func (u *Unavailable) FindReferences(ctx context.Context, loc Location) ([]Location, error) {
	return nil, protocol.Upstreamf("language analyzer unavailable")
}

func (u *Unavailable) SearchSymbols(ctx context.Context, query string) ([]SymbolInfo, error) {
	return nil, protocol.Upstreamf("language analyzer unavailable")
}

func (u *Unavailable) GetHover(ctx context.Context, loc Location) (Hover, error) {
	return Hover{}, protocol.Upstreamf("language analyzer unavailable")
}

func (u *Unavailable) GetCodeActions(ctx context.Context, loc Location) ([]CodeAction, error) {
	return nil, protocol.Upstreamf("language analyzer unavailable")
}

func (u *Unavailable) ApplyCodeAction(ctx context.Context, filePath, actionID string) error {
	return protocol.Upstreamf("language analyzer unavailable")
}

func (u *Unavailable) FormatDocument(ctx context.Context, filePath string) error {
	return protocol.Upstreamf("language analyzer unavailable")
}

func (u *Unavailable) Diagnostics(ctx context.Context) ([]protocol.DiagnosticRecord, error) {
	return nil, nil
}

func (u *Unavailable) Changes() <-chan struct{} { return nil }
