// Package analysis defines the query surface of the external
// language-analysis subsystem. The engine itself is a collaborator;
// the bridge only consumes this interface.
package analysis

import (
	"context"

	"github.com/codefionn/agentbridge/internal/protocol"
)

// Location is a position inside a workspace file. Line and column are
// 1-based.
type Location struct {
	FilePath string `json:"filePath"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// SymbolInfo is one workspace symbol search result.
type SymbolInfo struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Location Location `json:"location"`
}

// CodeAction is one action offered at a location. The id is only
// valid for a subsequent ApplyCodeAction against the same analyzer.
type CodeAction struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Kind  string `json:"kind,omitempty"`
}

// Hover is the analyzer's hover content at a position.
type Hover struct {
	Contents string `json:"contents"`
}

// Analyzer is the language-analysis capability consumed by the
// dispatcher and the diagnostics collector.
type Analyzer interface {
	// OpenFile asks the editor to open (or reveal) a file, optionally
	// at a line.
	OpenFile(ctx context.Context, filePath string, line int) error

	// ReloadFiles asks the editor to reload open views of the given
	// files, e.g. after a checkpoint restore rewrote them on disk.
	ReloadFiles(ctx context.Context, filePaths []string) error

	GoToDefinition(ctx context.Context, loc Location) ([]Location, error)
	FindReferences(ctx context.Context, loc Location) ([]Location, error)
	SearchSymbols(ctx context.Context, query string) ([]SymbolInfo, error)
	GetHover(ctx context.Context, loc Location) (Hover, error)
	GetCodeActions(ctx context.Context, loc Location) ([]CodeAction, error)
	ApplyCodeAction(ctx context.Context, filePath, actionID string) error
	FormatDocument(ctx context.Context, filePath string) error

	// Diagnostics returns the full current issue set across all
	// analyzed files. It is recomputed per call, never diffed.
	Diagnostics(ctx context.Context) ([]protocol.DiagnosticRecord, error)

	// Changes returns a channel that receives a signal whenever the
	// analyzer's diagnostics may have changed. May return nil when the
	// analyzer has no change notification support.
	Changes() <-chan struct{}
}
