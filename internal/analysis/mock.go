package analysis

import (
	"context"

	"github.com/codefionn/agentbridge/internal/protocol"
)

// MockAnalyzer is a function-field mock of Analyzer for tests.
type MockAnalyzer struct {
	OpenFileFunc        func(ctx context.Context, filePath string, line int) error
	ReloadFilesFunc     func(ctx context.Context, filePaths []string) error
	GoToDefinitionFunc  func(ctx context.Context, loc Location) ([]Location, error)
	FindReferencesFunc  func(ctx context.Context, loc Location) ([]Location, error)
	SearchSymbolsFunc   func(ctx context.Context, query string) ([]SymbolInfo, error)
	GetHoverFunc        func(ctx context.Context, loc Location) (Hover, error)
	GetCodeActionsFunc  func(ctx context.Context, loc Location) ([]CodeAction, error)
	ApplyCodeActionFunc func(ctx context.Context, filePath, actionID string) error
	FormatDocumentFunc  func(ctx context.Context, filePath string) error
	DiagnosticsFunc     func(ctx context.Context) ([]protocol.DiagnosticRecord, error)
	ChangesFunc         func() <-chan struct{}
}

func (m *MockAnalyzer) OpenFile(ctx context.Context, filePath string, line int) error {
	if m.OpenFileFunc != nil {
		return m.OpenFileFunc(ctx, filePath, line)
	}
	return nil
}

func (m *MockAnalyzer) ReloadFiles(ctx context.Context, filePaths []string) error {
	if m.ReloadFilesFunc != nil {
		return m.ReloadFilesFunc(ctx, filePaths)
	}
	return nil
}

func (m *MockAnalyzer) GoToDefinition(ctx context.Context, loc Location) ([]Location, error) {
	if m.GoToDefinitionFunc != nil {
		return m.GoToDefinitionFunc(ctx, loc)
	}
	return nil, nil
}

func (m *MockAnalyzer) FindReferences(ctx context.Context, loc Location) ([]Location, error) {
	if m.FindReferencesFunc != nil {
		return m.FindReferencesFunc(ctx, loc)
	}
	return nil, nil
}

func (m *MockAnalyzer) SearchSymbols(ctx context.Context, query string) ([]SymbolInfo, error) {
	if m.SearchSymbolsFunc != nil {
		return m.SearchSymbolsFunc(ctx, query)
	}
	return nil, nil
}

func (m *MockAnalyzer) GetHover(ctx context.Context, loc Location) (Hover, error) {
	if m.GetHoverFunc != nil {
		return m.GetHoverFunc(ctx, loc)
	}
	return Hover{}, nil
}

func (m *MockAnalyzer) GetCodeActions(ctx context.Context, loc Location) ([]CodeAction, error) {
	if m.GetCodeActionsFunc != nil {
		return m.GetCodeActionsFunc(ctx, loc)
	}
	return nil, nil
}

func (m *MockAnalyzer) ApplyCodeAction(ctx context.Context, filePath, actionID string) error {
	if m.ApplyCodeActionFunc != nil {
		return m.ApplyCodeActionFunc(ctx, filePath, actionID)
	}
	return nil
}

func (m *MockAnalyzer) FormatDocument(ctx context.Context, filePath string) error {
	if m.FormatDocumentFunc != nil {
		return m.FormatDocumentFunc(ctx, filePath)
	}
	return nil
}

func (m *MockAnalyzer) Diagnostics(ctx context.Context) ([]protocol.DiagnosticRecord, error) {
	if m.DiagnosticsFunc != nil {
		return m.DiagnosticsFunc(ctx)
	}
	return nil, nil
}

func (m *MockAnalyzer) Changes() <-chan struct{} {
	if m.ChangesFunc != nil {
		return m.ChangesFunc()
	}
	return nil
}
