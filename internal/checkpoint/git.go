package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitRunner executes git commands against the workspace repository.
// It is the seam between the checkpoint manager and the real git CLI,
// allowing the stash-stack logic to be tested against a mock.
type GitRunner interface {
	// Run executes one git command and returns its stdout. A non-zero
	// exit surfaces as an error carrying the command's stderr text.
	Run(ctx context.Context, args ...string) (string, error)
}

// CLI runs git through os/exec in a fixed working directory.
type CLI struct {
	workDir string
}

// NewCLI creates a git runner for the given workspace root.
func NewCLI(workDir string) *CLI {
	return &CLI{workDir: workDir}
}

// Run implements GitRunner.
func (c *CLI) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}

// MockGitRunner is a function-field mock of GitRunner for tests.
type MockGitRunner struct {
	// RunFunc is the mock implementation for Run.
	RunFunc func(ctx context.Context, args ...string) (string, error)
}

// Run calls the mock RunFunc if set, otherwise returns empty output.
func (m *MockGitRunner) Run(ctx context.Context, args ...string) (string, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, args...)
	}
	return "", nil
}
