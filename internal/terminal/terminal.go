// Package terminal tracks shell executions and their captured output.
//
// Two execution strategies exist. The default structured subprocess
// runs the command through the shell with real stdout/stderr capture
// and a real exit code. The interactive pty strategy keeps the command
// in a terminal a user could watch, but has no reliable exit-code
// signal; its sessions report no exit code and rely on the same
// wall-clock wait approximation. Tests assume the structured strategy.
package terminal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/codefionn/agentbridge/internal/logger"
	"github.com/codefionn/agentbridge/internal/protocol"
)

// Session is one tracked shell execution. The output buffer is
// append-only and mutated only by the process goroutines owned by the
// Manager; sessions are never reaped automatically.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	output   strings.Builder
	running  bool
	exitCode *int
	killed   bool

	cmd  *exec.Cmd
	ptmx *os.File
}

// Write appends process output to the session buffer. It implements
// io.Writer so it can be attached directly to the subprocess streams.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output.Write(p)
	return len(p), nil
}

func (s *Session) finish(exitCode *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.exitCode = exitCode
}

// Snapshot returns the session state at this instant.
func (s *Session) Snapshot() protocol.TerminalCaptureResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var code *int
	if s.exitCode != nil {
		c := *s.exitCode
		code = &c
	}
	return protocol.TerminalCaptureResult{
		TerminalID: s.ID,
		Output:     s.output.String(),
		IsRunning:  s.running,
		ExitCode:   code,
	}
}

// Manager owns the terminal session registry. Sessions are independent
// of one another; the registry map is the only shared state.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	shell       string
	workDir     string
	interactive bool
	log         *logger.Logger
}

// NewManager creates a terminal session manager executing commands in
// workDir through the given shell. With interactive set, commands run
// inside a pty instead of a structured subprocess.
func NewManager(shell, workDir string, interactive bool, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Global()
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		shell:       shell,
		workDir:     workDir,
		interactive: interactive,
		log:         log.WithPrefix("terminal"),
	}
}

// Create starts a command in a new session. If waitForOutput is set the
// call suspends for exactly timeout wall-clock time and returns the
// snapshot at that instant; this is deliberately not tied to command
// completion, so a still-running command comes back with
// isRunning=true and no exit code. Without waitForOutput the snapshot
// is taken immediately.
func (m *Manager) Create(ctx context.Context, sessionID, command string, waitForOutput bool, timeout time.Duration) (protocol.TerminalCaptureResult, error) {
	if command == "" {
		return protocol.TerminalCaptureResult{}, protocol.InvalidCommandf("command is required")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sess := &Session{
		ID:        sessionID,
		CreatedAt: time.Now(),
		running:   true,
	}

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return protocol.TerminalCaptureResult{}, protocol.InvalidCommandf("terminal session %q already exists", sessionID)
	}
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	var startErr error
	if m.interactive {
		startErr = m.startInteractive(sess, command)
	} else {
		startErr = m.startSubprocess(sess, command)
	}
	if startErr != nil {
		m.Remove(sessionID)
		return protocol.TerminalCaptureResult{}, protocol.Upstreamf("failed to start command: %v", startErr)
	}

	m.log.Info("Session %s started: %s", sessionID, command)

	if waitForOutput {
		select {
		case <-time.After(timeout):
		case <-ctx.Done():
		}
	}
	return sess.Snapshot(), nil
}

// startSubprocess runs the command as a structured subprocess with
// merged stdout/stderr capture and exit-code detection.
func (m *Manager) startSubprocess(sess *Session, command string) error {
	cmd := exec.Command(m.shell, "-c", command)
	cmd.Dir = m.workDir
	cmd.Stdout = sess
	cmd.Stderr = sess

	if err := cmd.Start(); err != nil {
		return err
	}

	// The session is registered before the process starts, so a
	// concurrent Remove may already have killed it. Publish the handle
	// under the mutex and reap the process ourselves in that case.
	sess.mu.Lock()
	sess.cmd = cmd
	killed := sess.killed
	sess.mu.Unlock()
	if killed {
		sess.kill()
	}

	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		sess.finish(&code)
		m.log.Debug("Session %s exited with code %d", sess.ID, code)
	}()
	return nil
}

// startInteractive runs the command inside a pty. The shell stays
// alive after the command finishes, so the session reports no exit
// code and remains running until the pty closes.
func (m *Manager) startInteractive(sess *Session, command string) error {
	cmd := exec.Command(m.shell, "-i")
	cmd.Dir = m.workDir

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	sess.cmd = cmd
	sess.ptmx = ptmx
	killed := sess.killed
	sess.mu.Unlock()
	if killed {
		sess.kill()
	}

	if _, err := fmt.Fprintf(ptmx, "%s\n", command); err != nil {
		ptmx.Close()
		return err
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				sess.Write(buf[:n])
			}
			if err != nil {
				sess.finish(nil)
				m.log.Debug("Session %s pty closed", sess.ID)
				return
			}
		}
	}()
	return nil
}

// Get returns the current state of a session, or a NotFound error.
func (m *Manager) Get(sessionID string) (protocol.TerminalCaptureResult, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return protocol.TerminalCaptureResult{}, protocol.NotFoundf("terminal session %q", sessionID)
	}
	return sess.Snapshot(), nil
}

// Remove discards a session by id, killing its process if still
// running. Returns false for unknown ids.
func (m *Manager) Remove(sessionID string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if ok {
		sess.kill()
	}
	return ok
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown kills every still-running session process.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.kill()
	}
}

func (s *Session) kill() {
	s.mu.Lock()
	s.killed = true
	running := s.running
	cmd := s.cmd
	ptmx := s.ptmx
	s.mu.Unlock()

	if ptmx != nil {
		ptmx.Close()
	}
	if running && cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}
