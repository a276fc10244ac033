package terminal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentbridge/internal/protocol"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager("/bin/bash", t.TempDir(), false, nil)
	t.Cleanup(m.Shutdown)
	return m
}

func TestCreateCapturesFastCommand(t *testing.T) {
	m := newTestManager(t)

	result, err := m.Create(context.Background(), "t1", "echo hello", true, 500*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, "t1", result.TerminalID)
	assert.False(t, result.IsRunning)
	assert.Contains(t, result.Output, "hello")
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, 0, *result.ExitCode)
}

func TestCreateReturnsRunningForSlowCommand(t *testing.T) {
	m := newTestManager(t)

	start := time.Now()
	result, err := m.Create(context.Background(), "slow", "sleep 5", true, 300*time.Millisecond)
	require.NoError(t, err)

	// The wait is a fixed wall-clock deadline, not command completion.
	assert.True(t, result.IsRunning)
	assert.Nil(t, result.ExitCode)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGetAfterCompletion(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create(context.Background(), "t2", "echo done", false, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		result, err := m.Get("t2")
		return err == nil && !result.IsRunning
	}, 5*time.Second, 20*time.Millisecond)

	result, err := m.Get("t2")
	require.NoError(t, err)
	assert.Contains(t, result.Output, "done")
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, 0, *result.ExitCode)
}

func TestNonZeroExitCode(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create(context.Background(), "fail", "exit 3", false, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		result, _ := m.Get("fail")
		return !result.IsRunning
	}, 5*time.Second, 20*time.Millisecond)

	result, err := m.Get("fail")
	require.NoError(t, err)
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, 3, *result.ExitCode)
}

func TestGetUnknownSession(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Get("missing")
	assert.True(t, errors.Is(err, protocol.ErrNotFound))
}

func TestDuplicateSessionIDRejected(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create(context.Background(), "dup", "sleep 1", false, 0)
	require.NoError(t, err)

	_, err = m.Create(context.Background(), "dup", "echo again", false, 0)
	assert.True(t, errors.Is(err, protocol.ErrInvalidCommand))
}

func TestGeneratedSessionID(t *testing.T) {
	m := newTestManager(t)

	result, err := m.Create(context.Background(), "", "echo hi", true, 500*time.Millisecond)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TerminalID)

	_, err = m.Get(result.TerminalID)
	assert.NoError(t, err)
}

func TestRemoveDiscardsSession(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create(context.Background(), "gone", "sleep 30", false, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())

	assert.True(t, m.Remove("gone"))
	assert.False(t, m.Remove("gone"))
	assert.Equal(t, 0, m.Count())

	_, err = m.Get("gone")
	assert.True(t, errors.Is(err, protocol.ErrNotFound))
}

func TestKillBeforeProcessStartReapsIt(t *testing.T) {
	m := newTestManager(t)

	// A session is registered before its process starts, so a discard
	// can land in between. The late-started process must still be
	// reaped instead of leaking.
	sess := &Session{ID: "racy", CreatedAt: time.Now(), running: true}
	m.mu.Lock()
	m.sessions["racy"] = sess
	m.mu.Unlock()

	sess.kill()
	require.NoError(t, m.startSubprocess(sess, "sleep 30"))

	require.Eventually(t, func() bool {
		return !sess.Snapshot().IsRunning
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStderrIsCaptured(t *testing.T) {
	m := newTestManager(t)

	result, err := m.Create(context.Background(), "err", "echo oops >&2", true, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "oops")
}
