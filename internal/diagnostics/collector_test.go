package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentbridge/internal/protocol"
)

type fakeSource struct {
	mu      sync.Mutex
	records []protocol.DiagnosticRecord
	err     error
}

func (f *fakeSource) set(records []protocol.DiagnosticRecord, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
	f.err = err
}

func (f *fakeSource) Diagnostics(ctx context.Context) ([]protocol.DiagnosticRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*protocol.BroadcastEvent
}

func (f *fakePublisher) Publish(ev *protocol.BroadcastEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, protocol.SeverityError, NormalizeSeverity("error"))
	assert.Equal(t, protocol.SeverityError, NormalizeSeverity("1"))
	assert.Equal(t, protocol.SeverityWarning, NormalizeSeverity("warn"))
	assert.Equal(t, protocol.SeverityInfo, NormalizeSeverity("information"))
	assert.Equal(t, protocol.SeverityHint, NormalizeSeverity("4"))
	assert.Equal(t, protocol.SeverityInfo, NormalizeSeverity("whatever"))
}

func TestCollectWritesFileAndPublishes(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "diagnostics.json")
	src := &fakeSource{records: []protocol.DiagnosticRecord{
		{File: "main.go", Line: 3, Column: 1, Severity: "warn", Message: "unused variable"},
	}}
	pub := &fakePublisher{}

	c := NewCollector(src, pub, filePath, time.Hour, nil, "", nil)
	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool { return pub.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)

	var snapshot protocol.DiagnosticsSnapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Equal(t, 1, snapshot.Count)
	require.Len(t, snapshot.Diagnostics, 1)
	assert.Equal(t, "main.go", snapshot.Diagnostics[0].File)
	assert.Equal(t, 3, snapshot.Diagnostics[0].Line)
	assert.Equal(t, protocol.SeverityWarning, snapshot.Diagnostics[0].Severity)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, protocol.EventDiagnosticsUpdated, pub.events[0].Type)
}

func TestChangeNotificationTriggersCollection(t *testing.T) {
	changes := make(chan struct{}, 1)
	src := &fakeSource{}
	pub := &fakePublisher{}

	c := NewCollector(src, pub, "", time.Hour, changes, "", nil)
	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	changes <- struct{}{}
	require.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchedPathTriggersCollection(t *testing.T) {
	dir := t.TempDir()
	watchPath := filepath.Join(dir, "analyzer-export.json")
	require.NoError(t, os.WriteFile(watchPath, []byte("{}"), 0644))

	src := &fakeSource{}
	pub := &fakePublisher{}

	c := NewCollector(src, pub, "", time.Hour, nil, watchPath, nil)
	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(watchPath, []byte(`{"changed":true}`), 0644))
	require.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestCollectionFailureIsSwallowed(t *testing.T) {
	changes := make(chan struct{}, 1)
	src := &fakeSource{err: errors.New("analyzer crashed")}
	pub := &fakePublisher{}

	c := NewCollector(src, pub, "", time.Hour, changes, "", nil)
	c.Start(context.Background())
	defer c.Stop()

	// Failed cycles publish nothing.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, pub.count())

	// The loop stays alive and recovers on the next cycle.
	src.set(nil, nil)
	changes <- struct{}{}
	require.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopRemovesSharedFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "diagnostics.json")
	pub := &fakePublisher{}

	c := NewCollector(&fakeSource{}, pub, filePath, time.Hour, nil, "", nil)
	c.Start(context.Background())

	require.Eventually(t, func() bool {
		_, err := os.Stat(filePath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	c.Stop()
	_, err := os.Stat(filePath)
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotReflectsLastCycle(t *testing.T) {
	src := &fakeSource{records: []protocol.DiagnosticRecord{
		{File: "a.go", Line: 1, Column: 1, Severity: "error", Message: "syntax error"},
	}}
	pub := &fakePublisher{}

	c := NewCollector(src, pub, "", time.Hour, nil, "", nil)
	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool { return c.Snapshot().Count == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "a.go", c.Snapshot().Diagnostics[0].File)
}
