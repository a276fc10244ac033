// Package diagnostics collects analyzer-reported issues on a fixed
// interval and on change notifications, and publishes the complete
// snapshot to a shared file and to every connected client.
package diagnostics

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/agentbridge/internal/logger"
	"github.com/codefionn/agentbridge/internal/protocol"
)

// Publisher fans an event out to all currently connected clients.
// Implemented by the bridge hub.
type Publisher interface {
	Publish(ev *protocol.BroadcastEvent)
}

// Source produces the full current diagnostic set. Satisfied by the
// analysis.Analyzer interface.
type Source interface {
	Diagnostics(ctx context.Context) ([]protocol.DiagnosticRecord, error)
}

// Collector runs the collection loop. Each cycle recomputes the whole
// snapshot; nothing is diffed or persisted incrementally. Collection
// failures are logged and swallowed, never surfaced to a client.
type Collector struct {
	src      Source
	pub      Publisher
	filePath string
	interval time.Duration

	// changes delivers analyzer "diagnostics changed" notifications.
	// May be nil.
	changes <-chan struct{}
	// watchPath, when set, is watched through fsnotify as an
	// additional change-notification source.
	watchPath string

	mu   sync.RWMutex
	last protocol.DiagnosticsSnapshot

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *logger.Logger
}

// NewCollector creates a collector writing snapshots to filePath every
// interval and on any change notification.
func NewCollector(src Source, pub Publisher, filePath string, interval time.Duration, changes <-chan struct{}, watchPath string, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.Global()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Collector{
		src:       src,
		pub:       pub,
		filePath:  filePath,
		interval:  interval,
		changes:   changes,
		watchPath: watchPath,
		stop:      make(chan struct{}),
		log:       log.WithPrefix("diagnostics"),
	}
}

// Start launches the collection loop. An immediate first cycle runs
// before the interval timer takes over.
func (c *Collector) Start(ctx context.Context) {
	var watcher *fsnotify.Watcher
	if c.watchPath != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			c.log.Warn("Change watcher unavailable: %v", err)
		} else if err := w.Add(filepath.Dir(c.watchPath)); err != nil {
			c.log.Warn("Cannot watch %s: %v", c.watchPath, err)
			w.Close()
		} else {
			watcher = w
		}
	}

	c.wg.Add(1)
	go c.run(ctx, watcher)
}

func (c *Collector) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer c.wg.Done()
	if watcher != nil {
		defer watcher.Close()
	}

	var watchEvents chan fsnotify.Event
	var watchErrors chan error
	if watcher != nil {
		watchEvents = watcher.Events
		watchErrors = watcher.Errors
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collect(ctx)
		case <-c.changes:
			c.collect(ctx)
		case ev := <-watchEvents:
			if ev.Name == c.watchPath {
				c.collect(ctx)
			}
		case err := <-watchErrors:
			c.log.Warn("Watcher error: %v", err)
		}
	}
}

// collect runs one full cycle: gather, normalize, write the shared
// file, broadcast.
func (c *Collector) collect(ctx context.Context) {
	records, err := c.src.Diagnostics(ctx)
	if err != nil {
		c.log.Warn("Collection failed: %v", err)
		return
	}

	normalized := make([]protocol.DiagnosticRecord, len(records))
	for i, rec := range records {
		rec.Severity = NormalizeSeverity(string(rec.Severity))
		normalized[i] = rec
	}

	snapshot := protocol.DiagnosticsSnapshot{
		Timestamp:   time.Now().UTC(),
		Count:       len(normalized),
		Diagnostics: normalized,
	}

	c.mu.Lock()
	c.last = snapshot
	c.mu.Unlock()

	if err := c.writeFile(snapshot); err != nil {
		c.log.Warn("Failed to write diagnostics file: %v", err)
	}
	if c.pub != nil {
		c.pub.Publish(protocol.NewEvent(protocol.EventDiagnosticsUpdated, snapshot))
	}
	c.log.Debug("Collected %d diagnostics", snapshot.Count)
}

func (c *Collector) writeFile(snapshot protocol.DiagnosticsSnapshot) error {
	if c.filePath == "" {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// Snapshot returns the most recent collected snapshot.
func (c *Collector) Snapshot() protocol.DiagnosticsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Stop halts the loop and removes the shared diagnostics file.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		if c.filePath != "" {
			if err := os.Remove(c.filePath); err != nil && !os.IsNotExist(err) {
				c.log.Warn("Failed to remove diagnostics file: %v", err)
			}
		}
	})
}

// NormalizeSeverity maps analyzer severity spellings (including LSP
// numeric levels) onto the 4-level enum. Unknown values become info.
func NormalizeSeverity(s string) protocol.Severity {
	switch s {
	case "error", "err", "fatal", "1":
		return protocol.SeverityError
	case "warning", "warn", "2":
		return protocol.SeverityWarning
	case "info", "information", "3":
		return protocol.SeverityInfo
	case "hint", "4":
		return protocol.SeverityHint
	default:
		return protocol.SeverityInfo
	}
}
