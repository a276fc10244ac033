// Package checkpoint creates and restores full-workspace snapshots on
// top of the git stash stack.
//
// The stash stack is LIFO with positional refs (stash@{N}) that shift
// every time a new entry is pushed. The caller-supplied checkpoint id
// is therefore the only stable identity: every lookup scans the
// ordered stash list for the id embedded in the entry message and
// never trusts a raw positional index.
package checkpoint

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/codefionn/agentbridge/internal/logger"
	"github.com/codefionn/agentbridge/internal/protocol"
)

// tagPrefix marks stash entries owned by this subsystem. The logical
// checkpoint id follows the prefix in the stash message.
const tagPrefix = "agentbridge-checkpoint:"

// fieldSep separates fields in the stash list format string. A unit
// separator cannot appear in refs and is not expected in messages.
const fieldSep = "\x1f"

// Checkpoint is the metadata returned by Create. BackingRef is the
// stash ref at creation time and goes stale as soon as another
// checkpoint is pushed; ContentHash is the stash commit and stays
// valid.
type Checkpoint struct {
	CheckpointID string    `json:"checkpointId"`
	BackingRef   string    `json:"backingRef"`
	ContentHash  string    `json:"contentHash"`
	FileCount    int       `json:"fileCount"`
	Timestamp    time.Time `json:"timestamp"`
}

// Entry is one parsed stash-list entry carrying the checkpoint tag.
type Entry struct {
	StashIndex   int    `json:"stashIndex"`
	CheckpointID string `json:"checkpointId"`
	Ref          string `json:"ref"`
	Message      string `json:"message"`
}

// DiffResult is the textual patch of a stash entry plus its per-file
// breakdown.
type DiffResult struct {
	Diff      string   `json:"diff"`
	Files     []string `json:"files"`
	FileCount int      `json:"fileCount"`
}

// RestoreResult reports a completed restore.
type RestoreResult struct {
	Restored     bool   `json:"restored"`
	CheckpointID string `json:"checkpointId"`
	ResolvedRef  string `json:"resolvedRef"`
}

// Manager is the checkpoint registry. All operations are serialized by
// one mutex: interleaved stash mutations would corrupt the ordering
// that id resolution depends on.
type Manager struct {
	mu  sync.Mutex
	git GitRunner
	log *logger.Logger
}

// NewManager creates a checkpoint manager over the given git runner.
func NewManager(git GitRunner, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Global()
	}
	return &Manager{git: git, log: log.WithPrefix("checkpoint")}
}

// Create stages the entire working tree, pushes a tagged stash entry
// and immediately re-applies it, so the visible file state is
// unchanged by the act of checkpointing.
func (m *Manager) Create(ctx context.Context, checkpointID string) (Checkpoint, error) {
	if checkpointID == "" {
		return Checkpoint{}, protocol.InvalidCommandf("checkpointId is required")
	}
	if strings.ContainsAny(checkpointID, "\n\x1f") {
		return Checkpoint{}, protocol.InvalidCommandf("checkpointId contains invalid characters")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.git.Run(ctx, "add", "-A"); err != nil {
		return Checkpoint{}, protocol.Upstreamf("%v", err)
	}

	out, err := m.git.Run(ctx, "stash", "push", "--include-untracked", "-m", tagPrefix+checkpointID)
	if err != nil {
		return Checkpoint{}, protocol.Upstreamf("%v", err)
	}
	if strings.Contains(out, "No local changes") {
		return Checkpoint{}, protocol.Upstreamf("no changes to checkpoint: working tree is clean")
	}

	hash, err := m.git.Run(ctx, "rev-parse", "stash@{0}")
	if err != nil {
		return Checkpoint{}, protocol.Upstreamf("%v", err)
	}

	patch, err := m.git.Run(ctx, "stash", "show", "-p", "--include-untracked", "stash@{0}")
	if err != nil {
		return Checkpoint{}, protocol.Upstreamf("%v", err)
	}

	// Re-apply so the user's files look exactly as before the push.
	if _, err := m.git.Run(ctx, "stash", "apply", "stash@{0}"); err != nil {
		return Checkpoint{}, protocol.Upstreamf("%v", err)
	}

	cp := Checkpoint{
		CheckpointID: checkpointID,
		BackingRef:   "stash@{0}",
		ContentHash:  strings.TrimSpace(hash),
		FileCount:    countPatchFiles(patch, m.log),
		Timestamp:    time.Now().UTC(),
	}
	m.log.Info("Created checkpoint %s (%s, %d files)", checkpointID, cp.ContentHash, cp.FileCount)
	return cp, nil
}

// Restore discards all uncommitted changes and re-applies exactly the
// file contents recorded in the named checkpoint. The snapshot patch is
// validated as fully readable before the destructive reset starts.
// Committed changes made after checkpoint creation are not rewound;
// the snapshot is applied on top of the current HEAD.
//
// The second return value lists the workspace-relative files recorded
// in the snapshot, so the caller can ask the editor to reload open
// views of them.
func (m *Manager) Restore(ctx context.Context, checkpointID string) (RestoreResult, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.resolve(ctx, checkpointID)
	if err != nil {
		return RestoreResult{}, nil, err
	}

	// Validate the snapshot before touching the working tree; a
	// half-applied restore after a blind reset would lose state.
	patch, err := m.git.Run(ctx, "stash", "show", "-p", "--include-untracked", entry.Ref)
	if err != nil {
		return RestoreResult{}, nil, protocol.Upstreamf("checkpoint %s is not readable: %v", checkpointID, err)
	}

	if _, err := m.git.Run(ctx, "reset", "--hard"); err != nil {
		return RestoreResult{}, nil, protocol.Upstreamf("%v", err)
	}
	if _, err := m.git.Run(ctx, "clean", "-fd"); err != nil {
		return RestoreResult{}, nil, protocol.Upstreamf("%v", err)
	}
	if _, err := m.git.Run(ctx, "stash", "apply", entry.Ref); err != nil {
		return RestoreResult{}, nil, protocol.Upstreamf("%v", err)
	}

	m.log.Info("Restored checkpoint %s from %s", checkpointID, entry.Ref)
	result := RestoreResult{Restored: true, CheckpointID: checkpointID, ResolvedRef: entry.Ref}
	return result, patchFiles(patch, m.log), nil
}

// List returns every stash entry carrying the checkpoint tag, most
// recent first, mirroring the stash stack's LIFO order.
func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listEntries(ctx)
}

// Diff returns the textual patch for a backing ref and its per-file
// breakdown, or an empty result when the ref is gone or unreadable. It
// never fails.
func (m *Manager) Diff(ctx context.Context, backingRef string) DiffResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	patch, err := m.git.Run(ctx, "stash", "show", "-p", "--include-untracked", backingRef)
	if err != nil {
		m.log.Warn("Diff for %s unavailable: %v", backingRef, err)
		return DiffResult{Files: []string{}}
	}
	files := patchFiles(patch, m.log)
	if files == nil {
		files = []string{}
	}
	return DiffResult{Diff: patch, Files: files, FileCount: len(files)}
}

// resolve scans the ordered stash list for the logical id. Positional
// indices from earlier calls are never reused: every new stash push
// shifts them.
func (m *Manager) resolve(ctx context.Context, checkpointID string) (Entry, error) {
	entries, err := m.listEntries(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, entry := range entries {
		if entry.CheckpointID == checkpointID {
			return entry, nil
		}
	}
	return Entry{}, protocol.NotFoundf("checkpoint %q", checkpointID)
}

func (m *Manager) listEntries(ctx context.Context) ([]Entry, error) {
	out, err := m.git.Run(ctx, "stash", "list", "--format=%gd"+fieldSep+"%gs")
	if err != nil {
		return nil, protocol.Upstreamf("%v", err)
	}

	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ref, message, ok := strings.Cut(line, fieldSep)
		if !ok {
			continue
		}
		idx := strings.Index(message, tagPrefix)
		if idx < 0 {
			// Foreign stash entry, not ours to report.
			continue
		}
		entries = append(entries, Entry{
			StashIndex:   parseStashIndex(ref),
			CheckpointID: strings.TrimSpace(message[idx+len(tagPrefix):]),
			Ref:          ref,
			Message:      message,
		})
	}
	return entries, nil
}

// parseStashIndex extracts N from "stash@{N}"; -1 for anything else.
func parseStashIndex(ref string) int {
	open := strings.Index(ref, "{")
	close := strings.Index(ref, "}")
	if open < 0 || close <= open {
		return -1
	}
	n, err := strconv.Atoi(ref[open+1 : close])
	if err != nil {
		return -1
	}
	return n
}

// countPatchFiles counts the files recorded in a stash patch.
func countPatchFiles(patch string, log *logger.Logger) int {
	return len(patchFiles(patch, log))
}

// patchFiles extracts the workspace-relative file names from a stash
// patch.
func patchFiles(patch string, log *logger.Logger) []string {
	if strings.TrimSpace(patch) == "" {
		return nil
	}
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		log.Warn("Failed to parse stash patch: %v", err)
		return nil
	}

	files := make([]string, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		name := fd.NewName
		if name == "" || name == "/dev/null" {
			name = fd.OrigName
		}
		// Strip the a/ and b/ prefixes git puts on patch paths.
		if len(name) > 2 && (strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/")) {
			name = name[2:]
		}
		files = append(files, name)
	}
	return files
}
