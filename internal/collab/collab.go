// Package collab abstracts the optional real-time collaboration
// provider behind a capability interface. The provider is selected
// once at startup; call sites never check whether one is installed.
package collab

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codefionn/agentbridge/internal/protocol"
)

// Participant is one member of an active collaboration session.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Event is a presence or cursor event emitted by the provider. Types
// reuse the broadcast event enumeration (user-joined, user-left,
// cursor-update, session-changed, session-ended).
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Provider is the collaboration capability. Implementations must keep
// the same surface whether or not a real provider backs them.
type Provider interface {
	// Start begins a session and returns its share link.
	Start(ctx context.Context) (string, error)
	// End terminates the active session.
	End(ctx context.Context) error
	// ListParticipants returns the current participants.
	ListParticipants(ctx context.Context) ([]Participant, error)
	// OnEvent registers a callback for provider events.
	OnEvent(cb func(Event))
}

// Local is the fallback Provider used when no real collaboration
// provider is available: same API, empty participant list, and a
// locally generated session identifier as the share link.
type Local struct {
	mu       sync.Mutex
	link     string
	active   bool
	handlers []func(Event)
}

// NewLocal returns the no-op local provider.
func NewLocal() *Local { return &Local{} }

// Start implements Provider. The share link is a locally generated id;
// nothing is published anywhere.
func (l *Local) Start(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		return l.link, nil
	}
	l.link = "local://" + uuid.NewString()
	l.active = true
	l.emit(Event{Type: protocol.EventSessionChanged, Payload: map[string]interface{}{"shareLink": l.link}})
	return l.link, nil
}

// End implements Provider.
func (l *Local) End(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return nil
	}
	l.active = false
	l.emit(Event{Type: protocol.EventSessionEnded})
	return nil
}

// ListParticipants implements Provider; the local session has none.
func (l *Local) ListParticipants(ctx context.Context) ([]Participant, error) {
	return []Participant{}, nil
}

// OnEvent implements Provider.
func (l *Local) OnEvent(cb func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, cb)
}

// emit must be called with the mutex held.
func (l *Local) emit(ev Event) {
	for _, cb := range l.handlers {
		cb(ev)
	}
}

// Active reports whether a session is running.
func (l *Local) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}
