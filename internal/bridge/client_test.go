package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentbridge/internal/protocol"
)

func TestResponseSendBlocksUntilDrained(t *testing.T) {
	c := newPipeClient(t, "busy", NewHub(nil))
	fillSendBuffer(c)

	delivered := make(chan struct{})
	go func() {
		c.Send(&protocol.ResponseEnvelope{ID: "r1", Success: true})
		close(delivered)
	}()

	// While the buffer is full the response waits; it is never dropped.
	select {
	case <-delivered:
		t.Fatal("response queued into a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	for i := 0; i < cap(c.send); i++ {
		<-c.send
	}

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("response never queued after the buffer drained")
	}

	resp, ok := (<-c.send).(*protocol.ResponseEnvelope)
	require.True(t, ok)
	assert.Equal(t, "r1", resp.ID)
}

func TestEventSendDropsWhenFull(t *testing.T) {
	c := newPipeClient(t, "busy", NewHub(nil))
	fillSendBuffer(c)

	done := make(chan struct{})
	go func() {
		c.Send(protocol.NewEvent(protocol.EventDiagnosticsUpdated, nil))
		close(done)
	}()

	// Events are fire-and-forget: the call returns without queueing.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event send blocked on a full buffer")
	}
	assert.Len(t, c.send, cap(c.send))
}

func TestResponseSendAbortsOnStoppedClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	c := newPipeClient(t, "gone", hub)
	fillSendBuffer(c)

	delivered := make(chan struct{})
	go func() {
		c.Send(&protocol.ResponseEnvelope{ID: "r1", Success: true})
		close(delivered)
	}()

	c.Stop()

	// A response in flight for a stopped client is discarded, not held.
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("response send never returned after client stop")
	}
}
