package collab

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentbridge/internal/protocol"
)

func TestLocalProviderLifecycle(t *testing.T) {
	p := NewLocal()
	ctx := context.Background()

	var events []Event
	p.OnEvent(func(ev Event) { events = append(events, ev) })

	link, err := p.Start(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "local://"))
	assert.True(t, p.Active())

	// Starting twice keeps the same session and link.
	again, err := p.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, link, again)

	participants, err := p.ListParticipants(ctx)
	require.NoError(t, err)
	assert.Empty(t, participants)

	require.NoError(t, p.End(ctx))
	assert.False(t, p.Active())

	require.Len(t, events, 2)
	assert.Equal(t, protocol.EventSessionChanged, events[0].Type)
	assert.Equal(t, protocol.EventSessionEnded, events[1].Type)
}

func TestEndWithoutStart(t *testing.T) {
	p := NewLocal()
	assert.NoError(t, p.End(context.Background()))
}
