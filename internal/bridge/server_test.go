package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/agentbridge/internal/protocol"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer("127.0.0.1:0", 8, newTestDispatcher(t, nil), nil)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return srv
}

type testConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialTestServer(t *testing.T, srv *Server) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testConn{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testConn) sendLine(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *testConn) readFrame(t *testing.T, v interface{}) {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(line), v))
}

func waitForClients(t *testing.T, srv *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for srv.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count never reached %d (have %d)", want, srv.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerBindFailure(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer blocker.Close()

	srv := NewServer(blocker.Addr().String(), 8, newTestDispatcher(t, nil), nil)
	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}

func TestServerRequestResponseRoundTrip(t *testing.T) {
	srv := startTestServer(t)
	client := dialTestServer(t, srv)

	client.sendLine(t, `{"id":"req-1","type":"listCheckpoints"}`)

	var resp protocol.ResponseEnvelope
	client.readFrame(t, &resp)
	assert.Equal(t, "req-1", resp.ID)
	assert.True(t, resp.Success)
}

func TestServerCommandsAnsweredInOrder(t *testing.T) {
	srv := startTestServer(t)
	client := dialTestServer(t, srv)

	client.sendLine(t, `{"id":"a","type":"listCheckpoints"}`)
	client.sendLine(t, `{"id":"b","type":"collabParticipants"}`)

	var first, second protocol.ResponseEnvelope
	client.readFrame(t, &first)
	client.readFrame(t, &second)
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestServerMalformedFrameKeepsConnectionOpen(t *testing.T) {
	srv := startTestServer(t)
	client := dialTestServer(t, srv)

	client.sendLine(t, `{not json`)

	var resp protocol.ResponseEnvelope
	client.readFrame(t, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid command", resp.Error)

	// The connection survives the bad frame.
	client.sendLine(t, `{"id":"after","type":"listCheckpoints"}`)
	client.readFrame(t, &resp)
	assert.Equal(t, "after", resp.ID)
	assert.True(t, resp.Success)
}

func TestServerBroadcastReachesConnectedClientsOnly(t *testing.T) {
	srv := startTestServer(t)

	first := dialTestServer(t, srv)
	second := dialTestServer(t, srv)
	waitForClients(t, srv, 2)

	srv.Publish(protocol.NewEvent(protocol.EventDiagnosticsUpdated, map[string]interface{}{"count": 3}))

	var ev1, ev2 protocol.BroadcastEvent
	first.readFrame(t, &ev1)
	second.readFrame(t, &ev2)
	assert.Equal(t, protocol.EventDiagnosticsUpdated, ev1.Type)
	assert.Equal(t, protocol.EventDiagnosticsUpdated, ev2.Type)
	assert.Equal(t, ev1.Timestamp, ev2.Timestamp)

	// A client connecting after publication sees no replay.
	late := dialTestServer(t, srv)
	waitForClients(t, srv, 3)
	late.conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, err := late.reader.ReadString('\n')
	require.Error(t, err)
	netErr, ok := err.(net.Error)
	require.True(t, ok)
	assert.True(t, netErr.Timeout())
}

func TestServerConnectionLimit(t *testing.T) {
	srv := NewServer("127.0.0.1:0", 1, newTestDispatcher(t, nil), nil)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)

	first := dialTestServer(t, srv)
	waitForClients(t, srv, 1)

	// The second connection is rejected; reads on it fail promptly.
	reject, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer reject.Close()
	reject.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1)
	_, err = reject.Read(buf)
	require.Error(t, err)

	// The accepted connection still works.
	first.sendLine(t, `{"id":"ok","type":"listCheckpoints"}`)
	var resp protocol.ResponseEnvelope
	first.readFrame(t, &resp)
	assert.True(t, resp.Success)
}

func TestServerStopClosesClients(t *testing.T) {
	srv := startTestServer(t)
	client := dialTestServer(t, srv)
	waitForClients(t, srv, 1)

	srv.Stop()

	client.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err := client.reader.ReadString('\n')
	require.Error(t, err)
}
