package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/codefionn/agentbridge/internal/logger"
	"github.com/codefionn/agentbridge/internal/protocol"
)

// Client represents one connected socket client. Frames are
// newline-delimited JSON objects in both directions: command
// envelopes in, response envelopes and broadcast events out.
type Client struct {
	ID string

	conn       net.Conn
	hub        *Hub
	dispatcher *Dispatcher

	// send carries *protocol.ResponseEnvelope and
	// *protocol.BroadcastEvent values to the write pump.
	send chan interface{}

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
	stopChan chan struct{}
	onStop   func(*Client)

	log *logger.Logger
}

// NewClient creates a client for an accepted connection.
func NewClient(id string, conn net.Conn, hub *Hub, dispatcher *Dispatcher, onStop func(*Client), log *logger.Logger) *Client {
	if log == nil {
		log = logger.Global()
	}
	return &Client{
		ID:         id,
		conn:       conn,
		hub:        hub,
		dispatcher: dispatcher,
		send:       make(chan interface{}, 256),
		stopChan:   make(chan struct{}),
		onStop:     onStop,
		log:        log.WithPrefix("client"),
	}
}

// Start registers the client for broadcast and begins the read/write
// pumps.
func (c *Client) Start(ctx context.Context) {
	c.hub.RegisterClient(c)
	go c.readPump(ctx)
	go c.writePump()
}

// Stop deregisters the client and closes the connection. A response
// still in flight for a disconnected client is simply discarded.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.hub.UnregisterClient(c)
		if c.onStop != nil {
			c.onStop(c)
		}
		c.conn.Close()
		c.log.Info("Client %s stopped", c.ID)
	})
}

// Close is an alias for Stop.
func (c *Client) Close() { c.Stop() }

// readPump reads command frames until the connection drops. No read
// deadline is applied: the bridge imposes no timeout of its own.
func (c *Client) readPump(ctx context.Context) {
	defer c.Stop()

	reader := bufio.NewReader(c.conn)
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.log.Info("Client %s disconnected", c.ID)
			} else if !errors.Is(err, net.ErrClosed) {
				c.log.Error("Read error for client %s: %v", c.ID, err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var env protocol.CommandEnvelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			// Malformed frame: answer without closing the connection.
			c.log.Warn("Malformed frame from client %s: %v", c.ID, err)
			c.Send(&protocol.ResponseEnvelope{Success: false, Error: "invalid command"})
			continue
		}

		// Exactly one response per envelope. Handlers run inline, so
		// commands on one connection are processed in arrival order;
		// other connections proceed independently.
		c.Send(c.dispatcher.Dispatch(ctx, &env))
	}
}

// writePump serializes outbound frames.
func (c *Client) writePump() {
	defer c.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				c.log.Error("Failed to marshal frame for client %s: %v", c.ID, err)
				continue
			}
			if _, err := fmt.Fprintf(c.conn, "%s\n", data); err != nil {
				c.log.Error("Write error for client %s: %v", c.ID, err)
				return
			}
		}
	}
}

// Send queues a frame for the client. Exactly one response is produced
// per command envelope, so a response blocks until the write pump
// drains the buffer or the client stops; the read pump is the sole
// response producer, so ordering is preserved. Broadcast events are
// fire-and-forget and dropped when the buffer is full.
func (c *Client) Send(msg interface{}) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if _, ok := msg.(*protocol.ResponseEnvelope); ok {
		select {
		case c.send <- msg:
		case <-c.stopChan:
		}
		return
	}

	select {
	case c.send <- msg:
	default:
		c.log.Warn("Send buffer full for client %s, event dropped", c.ID)
	}
}
