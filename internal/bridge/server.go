package bridge

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/codefionn/agentbridge/internal/logger"
	"github.com/codefionn/agentbridge/internal/protocol"
)

// Server accepts client connections on a fixed TCP port, feeds their
// command envelopes through the dispatcher and fans broadcast events
// out through the hub. Failure to bind the listener is fatal for the
// whole bridge: every other component depends on it being reachable.
type Server struct {
	addr       string
	maxConns   int
	hub        *Hub
	dispatcher *Dispatcher
	listener   net.Listener

	connMu    sync.RWMutex
	clients   map[string]*Client
	connCount int

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once

	connIDCounter int
	connIDMu      sync.Mutex

	log *logger.Logger
}

// NewServer creates a server listening on addr once started.
func NewServer(addr string, maxConns int, dispatcher *Dispatcher, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Global()
	}
	if maxConns <= 0 {
		maxConns = 16
	}
	return &Server{
		addr:       addr,
		maxConns:   maxConns,
		hub:        NewHub(log),
		dispatcher: dispatcher,
		clients:    make(map[string]*Client),
		stopChan:   make(chan struct{}),
		log:        log.WithPrefix("server"),
	}
}

// Hub returns the broadcast hub, for wiring event producers.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and launches the accept loop. A bind
// failure is returned to the caller and must abort initialization.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind bridge socket %s: %w", s.addr, err)
	}
	s.listener = listener

	go s.hub.Run()
	go s.acceptLoop(ctx)

	s.log.Info("Bridge listening on %s (max connections: %d)", listener.Addr(), s.maxConns)
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Publish fans an event out to all connected clients.
func (s *Server) Publish(event *protocol.BroadcastEvent) {
	s.hub.Publish(event)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		// Accept with a deadline so the stop channel is observed.
		if tcp, ok := s.listener.(*net.TCPListener); ok {
			tcp.SetDeadline(time.Now().Add(1 * time.Second))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopChan:
				return
			default:
			}
			s.log.Error("Accept error: %v", err)
			continue
		}

		if !s.underConnectionLimit() {
			s.log.Warn("Connection limit reached, rejecting %s", conn.RemoteAddr())
			conn.Close()
			continue
		}

		clientID := s.nextConnectionID()
		client := NewClient(clientID, conn, s.hub, s.dispatcher, s.untrackClient, s.log)
		s.trackClient(clientID, client)
		client.Start(ctx)

		s.log.Info("Connection accepted: %s from %s", clientID, conn.RemoteAddr())
	}
}

// Stop shuts the server down and closes all client connections.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info("Stopping bridge server")
		close(s.stopChan)

		if s.listener != nil {
			s.listener.Close()
		}
		s.hub.Shutdown()

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	})
}

func (s *Server) underConnectionLimit() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connCount < s.maxConns
}

func (s *Server) trackClient(clientID string, client *Client) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.clients[clientID] = client
	s.connCount++
}

func (s *Server) untrackClient(client *Client) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if _, ok := s.clients[client.ID]; ok {
		delete(s.clients, client.ID)
		s.connCount--
	}
}

func (s *Server) nextConnectionID() string {
	s.connIDMu.Lock()
	defer s.connIDMu.Unlock()
	s.connIDCounter++
	return fmt.Sprintf("conn_%d", s.connIDCounter)
}
