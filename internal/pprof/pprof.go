// Package pprof exposes the runtime profiling endpoints on a separate
// debug listener. The bridge socket itself stays a pure RPC surface;
// profiling is opt-in via a flag and never enabled by default.
package pprof

import (
	"context"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"sync"
	"time"

	"github.com/codefionn/agentbridge/internal/logger"
)

// Handler serves /debug/pprof on its own HTTP listener.
type Handler struct {
	addr     string
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	stopped bool
	log     *logger.Logger
}

// NewHandler creates a handler listening on addr once started.
func NewHandler(addr string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Global()
	}
	return &Handler{addr: addr, log: log.WithPrefix("pprof")}
}

// Start binds the debug listener and begins serving. Unlike the bridge
// socket, a bind failure here is not fatal to the daemon; the caller
// decides.
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", netpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)
	mux.Handle("/debug/pprof/goroutine", netpprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/heap", netpprof.Handler("heap"))
	mux.Handle("/debug/pprof/block", netpprof.Handler("block"))
	mux.Handle("/debug/pprof/mutex", netpprof.Handler("mutex"))

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to bind pprof listener %s: %w", h.addr, err)
	}
	h.listener = ln
	h.server = &http.Server{Handler: mux}

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.log.Error("pprof server error: %v", err)
		}
	}()

	h.log.Info("pprof listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound listener address.
func (h *Handler) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

// Stop shuts the debug server down.
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || h.server == nil {
		return nil
	}
	h.stopped = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown pprof server: %w", err)
	}
	return nil
}
