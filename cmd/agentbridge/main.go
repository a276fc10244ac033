package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/codefionn/agentbridge/internal/analysis"
	"github.com/codefionn/agentbridge/internal/bridge"
	"github.com/codefionn/agentbridge/internal/checkpoint"
	"github.com/codefionn/agentbridge/internal/collab"
	"github.com/codefionn/agentbridge/internal/config"
	"github.com/codefionn/agentbridge/internal/diagnostics"
	"github.com/codefionn/agentbridge/internal/logger"
	"github.com/codefionn/agentbridge/internal/pidfile"
	"github.com/codefionn/agentbridge/internal/pprof"
	"github.com/codefionn/agentbridge/internal/protocol"
	"github.com/codefionn/agentbridge/internal/terminal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	configPath := flag.String("config", "", "path to the bridge config file (JSON)")
	workspace := flag.String("workspace", "", "workspace root (overrides config)")
	port := flag.Int("port", 0, "listen port (overrides config)")
	logLevelFlag := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	pprofAddr := flag.String("pprof", "", "serve /debug/pprof on this address (disabled when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *workspace != "" {
		cfg.WorkspaceRoot = *workspace
	}
	if *port != 0 {
		cfg.Socket.Port = *port
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = *logLevelFlag
	}

	// Environment variables override config file values for logging.
	if envLevel := strings.TrimSpace(os.Getenv("AGENTBRIDGE_LOG_LEVEL")); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("AGENTBRIDGE_LOG_PATH")); envPath != "" {
		cfg.LogPath = envPath
	}

	var loggerInitialized bool
	defer func() {
		if !loggerInitialized {
			return
		}
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	loggerInitialized = true

	logger.Info("agentbridge starting")
	logger.Debug("Configuration: workspace=%s, addr=%s, terminal_mode=%s",
		cfg.WorkspaceRoot, cfg.Socket.Addr(), cfg.Terminal.Mode)

	if info, statErr := os.Stat(cfg.WorkspaceRoot); statErr != nil || !info.IsDir() {
		return fmt.Errorf("workspace root %s is not a directory", cfg.WorkspaceRoot)
	}

	// One bridge per workspace: the fixed port and the shared
	// diagnostics file cannot be shared between instances.
	pf := pidfile.New(filepath.Join(os.TempDir(), fmt.Sprintf("agentbridge-%d.pid", cfg.Socket.Port)))
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() {
		if releaseErr := pf.Release(); releaseErr != nil {
			logger.Warn("Failed to release pidfile: %v", releaseErr)
		}
	}()

	if *pprofAddr != "" {
		prof := pprof.NewHandler(*pprofAddr, logger.Global())
		if err := prof.Start(); err != nil {
			logger.Warn("pprof unavailable: %v", err)
		} else {
			defer prof.Stop()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	terminals := terminal.NewManager(
		cfg.Terminal.Shell,
		cfg.WorkspaceRoot,
		cfg.Terminal.Mode == config.TerminalModePTY,
		logger.Global(),
	)
	checkpoints := checkpoint.NewManager(checkpoint.NewCLI(cfg.WorkspaceRoot), logger.Global())

	// No language-analysis engine ships with the bridge daemon itself;
	// the fallback analyzer keeps editor operations as no-ops and
	// analysis queries as explicit upstream errors.
	analyzer := analysis.NewUnavailable()
	provider := collab.NewLocal()

	dispatcher := bridge.NewDispatcher(terminals, checkpoints, analyzer, provider, nil, logger.Global())
	server := bridge.NewServer(cfg.Socket.Addr(), cfg.Socket.MaxConnections, dispatcher, logger.Global())

	collector := diagnostics.NewCollector(
		analyzer,
		server.Hub(),
		cfg.Diagnostics.FilePath,
		time.Duration(cfg.Diagnostics.IntervalSeconds)*time.Second,
		analyzer.Changes(),
		cfg.Diagnostics.WatchPath,
		logger.Global(),
	)
	dispatcher.SetDiagnostics(collector)

	// Collaboration presence events go out over the same broadcast
	// channel as diagnostics updates.
	provider.OnEvent(func(ev collab.Event) {
		server.Publish(protocol.NewEvent(ev.Type, ev.Payload))
	})

	// A bind failure is fatal: nothing can reach the bridge without the
	// socket.
	if err := server.Start(ctx); err != nil {
		return err
	}
	collector.Start(ctx)

	logger.Info("agentbridge ready on %s", server.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received %s, shutting down", sig)

	cancel()
	collector.Stop()
	terminals.Shutdown()
	server.Stop()

	logger.Info("agentbridge stopped")
	return nil
}
