// Package mcp provides an MCP (Model Context Protocol) server for fieldspace.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/fieldspace/internal/config"
	"github.com/nvandessel/fieldspace/internal/constants"
	"github.com/nvandessel/fieldspace/internal/logging"
	"github.com/nvandessel/fieldspace/internal/ratelimit"
	"github.com/nvandessel/fieldspace/internal/simulation"
	"github.com/nvandessel/fieldspace/internal/store"
)

// Server wraps the MCP SDK server and provides fieldspace tools.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	runner       *simulation.Runner
	settings     *config.FieldspaceConfig
	root         string
	stateDir     string
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	tracer       *logging.StepTracer
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "fieldspace")
	Version string // Server version
	Root    string // Project root directory

	// Scope selects the run store: project-local or global. Defaults to local.
	Scope constants.Scope

	// Settings are the loop parameters. Defaults to config.Default().
	Settings *config.FieldspaceConfig

	// Logger receives operational output. Defaults to a discarding logger.
	Logger *slog.Logger

	// Store overrides the SQLite store opened from Root and Scope.
	// The server takes ownership and closes it.
	Store store.RunStore
}

// NewServer creates a new MCP server with fieldspace tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	scope := cfg.Scope
	if scope == "" {
		scope = constants.ScopeLocal
	}
	stateDir, err := store.StatePath(cfg.Root, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}

	runStore := cfg.Store
	if runStore == nil {
		sqliteStore, err := store.OpenRunStore(cfg.Root, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		runStore = sqliteStore
	}

	tracer := logging.NewStepTracer(stateDir, settings.Logging.Level)
	runner, err := simulation.NewRunner(settings.Engine(), simulation.Options{
		Store:  runStore,
		Logger: logger,
		Tracer: tracer,
		Tail:   settings.History.Tail,
	})
	if err != nil {
		tracer.Close()
		runStore.Close()
		return nil, err
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		store:        runStore,
		runner:       runner,
		settings:     settings,
		root:         cfg.Root,
		stateDir:     stateDir,
		toolLimiters: ratelimit.NewToolLimiters(ratelimit.DefaultLimits),
		auditLogger:  NewAuditLogger(stateDir),
		tracer:       tracer,
		logger:       logger,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			s.logger.Info("signal received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server started", "root", s.root, "state_dir", s.stateDir)
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the store, the audit log, and the step trace.
func (s *Server) Close() error {
	s.tracer.Close()
	auditErr := s.auditLogger.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return auditErr
}
