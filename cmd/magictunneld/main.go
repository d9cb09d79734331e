// Command magictunneld runs the gateway as a standalone MCP server: it
// loads a config file, assembles the catalog/agent/discovery/federation
// components it wires together, and serves tools/list and tools/call over
// stdio or streamable-http until told to stop.
//
// This is deliberately thin. SPEC_FULL.md's Non-goals exclude the web
// dashboard, auth middleware, and the rest of a full CLI surface — this
// binary only implements process bootstrap and the exit codes in §6.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"magictunnel/internal/agent"
	"magictunnel/internal/catalog"
	"magictunnel/internal/discovery"
	"magictunnel/internal/embedding"
	"magictunnel/internal/federation"
	"magictunnel/internal/gateway"
	"magictunnel/internal/gatewayconfig"
	"magictunnel/pkg/logging"
)

const subsystem = "Bootstrap"

// Process exit codes (SPEC_FULL.md §6, implemented literally here).
const (
	exitSuccess       = 0
	exitConfigInvalid = 2
	exitStartupError  = 3
	exitRuntimeError  = 4
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "magictunneld",
		Short: "Run the MagicTunnel MCP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			run(cmd.Context(), configPath)
			return nil
		},
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "path to the gateway config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntimeError)
	}
}

// fail logs err at the given subsystem, then terminates the process with
// code. It never returns.
func fail(code int, format string, args ...any) {
	logging.Error(subsystem, fmt.Errorf(format, args...), "fatal during startup")
	os.Exit(code)
}

func run(ctx context.Context, configPath string) {
	logging.Init(logging.LevelInfo, os.Stdout)

	cfg, err := gatewayconfig.Load(configPath)
	if err != nil {
		fail(exitConfigInvalid, "loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		fail(exitConfigInvalid, "validating config: %w", err)
	}

	executors := agent.NewRegistry()

	llmFactory, err := cfg.BuildLLMProviders()
	if err != nil {
		fail(exitConfigInvalid, "building llm providers: %w", err)
	}

	sessions, err := cfg.BuildSessionManager(nil)
	if err != nil {
		fail(exitStartupError, "building session manager: %w", err)
	}

	federationRegistry := federation.NewRegistry(sessions)
	specs, err := cfg.BuildFederationSpecs()
	if err != nil {
		fail(exitConfigInvalid, "building federation specs: %w", err)
	}
	for _, spec := range specs {
		if err := federationRegistry.Register(ctx, spec); err != nil {
			// A federated server unreachable at boot is not fatal: its
			// Supervisor keeps retrying in the background (C6).
			logging.Error(subsystem, err, "registering external MCP server %s", spec.Name)
		}
	}

	agent.RegisterBuiltins(executors, llmFactory, federationRegistry, cfg.RetryOverrides())

	index, provider, err := cfg.BuildEmbedding(ctx)
	if err != nil {
		fail(exitStartupError, "building embedding backend: %w", err)
	}
	if pg, ok := index.(*embedding.PostgresIndex); ok {
		if err := pg.EnsureSchema(ctx); err != nil {
			fail(exitStartupError, "preparing embedding schema: %w", err)
		}
	}
	indexer := embedding.NewIndexer(index, provider)

	registry := catalog.NewRegistry()
	stores := make([]*catalog.Store, len(cfg.Manifests.Roots))
	for i, root := range cfg.Manifests.Roots {
		stores[i] = catalog.NewStore(root, cfg.Manifests.DebounceWindow)
	}

	disabled := cfg.DisabledKinds()
	knownKind := catalog.KnownKind(func(kind string) bool {
		return executors.KnownKind(kind) && !disabled[kind]
	})

	var gw *gateway.Gateway
	reload := func() error {
		var sources []catalog.Source
		for _, s := range stores {
			loaded, err := s.Load()
			if err != nil {
				return err
			}
			sources = append(sources, dropInvalidTools(loaded, knownKind)...)
		}
		cat, err := catalog.Merge(sources, cfg.ConflictPolicy())
		if err != nil {
			return err
		}
		registry.Publish(cat)
		if err := indexer.Reload(ctx, cat); err != nil {
			logging.Error(subsystem, err, "reloading embedding index")
		}
		if gw != nil {
			gw.Refresh()
		}
		return nil
	}

	if err := reload(); err != nil {
		fail(exitStartupError, "loading manifests: %w", err)
	}
	for _, s := range stores {
		s := s
		if err := s.Watch(func() {
			if err := reload(); err != nil {
				logging.Error(subsystem, err, "reloading manifests after change")
			}
		}); err != nil {
			logging.Error(subsystem, err, "watching manifest root")
		}
	}
	defer func() {
		for _, s := range stores {
			s.Stop()
		}
	}()

	var pipeline *discovery.Pipeline
	if cfg.Gateway.SmartMode {
		defaultLLM, err := llmFactory("")
		if err != nil {
			logging.Error(subsystem, err, "no default llm provider configured, smart discovery synthesis disabled")
			defaultLLM = nil
		}
		pipeline = discovery.New(registry.Snapshot, index, provider, defaultLLM, nil, cfg.DiscoveryPipelineConfig())
	}

	gw = gateway.New(gateway.Config{
		Prefix:           cfg.Gateway.Prefix,
		SmartMode:        cfg.Gateway.SmartMode,
		MaxInflightCalls: cfg.Gateway.Concurrency.MaxInflightCalls,
	}, registry.Snapshot, executors, pipeline, gateway.DenylistHook(cfg.DenylistSet()))

	server := gw.Build()
	gw.Refresh()

	if err := serve(ctx, server, cfg); err != nil {
		fail(exitStartupError, "serving: %w", err)
	}

	logging.Info(subsystem, "shutdown complete")
	os.Exit(exitSuccess)
}

// dropInvalidTools filters out tools that fail ValidateTool, logging each
// rejection, so one bad tool definition doesn't block the rest of its
// manifest file's contribution (the same last-known-good philosophy the
// Store already applies at the file level).
func dropInvalidTools(sources []catalog.Source, knownKind catalog.KnownKind) []catalog.Source {
	filtered := make([]catalog.Source, len(sources))
	for i, src := range sources {
		var kept []catalog.Tool
		for _, t := range src.Tools {
			if err := catalog.ValidateTool(t, knownKind); err != nil {
				logging.Error(subsystem, err, "rejecting invalid tool %s from %s", t.Name, src.ID)
				continue
			}
			kept = append(kept, t)
		}
		filtered[i] = catalog.Source{ID: src.ID, Tools: kept}
	}
	return filtered
}

// serve runs the gateway's MCP server over the configured transport until
// ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, server *mcpserver.MCPServer, cfg gatewayconfig.Config) error {
	switch cfg.Listen.Transport {
	case "stdio":
		errCh := make(chan error, 1)
		go func() { errCh <- mcpserver.ServeStdio(server) }()
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		}

	case "streamable-http":
		handler := mcpserver.NewStreamableHTTPServer(server)
		listener, err := net.Listen("tcp", cfg.Listen.Address)
		if err != nil {
			return fmt.Errorf("binding %s: %w", cfg.Listen.Address, err)
		}
		httpServer := &http.Server{Handler: handler}

		errCh := make(chan error, 1)
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}

	default:
		return fmt.Errorf("unsupported listen transport %q", cfg.Listen.Transport)
	}
}
