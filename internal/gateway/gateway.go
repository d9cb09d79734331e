// Package gateway implements the MCP server surface (C7, SPEC_FULL.md
// §4.6): the teacher's internal/aggregator generalized to serve the
// catalog (C1/C2) and agent registry (C3/C4/C5) behind one
// github.com/mark3labs/mcp-go/server.MCPServer, plus the federated
// servers (C6) reachable through mcpproxy-kind tools and the smart
// discovery pipeline (C8/C9) exposed as a single well-known tool.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"magictunnel/internal/agent"
	"magictunnel/internal/catalog"
	"magictunnel/internal/discovery"
	"magictunnel/internal/template"
	"magictunnel/pkg/logging"
	"magictunnel/pkg/mcperrors"
)

const subsystem = "Gateway"

// discoveryToolName is the single well-known tool smart discovery is
// exposed as (SPEC_FULL.md §4.6).
const discoveryToolName = "smart_tool_discovery"

// inflightRetryAfter is the hint attached to an overloaded transport_error
// when the gateway's MaxInflightCalls admission cap is full. It names a
// plausible moment to retry, not a guarantee: the cap is level-triggered on
// in-flight calls completing, not timer-driven.
const inflightRetryAfter = 200 * time.Millisecond

// Config tunes the gateway's behavior beyond what the catalog/agent
// registries already carry.
type Config struct {
	Prefix             string // gateway-wide exposed-name prefix, see NameTracker
	SmartMode          bool   // whether to append smart_tool_discovery to tools/list
	TemplateBestEffort bool
	MaxInflightCalls   int // 0 means unbounded; see §5's concurrency cap on executor dispatch
}

// Gateway owns the mcp-go server instance and wires tools/list, tools/call
// to the catalog + agent registry + discovery pipeline.
type Gateway struct {
	cfg       Config
	catalog   func() *catalog.Catalog
	executors *agent.Registry
	discovery *discovery.Pipeline // nil disables smart discovery
	allowDeny AllowDenyHook
	names     *NameTracker
	engine    *template.Engine

	mu        sync.Mutex
	mcpServer *mcpserver.MCPServer
	exposed   map[string]bool // exposed tool names currently registered with mcpServer

	inflight chan struct{} // nil when MaxInflightCalls is 0 (unbounded)
}

// New creates a Gateway. discoveryPipeline may be nil to disable smart
// discovery entirely; allowDeny may be nil to permit every tool.
func New(cfg Config, catalogSource func() *catalog.Catalog, executors *agent.Registry, discoveryPipeline *discovery.Pipeline, allowDeny AllowDenyHook) *Gateway {
	if allowDeny == nil {
		allowDeny = AllowAllHook
	}
	g := &Gateway{
		cfg:       cfg,
		catalog:   catalogSource,
		executors: executors,
		discovery: discoveryPipeline,
		allowDeny: allowDeny,
		names:     NewNameTracker(cfg.Prefix),
		engine:    template.New(template.WithBestEffort(cfg.TemplateBestEffort)),
		exposed:   make(map[string]bool),
	}
	if cfg.MaxInflightCalls > 0 {
		g.inflight = make(chan struct{}, cfg.MaxInflightCalls)
	}
	return g
}

// Build creates the underlying mcp-go server and performs the initial
// tool registration from the current catalog snapshot.
func (g *Gateway) Build() *mcpserver.MCPServer {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.mcpServer = mcpserver.NewMCPServer(
		"magictunnel",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithPromptCapabilities(true),
	)
	g.registerLocked()
	return g.mcpServer
}

// Refresh re-derives the exposed tool set from the current catalog
// snapshot and diffs it against what's already registered, the way the
// teacher's AggregatorServer.updateCapabilities reacts to registry
// updates: added tools are registered, removed ones are deleted, and
// unchanged ones are left alone so client-visible tool identities stay
// stable across a hot-swap that didn't touch them.
func (g *Gateway) Refresh() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mcpServer == nil {
		return
	}
	g.registerLocked()
}

func (g *Gateway) registerLocked() {
	cat := g.catalog()
	visible := cat.VisibleTools()

	wanted := make(map[string]bool, len(visible))
	var toAdd []mcpserver.ServerTool
	for _, tool := range visible {
		exposed := g.names.Expose(tool.SourcePath, tool.Name)
		wanted[exposed] = true
		if g.exposed[exposed] {
			continue
		}
		toAdd = append(toAdd, mcpserver.ServerTool{
			Tool: mcp.Tool{
				Name:        exposed,
				Description: tool.Description,
				InputSchema: toMCPSchema(tool.InputSchema),
			},
			Handler: g.toolHandler(tool.Name),
		})
	}

	if g.cfg.SmartMode && g.discovery != nil && !wanted[discoveryToolName] {
		wanted[discoveryToolName] = true
		if !g.exposed[discoveryToolName] {
			toAdd = append(toAdd, mcpserver.ServerTool{
				Tool: mcp.Tool{
					Name:        discoveryToolName,
					Description: "Finds and invokes the best-matching tool for a natural-language request when you don't know its exact name.",
					InputSchema: mcp.ToolInputSchema{
						Type:       "object",
						Properties: map[string]any{"request": map[string]any{"type": "string", "description": "what you want to accomplish"}},
						Required:   []string{"request"},
					},
				},
				Handler: g.discoveryHandler(),
			})
		}
	}

	var toRemove []string
	for exposed := range g.exposed {
		if !wanted[exposed] {
			toRemove = append(toRemove, exposed)
		}
	}

	if len(toRemove) > 0 {
		sort.Strings(toRemove)
		g.mcpServer.DeleteTools(toRemove...)
		for _, name := range toRemove {
			delete(g.exposed, name)
		}
	}
	if len(toAdd) > 0 {
		g.mcpServer.AddTools(toAdd...)
		for _, st := range toAdd {
			g.exposed[st.Tool.Name] = true
		}
	}
	logging.Debug(subsystem, "refreshed tool set: %d visible, %d added, %d removed", len(visible), len(toAdd), len(toRemove))
}

func extractArgs(req mcp.CallToolRequest) map[string]any {
	if m, ok := req.Params.Arguments.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// toolHandler returns the mcp-go tool handler for the catalog tool named
// toolName (the catalog's internal name, not the gateway-exposed one).
func (g *Gateway) toolHandler(toolName string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cat := g.catalog()
		tool, ok := cat.Get(toolName)
		if !ok {
			return errorResult(mcperrors.New(mcperrors.NotFound, notFoundHint(cat, toolName))), nil
		}
		if !g.allowDeny(tool.Name) {
			return errorResult(mcperrors.New(mcperrors.Unauthorized, fmt.Sprintf("tool %q is blocked by gateway policy", tool.Name))), nil
		}

		args := extractArgs(req)
		if err := catalog.ValidateArguments(tool, args); err != nil {
			return errorResult(mcperrors.Wrap(mcperrors.Validation, err, "validating arguments for "+tool.Name)), nil
		}

		result, err := g.invoke(ctx, tool, args)
		if err != nil {
			return errorResult(err), nil
		}
		return result, nil
	}
}

func (g *Gateway) invoke(ctx context.Context, tool catalog.Tool, args map[string]any) (*mcp.CallToolResult, error) {
	if g.inflight != nil {
		select {
		case g.inflight <- struct{}{}:
			defer func() { <-g.inflight }()
		default:
			return nil, mcperrors.New(mcperrors.Overloaded, fmt.Sprintf(
				"gateway is at its %d inflight call limit; retry %s after %s",
				g.cfg.MaxInflightCalls, tool.Name, inflightRetryAfter,
			)).WithDetail(map[string]any{"retry_after_ms": inflightRetryAfter.Milliseconds()})
		}
	}

	rendered, err := g.engine.Render(tool.Routing.Config, args)
	if err != nil {
		return nil, mcperrors.Wrap(mcperrors.Validation, err, "rendering routing config for "+tool.Name)
	}
	config, _ := rendered.(map[string]any)

	invocationResult, err := g.executors.Execute(ctx, agent.Invocation{
		Plan:      agent.Plan{Kind: tool.Routing.Kind, Config: config},
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}
	return resultToMCP(invocationResult), nil
}

// discoveryHandler implements the smart_tool_discovery well-known tool:
// Discover a candidate, and if it clears the confidence threshold,
// synthesize arguments and invoke it directly; otherwise return the
// ranked candidate list for the caller to choose from.
func (g *Gateway) discoveryHandler() func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := extractArgs(req)
		request, _ := args["request"].(string)
		if request == "" {
			return errorResult(mcperrors.New(mcperrors.Validation, "smart_tool_discovery requires a non-empty 'request' argument")), nil
		}

		result, err := g.discovery.Discover(ctx, request, nil)
		if err != nil {
			return errorResult(err), nil
		}

		if result.Selected == nil {
			return mcp.NewToolResultText(toDisplayString(map[string]any{"candidates": result.Candidates})), nil
		}

		cat := g.catalog()
		tool, ok := cat.Get(result.Selected.ToolName)
		if !ok {
			return errorResult(mcperrors.New(mcperrors.Internal, "selected tool vanished from catalog between scoring and invocation")), nil
		}
		if !g.allowDeny(tool.Name) {
			return errorResult(mcperrors.New(mcperrors.Unauthorized, fmt.Sprintf("tool %q is blocked by gateway policy", tool.Name))), nil
		}

		synthesized, err := g.discovery.Synthesize(ctx, tool, request)
		if err != nil {
			return errorResult(err), nil
		}

		callResult, err := g.invoke(ctx, tool, synthesized)
		if err != nil {
			return errorResult(err), nil
		}
		return callResult, nil
	}
}

func resultToMCP(r agent.Result) *mcp.CallToolResult {
	content := make([]mcp.Content, len(r.Content))
	for i, c := range r.Content {
		content[i] = toMCPContent(c)
	}
	switch r.Kind {
	case agent.ResultSuccess:
		return &mcp.CallToolResult{Content: content}
	case agent.ResultToolError:
		return &mcp.CallToolResult{Content: content, IsError: true}
	default: // ResultTransportError
		msg := fmt.Sprintf("upstream transport failure (%s): %v", r.TransportKind, r.Detail)
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(msg)}, IsError: true}
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// notFoundHint implements Open Question #3: calling a tool by a bare name
// that a rename-policy merge disambiguated away returns not_found with a
// hint listing what it's actually callable as.
func notFoundHint(cat *catalog.Catalog, toolName string) string {
	var candidates []string
	for _, t := range cat.AllTools() {
		if strings.HasPrefix(t.Name, toolName+"__") {
			candidates = append(candidates, t.Name)
		}
	}
	if len(candidates) == 0 {
		return fmt.Sprintf("tool %q not found", toolName)
	}
	sort.Strings(candidates)
	return fmt.Sprintf("tool %q is ambiguous after name-collision resolution; call one of: %v", toolName, candidates)
}

func sourceSuffixOf(sourcePath string) string {
	base := sourcePath
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' || base[i] == '\\' {
			base = base[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			base = base[:i]
			break
		}
	}
	return base
}
