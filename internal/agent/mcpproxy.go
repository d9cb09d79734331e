package agent

import (
	"context"
	"fmt"

	"magictunnel/pkg/mcperrors"
)

// FederationSessions is the subset of internal/federation.Registry the
// mcpproxy executor depends on. Declared here (rather than importing
// internal/federation) so the agent package stays independent of the
// federation package's session-supervisor machinery; federation satisfies
// this interface, the gateway wires the two together.
type FederationSessions interface {
	// CallTool forwards a tools/call to the named external MCP server and
	// returns its content blocks and is_error flag. A non-nil error means
	// the session could not be reached at all (transport_error); a
	// reported is_error=true with a nil error is a tool_error.
	CallTool(ctx context.Context, serverName, toolName string, args map[string]any) (content []any, isError bool, err error)
}

// MCPProxyConfig is the rendered routing config for the mcpproxy kind.
type MCPProxyConfig struct {
	ServerName string
	ToolName   string
}

func mcpProxyFromPlan(config map[string]any) (MCPProxyConfig, error) {
	cfg := MCPProxyConfig{}

	server, _ := config["server_name"].(string)
	if server == "" {
		return cfg, fmt.Errorf("mcpproxy routing config missing %q", "server_name")
	}
	cfg.ServerName = server

	tool, _ := config["tool_name"].(string)
	if tool == "" {
		return cfg, fmt.Errorf("mcpproxy routing config missing %q", "tool_name")
	}
	cfg.ToolName = tool
	return cfg, nil
}

// MCPProxyExecutor forwards a tools/call to an external MCP session
// identified by server name, translating ids and propagating
// progress/cancel via the invocation's context.
type MCPProxyExecutor struct {
	sessions FederationSessions
}

// NewMCPProxyExecutor creates an mcpproxy executor against sessions.
func NewMCPProxyExecutor(sessions FederationSessions) *MCPProxyExecutor {
	return &MCPProxyExecutor{sessions: sessions}
}

func (e *MCPProxyExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cfg, err := mcpProxyFromPlan(inv.Plan.Config)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	content, isError, err := e.sessions.CallTool(ctx, cfg.ServerName, cfg.ToolName, inv.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return transportResultFromContext(ctx), nil
		}
		if mcperrors.KindOf(err) == mcperrors.Overloaded {
			return TransportErrorResult(TransportOverloaded, err.Error()), nil
		}
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}

	if isError {
		return Result{Kind: ResultToolError, Content: content}, nil
	}
	return Result{Kind: ResultSuccess, Content: content}, nil
}
