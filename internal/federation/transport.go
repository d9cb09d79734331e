// Package federation implements the external MCP client subsystem (C6,
// SPEC_FULL.md §4.5): one session-supervisor goroutine per configured
// upstream MCP server, each owning a transport connection (request ids are
// tracked by the mcp-go client), driven through an explicit connection state machine with
// jittered exponential backoff. The Registry ties these sessions together
// behind the agent.FederationSessions contract so mcpproxy-kind tools can
// reach them.
package federation

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"magictunnel/pkg/logging"
)

// clientInfoName identifies this gateway to upstream MCP servers during the
// initialize handshake.
const clientInfoName = "magictunnel"

// supportedProtocolVersions lists the MCP protocol versions this gateway
// can speak, most preferred first. It's also the offer sent in every
// initialize request; a server is free to negotiate down to any version it
// also supports, but the result must still be one of these.
var supportedProtocolVersions = []string{"2024-11-05"}

func supportsProtocolVersion(v string) bool {
	for _, sv := range supportedProtocolVersions {
		if sv == v {
			return true
		}
	}
	return false
}

// HandshakeError reports that the MCP initialize exchange itself failed or
// was rejected, as opposed to the underlying transport never connecting at
// all. The supervisor treats this as terminal (StateFailed) rather than
// something worth indefinitely reconnecting over.
type HandshakeError struct {
	Cause error
}

func (e *HandshakeError) Error() string { return fmt.Sprintf("mcp handshake failed: %v", e.Cause) }
func (e *HandshakeError) Unwrap() error { return e.Cause }

// VersionMismatchError reports that a server negotiated an MCP protocol
// version this gateway doesn't support.
type VersionMismatchError struct {
	Negotiated string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("server negotiated unsupported protocol version %q", e.Negotiated)
}

// Transport is the minimal surface a session needs from an upstream MCP
// connection. Every wire protocol (stdio, SSE, streamable-http) implements
// it identically, letting the supervisor stay transport-agnostic.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// baseTransport shares the handshake + delegation logic identical across
// wire protocols, the way mcpserver.baseMCPClient does for the teacher's
// aggregator.
type baseTransport struct {
	subsystem string
	client    client.MCPClient
}

func (b *baseTransport) initialize(ctx context.Context) error {
	result, err := b.client.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: supportedProtocolVersions[0],
			ClientInfo:      mcp.Implementation{Name: clientInfoName, Version: "1.0.0"},
			Capabilities:    mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		b.client.Close()
		return &HandshakeError{Cause: err}
	}
	if !supportsProtocolVersion(result.ProtocolVersion) {
		b.client.Close()
		return &HandshakeError{Cause: &VersionMismatchError{Negotiated: result.ProtocolVersion}}
	}
	logging.Debug(b.subsystem, "connected to upstream server %s %s, protocol %s", result.ServerInfo.Name, result.ServerInfo.Version, result.ProtocolVersion)
	return nil
}

func (b *baseTransport) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func (b *baseTransport) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	return result.Tools, nil
}

func (b *baseTransport) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	result, err := b.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("calling tool %s: %w", name, err)
	}
	return result, nil
}

// StdioTransport launches command as a subprocess and speaks MCP over its
// stdin/stdout, grounded on the teacher's StdioClient.
type StdioTransport struct {
	baseTransport
	command string
	args    []string
	env     map[string]string
}

func NewStdioTransport(command string, args []string, env map[string]string) *StdioTransport {
	return &StdioTransport{baseTransport: baseTransport{subsystem: "federation.stdio"}, command: command, args: args, env: env}
}

func (t *StdioTransport) Connect(ctx context.Context) error {
	envStrings := make([]string, 0, len(t.env))
	for k, v := range t.env {
		envStrings = append(envStrings, k+"="+v)
	}
	c, err := client.NewStdioMCPClient(t.command, envStrings, t.args...)
	if err != nil {
		return fmt.Errorf("starting stdio MCP server %s: %w", t.command, err)
	}
	t.client = c
	return t.initialize(ctx)
}

// SSETransport speaks MCP over an HTTP Server-Sent-Events stream, grounded
// on the teacher's SSEClient.
type SSETransport struct {
	baseTransport
	url     string
	headers map[string]string
}

func NewSSETransport(url string, headers map[string]string) *SSETransport {
	return &SSETransport{baseTransport: baseTransport{subsystem: "federation.sse"}, url: url, headers: headers}
}

func (t *SSETransport) Connect(ctx context.Context) error {
	var opts []transport.ClientOption
	if len(t.headers) > 0 {
		opts = append(opts, transport.WithHeaders(t.headers))
	}
	c, err := client.NewSSEMCPClient(t.url, opts...)
	if err != nil {
		return fmt.Errorf("creating SSE client for %s: %w", t.url, err)
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return fmt.Errorf("starting SSE stream for %s: %w", t.url, err)
	}
	t.client = c
	return t.initialize(ctx)
}

// StreamableHTTPTransport speaks MCP over HTTP with streaming responses,
// grounded on the teacher's StreamableHTTPClient. An optional TokenSource
// injects a bearer token on every request so a session can resume a
// previously stored OAuth token (C10) without a fresh authorization flow.
type StreamableHTTPTransport struct {
	baseTransport
	url         string
	headers     map[string]string
	tokenSource func(ctx context.Context) string
}

func NewStreamableHTTPTransport(url string, headers map[string]string, tokenSource func(ctx context.Context) string) *StreamableHTTPTransport {
	return &StreamableHTTPTransport{baseTransport: baseTransport{subsystem: "federation.http"}, url: url, headers: headers, tokenSource: tokenSource}
}

func (t *StreamableHTTPTransport) Connect(ctx context.Context) error {
	var opts []transport.StreamableHTTPCOption
	if t.tokenSource != nil {
		opts = append(opts, transport.WithHTTPHeaderFunc(func(ctx context.Context) map[string]string {
			token := t.tokenSource(ctx)
			if token == "" {
				return nil
			}
			return map[string]string{"Authorization": "Bearer " + token}
		}))
	} else if len(t.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(t.headers))
	}

	c, err := client.NewStreamableHttpClient(t.url, opts...)
	if err != nil {
		return fmt.Errorf("creating streamable HTTP client for %s: %w", t.url, err)
	}
	t.client = c
	return t.initialize(ctx)
}
