package federation

import (
	"context"
	"fmt"
	"sync"

	"magictunnel/internal/session"
	"magictunnel/pkg/mcperrors"
)

// Registry owns one Supervisor per configured external MCP server and
// implements agent.FederationSessions, letting mcpproxy-kind tools reach
// federated servers through the same executor contract as every other
// agent kind.
type Registry struct {
	mu          sync.RWMutex
	supervisors map[string]*Supervisor
	tokens      *session.Manager // nil when no server uses C10 token resumption
}

// NewRegistry creates an empty Registry. tokens may be nil if no configured
// server requires OAuth token resumption.
func NewRegistry(tokens *session.Manager) *Registry {
	return &Registry{supervisors: make(map[string]*Supervisor), tokens: tokens}
}

// Register builds and starts a Supervisor for spec, replacing any existing
// one under the same name.
func (r *Registry) Register(ctx context.Context, spec ServerSpec) error {
	newTransport, err := r.transportFactory(spec)
	if err != nil {
		return err
	}

	sup := NewSupervisor(spec, newTransport)
	sup.Start(ctx)

	r.mu.Lock()
	if existing, ok := r.supervisors[spec.Name]; ok {
		existing.Stop()
	}
	r.supervisors[spec.Name] = sup
	r.mu.Unlock()
	return nil
}

// Unregister stops and removes the named server's session.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	sup, ok := r.supervisors[name]
	delete(r.supervisors, name)
	r.mu.Unlock()
	if ok {
		sup.Stop()
	}
}

func (r *Registry) transportFactory(spec ServerSpec) (func() Transport, error) {
	switch spec.Kind {
	case TransportStdio:
		return func() Transport { return NewStdioTransport(spec.Command, spec.Args, spec.Env) }, nil
	case TransportSSE:
		return func() Transport { return NewSSETransport(spec.URL, spec.Headers) }, nil
	case TransportStreamableHTTP:
		var tokenSource func(context.Context) string
		if spec.TokenUserID != "" && r.tokens != nil {
			tokenSource = func(ctx context.Context) string {
				tok, err := r.tokens.Get(ctx, spec.TokenUserID, spec.Name)
				if err != nil {
					return ""
				}
				return tok.AccessToken
			}
		}
		return func() Transport { return NewStreamableHTTPTransport(spec.URL, spec.Headers, tokenSource) }, nil
	default:
		return nil, mcperrors.New(mcperrors.Config, "unknown federation transport kind: "+string(spec.Kind))
	}
}

// Statuses returns a diagnostic snapshot of every registered session.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.supervisors))
	for _, sup := range r.supervisors {
		out = append(out, sup.Status())
	}
	return out
}

// ListTools returns the tools the named server exposed at its last
// successful handshake.
func (r *Registry) ListTools(serverName string) ([]string, error) {
	r.mu.RLock()
	sup, ok := r.supervisors[serverName]
	r.mu.RUnlock()
	if !ok {
		return nil, mcperrors.New(mcperrors.NotFound, "federated server not registered: "+serverName)
	}
	tools := sup.ListTools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names, nil
}

// CallTool implements agent.FederationSessions, routing the call to the
// named server's supervisor and flattening the mcp-go result shape into the
// plain (content, isError) pair the mcpproxy executor expects.
func (r *Registry) CallTool(ctx context.Context, serverName, toolName string, args map[string]any) ([]any, bool, error) {
	r.mu.RLock()
	sup, ok := r.supervisors[serverName]
	r.mu.RUnlock()
	if !ok {
		return nil, false, mcperrors.New(mcperrors.NotFound, fmt.Sprintf("federated server %q is not registered", serverName))
	}

	result, err := sup.CallTool(ctx, toolName, args)
	if err != nil {
		return nil, false, err
	}

	content := make([]any, len(result.Content))
	for i, c := range result.Content {
		content[i] = c
	}
	return content, result.IsError, nil
}

// Shutdown stops every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sup := range r.supervisors {
		sup.Stop()
	}
}
