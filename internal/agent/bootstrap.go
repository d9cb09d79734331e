package agent

// RegisterBuiltins registers every built-in executor kind with r. llmFactory
// may be nil if the deployment has no LLM-backed tools configured; sessions
// may be nil if no external MCP servers are federated. A nil llmFactory or
// sessions leaves the "llm" or "mcpproxy" kind unregistered, so tools of
// that kind are rejected as an unknown kind. overrides carries per-kind RetryPolicy overrides (Open Question #1);
// a kind absent from overrides keeps DefaultRetryPolicy.
func RegisterBuiltins(r *Registry, llmFactory ProviderFactory, sessions FederationSessions, overrides map[string]RetryPolicy) {
	register := func(kind string, executor Executor) {
		if policy, ok := overrides[kind]; ok {
			r.Register(kind, executor, nil, &policy)
			return
		}
		r.Register(kind, executor, nil, nil)
	}

	register("subprocess", NewSubprocessExecutor())
	register("http", NewHTTPExecutor())
	register("graphql", NewGraphQLExecutor())
	register("grpc", NewGRPCExecutor())
	register("websocket", NewWebSocketExecutor())
	register("sse", NewSSEExecutor())
	register("database", NewDatabaseExecutor())

	if llmFactory != nil {
		register("llm", NewLLMExecutor(llmFactory))
	}
	if sessions != nil {
		register("mcpproxy", NewMCPProxyExecutor(sessions))
	}
}
