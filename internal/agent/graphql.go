package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/machinebox/graphql"
)

// GraphQLConfig is the rendered routing config for the graphql kind.
type GraphQLConfig struct {
	Endpoint      string
	Query         string
	Variables     map[string]any
	OperationName string
	Headers       map[string]string
}

func graphqlFromPlan(config map[string]any) (GraphQLConfig, error) {
	cfg := GraphQLConfig{}

	endpoint, _ := config["endpoint"].(string)
	if endpoint == "" {
		return cfg, fmt.Errorf("graphql routing config missing %q", "endpoint")
	}
	cfg.Endpoint = endpoint

	query, _ := config["query"].(string)
	if query == "" {
		return cfg, fmt.Errorf("graphql routing config missing %q", "query")
	}
	cfg.Query = query

	if v, ok := config["variables"].(map[string]any); ok {
		cfg.Variables = v
	}
	if op, ok := config["operation_name"].(string); ok {
		cfg.OperationName = op
	}
	if h, ok := config["headers"].(map[string]any); ok {
		cfg.Headers = toStringMap(h)
	}
	return cfg, nil
}

// GraphQLExecutor wraps github.com/machinebox/graphql, carrying
// {query, variables, operationName} and promoting a top-level errors[]
// array to tool_error rather than a transport failure.
type GraphQLExecutor struct{}

// NewGraphQLExecutor creates a GraphQL executor. machinebox/graphql clients
// are endpoint-specific and cheap to construct, so one is built per call
// rather than pooled.
func NewGraphQLExecutor() *GraphQLExecutor {
	return &GraphQLExecutor{}
}

func (e *GraphQLExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cfg, err := graphqlFromPlan(inv.Plan.Config)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	client := graphql.NewClient(cfg.Endpoint)
	req := graphql.NewRequest(cfg.Query)
	for k, v := range cfg.Variables {
		req.Var(k, v)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.OperationName != "" {
		req.Header.Set("X-Operation-Name", cfg.OperationName)
	}

	var response map[string]any
	if err := client.Run(ctx, req, &response); err != nil {
		if ctx.Err() != nil {
			return transportResultFromContext(ctx), nil
		}
		// machinebox/graphql surfaces a GraphQL errors[] payload as a Go
		// error whose message embeds the server's error text; there's no
		// structured accessor, so a response carrying "graphql: " is
		// treated as a tool-level failure rather than a transport one.
		if strings.Contains(err.Error(), "graphql:") {
			return ToolErrorResult(err.Error()), nil
		}
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}

	return SuccessResult(response), nil
}
