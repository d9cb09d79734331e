package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// toDisplayString renders an arbitrary executor result value (e.g. a
// decoded JSON response body) as text content, preferring JSON for
// structured values so clients see a parseable payload rather than Go's
// %v representation.
func toDisplayString(v any) string {
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

// toMCPSchema converts a catalog tool's arbitrary JSON-Schema map into the
// mcp-go wire struct, grounded on the teacher's
// internal/aggregator/tool_factory.go convertToMCPSchema, generalized from
// building a schema out of parameter metadata to reading one already
// authored as JSON Schema in the manifest.
func toMCPSchema(schema map[string]any) mcp.ToolInputSchema {
	out := mcp.ToolInputSchema{Type: "object"}
	if schema == nil {
		return out
	}
	if t, ok := schema["type"].(string); ok && t != "" {
		out.Type = t
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = props
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	} else if required, ok := schema["required"].([]string); ok {
		out.Required = required
	}
	return out
}

// toMCPContent converts one Result.Content element into mcp.Content. Most
// executors return plain strings (stdout, response bodies); the mcpproxy
// executor forwards mcp.Content values straight through from the federated
// server, so those pass through unchanged instead of being double-wrapped.
func toMCPContent(item any) mcp.Content {
	switch v := item.(type) {
	case mcp.Content:
		return v
	case string:
		return mcp.NewTextContent(v)
	case []byte:
		return mcp.NewTextContent(string(v))
	default:
		return mcp.NewTextContent(toDisplayString(v))
	}
}
