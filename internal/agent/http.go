package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxHTTPResponseBytes = 4 << 20 // 4 MiB

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
}

// HTTPConfig is the rendered routing config for the http kind.
type HTTPConfig struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    any
	BodyTyp string // "json", "text", "form"; defaults to "json" when Body is non-nil
}

func httpFromPlan(config map[string]any) (HTTPConfig, error) {
	cfg := HTTPConfig{Method: http.MethodGet, BodyTyp: "json"}

	if m, ok := config["method"].(string); ok && m != "" {
		cfg.Method = strings.ToUpper(m)
	}
	rawURL, _ := config["url"].(string)
	if rawURL == "" {
		return cfg, fmt.Errorf("http routing config missing %q", "url")
	}
	cfg.URL = rawURL

	if h, ok := config["headers"].(map[string]any); ok {
		cfg.Headers = toStringMap(h)
	}
	if q, ok := config["query"].(map[string]any); ok {
		cfg.Query = toStringMap(q)
	}
	if b, ok := config["body_type"].(string); ok && b != "" {
		cfg.BodyTyp = b
	}
	cfg.Body = config["body"]
	return cfg, nil
}

func toStringMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// HTTPExecutor issues HTTP requests against a shared transport pool,
// retrying 5xx/connection failures only for idempotent methods (the
// cross-cutting retry wrapper additionally gates this by RetryPolicy, but
// the executor itself keeps withPolicy from retrying a 5xx answer to a
// non-idempotent call by reporting it as a tool_error).
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor creates an HTTP executor sharing one transport/connection
// pool across every invocation.
func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cfg, err := httpFromPlan(inv.Plan.Config)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	reqURL := cfg.URL
	if len(cfg.Query) > 0 {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return TransportErrorResult(TransportConfig, err.Error()), nil
		}
		q := u.Query()
		for k, v := range cfg.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	var bodyReader io.Reader
	contentType := ""
	if cfg.Body != nil {
		switch cfg.BodyTyp {
		case "text":
			s, _ := cfg.Body.(string)
			bodyReader = strings.NewReader(s)
			contentType = "text/plain; charset=utf-8"
		case "form":
			if m, ok := cfg.Body.(map[string]any); ok {
				values := url.Values{}
				for k, v := range m {
					values.Set(k, fmt.Sprintf("%v", v))
				}
				bodyReader = strings.NewReader(values.Encode())
			}
			contentType = "application/x-www-form-urlencoded"
		default:
			encoded, err := json.Marshal(cfg.Body)
			if err != nil {
				return TransportErrorResult(TransportConfig, err.Error()), nil
			}
			bodyReader = bytes.NewReader(encoded)
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, reqURL, bodyReader)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return transportResultFromContext(ctx), nil
		}
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxHTTPResponseBytes)
	data, err := io.ReadAll(limited)
	if err != nil {
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}

	content := parseByContentType(resp.Header.Get("Content-Type"), data)

	if resp.StatusCode >= 500 {
		if idempotentMethods[cfg.Method] {
			return TransportErrorResult(TransportUnavailable, fmt.Sprintf("upstream returned %d", resp.StatusCode)), nil
		}
		return ToolErrorResult(content), nil
	}
	if resp.StatusCode >= 400 {
		return ToolErrorResult(content), nil
	}
	return SuccessResult(content), nil
}

func transportResultFromContext(ctx context.Context) Result {
	if ctx.Err() == context.DeadlineExceeded {
		return TransportErrorResult(TransportDeadline, "request deadline exceeded")
	}
	return TransportErrorResult(TransportCancelled, "request cancelled")
}

func parseByContentType(contentType string, data []byte) any {
	if strings.Contains(contentType, "json") {
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	}
	return string(data)
}
