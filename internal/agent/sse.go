package agent

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SSEConfig is the rendered routing config for the sse kind.
type SSEConfig struct {
	URL           string
	Headers       map[string]string
	MaxEvents     int
	TerminateOn   string // event "data:" value that ends collection early
	CollectWindow time.Duration
}

func sseFromPlan(config map[string]any) (SSEConfig, error) {
	cfg := SSEConfig{MaxEvents: 1}

	rawURL, _ := config["url"].(string)
	if rawURL == "" {
		return cfg, fmt.Errorf("sse routing config missing %q", "url")
	}
	cfg.URL = rawURL

	if h, ok := config["headers"].(map[string]any); ok {
		cfg.Headers = toStringMap(h)
	}
	if n, ok := config["max_events"].(int); ok && n > 0 {
		cfg.MaxEvents = n
	}
	if marker, ok := config["terminate_on"].(string); ok {
		cfg.TerminateOn = marker
	}
	if window, ok := config["collect_window_ms"].(int); ok && window > 0 {
		cfg.CollectWindow = time.Duration(window) * time.Millisecond
	}
	return cfg, nil
}

// sseEvent is one parsed "event:"/"data:" frame.
type sseEvent struct {
	Event string `json:"event,omitempty"`
	Data  string `json:"data"`
}

// SSEExecutor subscribes to a Server-Sent Events stream and returns the
// first N events, or all events until a terminating marker. Implemented
// directly over net/http and bufio.Scanner: no example repo in the
// retrieved pack carries a dedicated SSE client library, and the SSE wire
// format (line-oriented "field: value" frames separated by blank lines)
// is simple enough that a hand-rolled scanner is the idiomatic choice
// rather than reaching for an unneeded dependency.
type SSEExecutor struct {
	client *http.Client
}

// NewSSEExecutor creates an SSE executor.
func NewSSEExecutor() *SSEExecutor {
	return &SSEExecutor{client: &http.Client{}}
}

func (e *SSEExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cfg, err := sseFromPlan(inv.Plan.Config)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	readCtx := ctx
	var cancel context.CancelFunc
	if cfg.CollectWindow > 0 {
		readCtx, cancel = context.WithTimeout(ctx, cfg.CollectWindow)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(readCtx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}
	req.Header.Set("Accept", "text/event-stream")
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

	if resp.StatusCode >= 400 {
		return ToolErrorResult(fmt.Sprintf("sse endpoint returned %d", resp.StatusCode)), nil
	}

	events, err := scanEvents(resp, cfg)
	if err != nil && !(readCtx.Err() != nil && ctx.Err() == nil) {
		// A scan error is only a transport failure if it wasn't just the
		// collection window elapsing (readCtx done, parent ctx still live).
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}

	out := make([]any, len(events))
	for i, ev := range events {
		out[i] = ev
	}
	return SuccessResult(out...), nil
}

func scanEvents(resp *http.Response, cfg SSEConfig) ([]sseEvent, error) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var events []sseEvent
	var current sseEvent

	flush := func() {
		if current.Data != "" || current.Event != "" {
			events = append(events, current)
			current = sseEvent{}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			current.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if current.Data != "" {
				current.Data += "\n" + data
			} else {
				current.Data = data
			}
		default:
			// comments and unsupported fields (id:, retry:) are ignored
		}

		if len(events) >= cfg.MaxEvents {
			return events, nil
		}
		if cfg.TerminateOn != "" && current.Data == cfg.TerminateOn {
			flush()
			return events, nil
		}
	}
	flush()
	return events, scanner.Err()
}
