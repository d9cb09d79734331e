package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"magictunnel/pkg/logging"
)

const websocketSubsystem = "WebSocketAgent"

// WebSocketConfig is the rendered routing config for the websocket kind.
type WebSocketConfig struct {
	URL         string
	Headers     map[string]string
	Message     any
	CollectFor  time.Duration
	MaxMessages int
}

func websocketFromPlan(config map[string]any) (WebSocketConfig, error) {
	cfg := WebSocketConfig{MaxMessages: 1}

	rawURL, _ := config["url"].(string)
	if rawURL == "" {
		return cfg, fmt.Errorf("websocket routing config missing %q", "url")
	}
	cfg.URL = rawURL

	if h, ok := config["headers"].(map[string]any); ok {
		cfg.Headers = toStringMap(h)
	}
	cfg.Message = config["message"]

	if window, ok := config["collect_for_ms"].(int); ok && window > 0 {
		cfg.CollectFor = time.Duration(window) * time.Millisecond
	}
	if maxMsgs, ok := config["max_messages"].(int); ok && maxMsgs > 0 {
		cfg.MaxMessages = maxMsgs
	}
	return cfg, nil
}

type pooledConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WebSocketExecutor opens or reuses a connection keyed by URL+headers,
// sends a rendered message, and returns either the next inbound frame or
// frames collected within a window.
type WebSocketExecutor struct {
	mu    sync.Mutex
	pool  map[string]*pooledConn
}

// NewWebSocketExecutor creates a WebSocket executor with an idle
// connection pool keyed by URL+headers.
func NewWebSocketExecutor() *WebSocketExecutor {
	return &WebSocketExecutor{pool: make(map[string]*pooledConn)}
}

func poolKey(cfg WebSocketConfig) string {
	key := cfg.URL
	for k, v := range cfg.Headers {
		key += "|" + k + "=" + v
	}
	return key
}

func (e *WebSocketExecutor) connFor(ctx context.Context, cfg WebSocketConfig) (*pooledConn, error) {
	key := poolKey(cfg)

	e.mu.Lock()
	existing, ok := e.pool[key]
	e.mu.Unlock()
	if ok {
		return existing, nil
	}

	header := http.Header{}
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	conn, _, err := websocket.Dial(ctx, cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}

	pc := &pooledConn{conn: conn}
	e.mu.Lock()
	e.pool[key] = pc
	e.mu.Unlock()
	return pc, nil
}

func (e *WebSocketExecutor) evict(cfg WebSocketConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pool, poolKey(cfg))
}

func (e *WebSocketExecutor) Execute(ctx context.Context, inv Invocation) (Result, error) {
	cfg, err := websocketFromPlan(inv.Plan.Config)
	if err != nil {
		return TransportErrorResult(TransportConfig, err.Error()), nil
	}

	pc, err := e.connFor(ctx, cfg)
	if err != nil {
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if err := wsjson.Write(ctx, pc.conn, cfg.Message); err != nil {
		e.evict(cfg)
		return TransportErrorResult(TransportUnavailable, err.Error()), nil
	}

	readCtx := ctx
	var cancel context.CancelFunc
	if cfg.CollectFor > 0 {
		readCtx, cancel = context.WithTimeout(ctx, cfg.CollectFor)
		defer cancel()
	}

	var messages []any
	for len(messages) < cfg.MaxMessages {
		var msg any
		err := wsjson.Read(readCtx, pc.conn, &msg)
		if err != nil {
			if readCtx.Err() != nil {
				break // collection window elapsed; return what we have
			}
			e.evict(cfg)
			return TransportErrorResult(TransportUnavailable, err.Error()), nil
		}
		messages = append(messages, msg)
		if cfg.CollectFor == 0 {
			break // single-frame mode
		}
	}

	logging.Debug(websocketSubsystem, "collected %d message(s) from %s", len(messages), cfg.URL)
	return SuccessResult(messages...), nil
}

// Close closes every pooled connection.
func (e *WebSocketExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, pc := range e.pool {
		pc.conn.Close(websocket.StatusNormalClosure, "shutting down")
		delete(e.pool, key)
	}
	return nil
}
