package federation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/semaphore"

	"magictunnel/pkg/logging"
	"magictunnel/pkg/mcperrors"
)

const subsystem = "federation.supervisor"

// outstandingRetryAfter is the hint attached to an overloaded transport_error
// when a server's MaxOutstanding cap is full. Backpressure here is about
// concurrent in-flight calls draining, not a reconnect, so it's kept
// independent of BackoffBase.
const outstandingRetryAfter = 200 * time.Millisecond

// connEvent is the mailbox's only message type: a report from a CallTool
// caller (or the connect loop itself) that the transport misbehaved, asking
// the owning goroutine to reconnect. Keeping it a single typed struct
// (rather than an interface with several message kinds) matches the
// one-goroutine-owns-the-transport shape SPEC_FULL.md §4.5 asks for while
// staying to the one thing this supervisor's mailbox actually needs to
// arbitrate: "the connection broke, go fix it."
type connEvent struct {
	cause error
}

// Supervisor owns one upstream MCP server connection end to end: connecting,
// handshaking, serving concurrent CallTool/ListTools requests up to a
// configured cap, detecting failures, and reconnecting with jittered
// exponential backoff. Grounded on the teacher's retry-ticker pattern in
// aggregator/manager.go's retryFailedRegistrations, generalized into a
// per-connection actor instead of one shared sweep.
type Supervisor struct {
	spec      ServerSpec
	newTransport func() Transport

	mu        sync.RWMutex
	state     State
	lastErr   error
	transport Transport
	tools     []mcp.Tool

	mailbox chan connEvent
	cap     *semaphore.Weighted
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSupervisor creates a Supervisor for spec. newTransport builds a fresh
// Transport on every (re)connect attempt, so credentials captured by
// closure (e.g. a session-token lookup) are re-evaluated each time.
func NewSupervisor(spec ServerSpec, newTransport func() Transport) *Supervisor {
	spec = spec.withDefaults()
	return &Supervisor{
		spec:         spec,
		newTransport: newTransport,
		state:        StateDisconnected,
		mailbox:      make(chan connEvent, 8),
		cap:          semaphore.NewWeighted(int64(spec.MaxOutstanding)),
		done:         make(chan struct{}),
	}
}

// Start launches the connect/reconnect loop in its own goroutine, under a
// context derived from ctx. Stop (or cancelling ctx) terminates it.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(ctx)
}

// Stop terminates the supervisor and closes the current transport, if any.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Supervisor) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{ServerName: s.spec.Name, State: s.state, Tools: len(s.tools)}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer s.closeTransport()

	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(StateTerminated, nil)
			return
		}

		s.setState(StateConnecting, nil)
		handshakeCtx, cancel := context.WithTimeout(ctx, s.spec.HandshakeBudget)
		t := s.newTransport()
		s.setState(StateHandshaking, nil)
		err := t.Connect(handshakeCtx)
		cancel()

		if err != nil {
			var handshakeErr *HandshakeError
			if errors.As(err, &handshakeErr) {
				s.setState(StateFailed, err)
				logging.Warn(subsystem, "server %s failed MCP handshake, giving up: %v", s.spec.Name, err)
				return
			}
			s.setState(StateReconnecting, err)
			logging.Warn(subsystem, "server %s failed to connect: %v", s.spec.Name, err)
			attempt++
			if !s.waitBackoff(ctx, attempt) {
				s.setState(StateTerminated, nil)
				return
			}
			continue
		}

		attempt = 0
		tools, err := t.ListTools(ctx)
		if err != nil {
			logging.Warn(subsystem, "server %s connected but ListTools failed: %v", s.spec.Name, err)
		}

		s.mu.Lock()
		s.transport = t
		s.tools = tools
		s.mu.Unlock()
		s.setState(StateReady, nil)
		logging.Info(subsystem, "server %s ready with %d tools", s.spec.Name, len(tools))

		if !s.waitForFailureOrShutdown(ctx) {
			return
		}
		s.closeTransport()
	}
}

// waitForFailureOrShutdown blocks until a CallTool caller reports the
// connection broke (via the mailbox) or the context is cancelled. Returns
// false when the supervisor should terminate.
func (s *Supervisor) waitForFailureOrShutdown(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		s.setState(StateTerminated, nil)
		return false
	case ev := <-s.mailbox:
		s.setState(StateDegraded, ev.cause)
		logging.Warn(subsystem, "server %s connection degraded: %v", s.spec.Name, ev.cause)
		return true
	}
}

func (s *Supervisor) waitBackoff(ctx context.Context, attempt int) bool {
	delay := backoffDelay(s.spec.BackoffBase, s.spec.BackoffMax, attempt)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// backoffDelay computes a jittered exponential backoff: base*2^(attempt-1),
// capped at max, with +/-20% jitter so many sessions reconnecting at once
// don't thunder-herd the same upstream.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > max {
			d = max
			break
		}
	}
	jitterFrac := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * jitterFrac)
}

func (s *Supervisor) closeTransport() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

func (s *Supervisor) snapshot() (Transport, State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport, s.state
}

// CallTool invokes name on the upstream server, bounded by the configured
// outstanding-request cap for backpressure. Transport-level failures report
// back to the connect loop so it reconnects, and surface to the caller as a
// TransportUnavailable error.
func (s *Supervisor) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if !s.cap.TryAcquire(1) {
		return nil, mcperrors.New(mcperrors.Overloaded, fmt.Sprintf(
			"server %s is at its %d outstanding-request limit; retry after %s",
			s.spec.Name, s.spec.MaxOutstanding, outstandingRetryAfter,
		)).WithDetail(map[string]any{"retry_after_ms": outstandingRetryAfter.Milliseconds()})
	}
	defer s.cap.Release(1)

	t, state := s.snapshot()
	if state != StateReady || t == nil {
		return nil, mcperrors.New(mcperrors.UpstreamUnavailable, fmt.Sprintf("server %s is not ready (state=%s)", s.spec.Name, state))
	}

	result, err := t.CallTool(ctx, name, args)
	if err != nil {
		select {
		case s.mailbox <- connEvent{cause: err}:
		default:
		}
		return nil, mcperrors.Wrap(mcperrors.UpstreamUnavailable, err, "calling tool "+name+" on "+s.spec.Name)
	}
	return result, nil
}

// ListTools returns the tool set observed at the last successful handshake.
func (s *Supervisor) ListTools() []mcp.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mcp.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}
