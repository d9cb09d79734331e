package federation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magictunnel/pkg/mcperrors"
)

type fakeTransport struct {
	connectErr   error
	connectCalls atomic.Int32
	callErr      error
	closed       atomic.Bool
	tools        []mcp.Tool

	// block, when non-nil, is read from before CallTool returns, letting
	// tests hold a call in flight to exercise the outstanding-request cap.
	block <-chan struct{}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connectCalls.Add(1)
	return f.connectErr
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeTransport) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return f.tools, nil
}

func (f *fakeTransport) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if f.block != nil {
		<-f.block
	}
	if f.callErr != nil {
		return nil, f.callErr
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent("ok")}}, nil
}

func waitForState(t *testing.T, sup *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sup.Status().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("supervisor never reached state %s, last status: %+v", want, sup.Status())
}

func TestSupervisorReachesReadyOnSuccessfulConnect(t *testing.T) {
	ft := &fakeTransport{tools: []mcp.Tool{{Name: "echo"}}}
	spec := ServerSpec{Name: "svc", Kind: TransportStdio, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}
	sup := NewSupervisor(spec, func() Transport { return ft })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	waitForState(t, sup, StateReady)
	assert.Len(t, sup.ListTools(), 1)
}

func TestSupervisorEntersFailedStateOnHandshakeFailure(t *testing.T) {
	ft := &fakeTransport{connectErr: &HandshakeError{Cause: &VersionMismatchError{Negotiated: "1999-01-01"}}}
	spec := ServerSpec{Name: "svc", Kind: TransportStdio, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}
	sup := NewSupervisor(spec, func() Transport { return ft })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	waitForState(t, sup, StateFailed)
	// A handshake failure is terminal: the supervisor must not keep
	// reconnecting after landing in StateFailed.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), ft.connectCalls.Load())
	assert.Contains(t, sup.Status().LastError, "unsupported protocol version")
}

func TestSupervisorRetriesAfterConnectFailure(t *testing.T) {
	ft := &fakeTransport{connectErr: errors.New("boom")}
	spec := ServerSpec{Name: "svc", Kind: TransportStdio, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}
	sup := NewSupervisor(spec, func() Transport { return ft })

	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for ft.connectCalls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, int(ft.connectCalls.Load()), 3)
	cancel()
	sup.Stop()
}

func TestSupervisorCallToolFailsFastWhenNotReady(t *testing.T) {
	ft := &fakeTransport{connectErr: errors.New("boom")}
	spec := ServerSpec{Name: "svc", Kind: TransportStdio, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}
	sup := NewSupervisor(spec, func() Transport { return ft })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	_, err := sup.CallTool(context.Background(), "echo", nil)
	require.Error(t, err)
}

func TestSupervisorReconnectsAfterCallToolFailure(t *testing.T) {
	ft := &fakeTransport{tools: []mcp.Tool{{Name: "echo"}}}
	spec := ServerSpec{Name: "svc", Kind: TransportStdio, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}
	sup := NewSupervisor(spec, func() Transport { return ft })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	waitForState(t, sup, StateReady)
	callsBefore := ft.connectCalls.Load()

	ft.callErr = errors.New("transport died")
	_, err := sup.CallTool(context.Background(), "echo", nil)
	require.Error(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for ft.connectCalls.Load() <= callsBefore && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Greater(t, ft.connectCalls.Load(), callsBefore, "supervisor should have reconnected after a CallTool failure")
}

// TestCallToolReturnsOverloadedWithoutQueueing verifies SPEC_FULL.md
// §5/§8's backpressure invariant: once MaxOutstanding is exhausted, a
// CallTool attempt fails immediately with overloaded rather than blocking
// until an in-flight call completes.
func TestCallToolReturnsOverloadedWithoutQueueing(t *testing.T) {
	release := make(chan struct{})
	ft := &fakeTransport{tools: []mcp.Tool{{Name: "echo"}}, block: release}
	spec := ServerSpec{Name: "svc", Kind: TransportStdio, MaxOutstanding: 1, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}
	sup := NewSupervisor(spec, func() Transport { return ft })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	waitForState(t, sup, StateReady)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = sup.CallTool(context.Background(), "echo", nil)
	}()
	// Give the in-flight call time to claim the cap's only slot.
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	_, err := sup.CallTool(context.Background(), "echo", nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, mcperrors.Overloaded, mcperrors.KindOf(err))
	assert.Less(t, elapsed, 50*time.Millisecond)

	close(release)
	<-done
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := 400 * time.Millisecond
	d1 := backoffDelay(base, max, 1)
	d4 := backoffDelay(base, max, 4)
	assert.LessOrEqual(t, d1, 120*time.Millisecond)
	assert.LessOrEqual(t, d4, max+time.Duration(float64(max)*0.2))
	assert.Greater(t, d4, d1)
}
