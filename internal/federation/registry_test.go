package federation

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magictunnel/pkg/mcperrors"
)

func TestRegistryCallToolUnregisteredServerIsNotFound(t *testing.T) {
	reg := NewRegistry(nil)
	_, _, err := reg.CallTool(context.Background(), "missing", "tool", nil)
	require.Error(t, err)
	assert.Equal(t, mcperrors.NotFound, mcperrors.KindOf(err))
}

func TestRegistryRoutesCallToolThroughSupervisor(t *testing.T) {
	reg := NewRegistry(nil)

	ft := &fakeTransport{tools: []mcp.Tool{{Name: "echo"}}}
	sup := NewSupervisor(ServerSpec{Name: "svc", Kind: TransportStdio, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond}, func() Transport { return ft })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()
	waitForState(t, sup, StateReady)

	reg.mu.Lock()
	reg.supervisors["svc"] = sup
	reg.mu.Unlock()

	content, isError, err := reg.CallTool(context.Background(), "svc", "echo", nil)
	require.NoError(t, err)
	assert.False(t, isError)
	assert.Len(t, content, 1)
}

func TestRegistryTransportFactoryRejectsUnknownKind(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.Register(context.Background(), ServerSpec{Name: "bad", Kind: "carrier-pigeon"})
	require.Error(t, err)
}
