package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPublishIsAtomic(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Snapshot().Len())

	c, err := Merge([]Source{{ID: "a.yaml", Tools: []Tool{{Name: "t1", Routing: Routing{Kind: "http"}}}}}, PolicyError)
	require.NoError(t, err)

	r.Publish(c)
	assert.Equal(t, 1, r.Snapshot().Len())
}

func TestRegistrySnapshotIsStableDuringRepublish(t *testing.T) {
	r := NewRegistry()
	c1, _ := Merge([]Source{{ID: "a.yaml", Tools: []Tool{{Name: "t1", Routing: Routing{Kind: "http"}}}}}, PolicyError)
	r.Publish(c1)

	held := r.Snapshot()

	c2, _ := Merge([]Source{{ID: "a.yaml", Tools: []Tool{
		{Name: "t1", Routing: Routing{Kind: "http"}},
		{Name: "t2", Routing: Routing{Kind: "http"}},
	}}}, PolicyError)
	r.Publish(c2)

	assert.Equal(t, 1, held.Len(), "a snapshot taken before Publish must not see the new catalog")
	assert.Equal(t, 2, r.Snapshot().Len())
}

func TestRegistryConcurrentPublishAndSnapshot(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c, _ := Merge([]Source{{ID: "a.yaml", Tools: []Tool{{Name: "t", Routing: Routing{Kind: "http"}}}}}, PolicyError)
			r.Publish(c)
		}()
		go func() {
			defer wg.Done()
			_ = r.Snapshot()
		}()
	}
	wg.Wait()
}
