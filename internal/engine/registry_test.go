package engine

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	h := &Handle{ContainerID: "c1", ClientID: "client-a"}

	assert.True(t, r.Register("j1", h))
	assert.False(t, r.Register("j1", &Handle{}), "duplicate id must be rejected")

	got, ok := r.Get("j1")
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryPop(t *testing.T) {
	r := NewRegistry()
	r.Register("j1", &Handle{ContainerID: "c1"})

	h, ok := r.Pop("j1")
	require.True(t, ok)
	assert.Equal(t, "c1", h.ContainerID)

	_, ok = r.Pop("j1")
	assert.False(t, ok, "second pop must lose")
	assert.Equal(t, 0, r.Len())
}

// Teardown races resolve through Pop: many concurrent claimants, exactly
// one winner.
func TestRegistryConcurrentPopSingleWinner(t *testing.T) {
	r := NewRegistry()
	r.Register("j1", &Handle{ContainerID: "c1"})

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Pop("j1"); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestRegistryFindByClient(t *testing.T) {
	r := NewRegistry()
	r.Register("j1", &Handle{ClientID: "alice"})
	r.Register("j2", &Handle{ClientID: "bob"})
	r.Register("j3", &Handle{ClientID: "alice"})

	ids := r.FindByClient("alice")
	assert.ElementsMatch(t, []string{"j1", "j3"}, ids)
	assert.Empty(t, r.FindByClient("nobody"))
	assert.Len(t, r.AllIDs(), 3)
}
