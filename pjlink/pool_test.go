package pjlink

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsJobsInOrder(t *testing.T) {
	pool := NewPool(4)
	pool.Start()
	defer pool.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, pool.post(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		}))
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("jobs never completed")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPoolPostSyncBlocksUntilDone(t *testing.T) {
	pool := NewPool(1)
	pool.Start()
	defer pool.Stop()

	var ran atomic.Bool
	require.NoError(t, pool.postSync(func() { ran.Store(true) }))
	assert.True(t, ran.Load())
}

func TestPoolPostAfterStopFails(t *testing.T) {
	pool := NewPool(1)
	pool.Start()
	pool.Stop()

	err := pool.post(func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPoolConnectionsCounter(t *testing.T) {
	pool := NewPool(1)
	assert.Equal(t, 0, pool.Connections())
	pool.incrConnections()
	pool.incrConnections()
	assert.Equal(t, 2, pool.Connections())
	pool.decrConnections()
	assert.Equal(t, 1, pool.Connections())
}
