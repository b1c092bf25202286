package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(context.Background(), 4, 16)
	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		ok := p.Submit(func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
		})
		if !ok {
			wg.Done()
		}
	}
	wg.Wait()
	p.Close()
	assert.Greater(t, ran.Load(), int64(0))
}

func TestPoolDropsWhenFull(t *testing.T) {
	p := NewPool(context.Background(), 1, 1)
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-block
	}))
	<-started

	// worker busy; fill the one queue slot, next submit must drop
	require.True(t, p.Submit(func(ctx context.Context) {}))
	assert.False(t, p.Submit(func(ctx context.Context) {}))
	close(block)
}

func TestPoolSurvivesPanic(t *testing.T) {
	p := NewPool(context.Background(), 1, 4)
	defer p.Close()

	done := make(chan struct{})
	require.True(t, p.Submit(func(ctx context.Context) { panic("boom") }))
	require.True(t, p.Submit(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestCloseWaitsForInflight(t *testing.T) {
	p := NewPool(context.Background(), 2, 4)
	var ran atomic.Int64
	for i := 0; i < 4; i++ {
		p.Submit(func(ctx context.Context) {
			time.Sleep(10 * time.Millisecond)
			ran.Add(1)
		})
	}
	p.Close()
	assert.Equal(t, int64(4), ran.Load())
}
