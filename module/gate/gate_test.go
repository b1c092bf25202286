package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memWindows applies mutations under a lock, matching the atomicity the store
// contract demands.
type memWindows struct {
	mu   sync.Mutex
	data map[string]Window
	fail error
}

func newMemWindows() *memWindows {
	return &memWindows{data: make(map[string]Window)}
}

func (m *memWindows) Mutate(_ context.Context, key string, fn func(Window) (Window, bool)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	next, write := fn(m.data[key])
	if write {
		m.data[key] = next
	}
	return nil
}

func TestTryConsumeConcurrentCap(t *testing.T) {
	store := newMemWindows()
	l := NewLimiter(store, nil)

	const callers = 100
	const limit = 10

	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.TryConsume(context.Background(), "u1", "message", limit, 10*time.Second)
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for ok := range results {
		if ok {
			allowed++
		}
	}
	assert.Equal(t, limit, allowed)
	assert.Equal(t, limit, store.data[windowKey("u1", "message")].Count)
}

func TestTryConsumeWindowReset(t *testing.T) {
	store := newMemWindows()
	l := NewLimiter(store, nil)

	base := time.Now()
	now := base
	l.now = func() time.Time { return now }

	// limit=1 window=10s: first allowed, second 2s later denied, third after
	// 11s allowed again.
	require.True(t, l.TryConsume(context.Background(), "u1", "call", 1, 10*time.Second))

	now = base.Add(2 * time.Second)
	assert.False(t, l.TryConsume(context.Background(), "u1", "call", 1, 10*time.Second))

	now = base.Add(11 * time.Second)
	assert.True(t, l.TryConsume(context.Background(), "u1", "call", 1, 10*time.Second))

	w := store.data[windowKey("u1", "call")]
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, base.Add(11*time.Second).UnixMilli(), w.WindowStartMillis)
}

func TestTryConsumeDeniedWritesNothing(t *testing.T) {
	store := newMemWindows()
	l := NewLimiter(store, nil)

	require.True(t, l.TryConsume(context.Background(), "u1", "call", 1, time.Minute))
	before := store.data[windowKey("u1", "call")]

	assert.False(t, l.TryConsume(context.Background(), "u1", "call", 1, time.Minute))
	assert.Equal(t, before, store.data[windowKey("u1", "call")], "rejection must not consume partial quota")
}

func TestTryConsumeFailsClosed(t *testing.T) {
	store := newMemWindows()
	store.fail = ErrContention
	l := NewLimiter(store, nil)

	assert.False(t, l.TryConsume(context.Background(), "u1", "message", 100, time.Minute))
}

func TestAllowUsesConfiguredRule(t *testing.T) {
	store := newMemWindows()
	l := NewLimiter(store, map[string]Rule{
		"call": {Limit: 1, Window: time.Minute},
	})

	assert.True(t, l.Allow(context.Background(), "u1", "call"))
	assert.False(t, l.Allow(context.Background(), "u1", "call"))
	assert.False(t, l.Allow(context.Background(), "u1", "unknown_action"))
}

func TestIndependentKeys(t *testing.T) {
	store := newMemWindows()
	l := NewLimiter(store, nil)

	assert.True(t, l.TryConsume(context.Background(), "u1", "call", 1, time.Minute))
	assert.True(t, l.TryConsume(context.Background(), "u2", "call", 1, time.Minute))
	assert.True(t, l.TryConsume(context.Background(), "u1", "message", 1, time.Minute))
}
