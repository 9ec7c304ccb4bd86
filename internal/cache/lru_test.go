package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestLRUCache_SizeEviction(t *testing.T) {
	var evicted []string
	c := NewLRUCache[int](2, time.Hour, WithEvict(func(key string, _ int) {
		evicted = append(evicted, key)
	}))

	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a") // a becomes most recent
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_TTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := NewLRUCache[string](10, time.Minute, WithClock[string](clock.Now))

	c.Set("k", "v")
	clock.Advance(30 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(31 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "fixed TTL counts from Set")
}

func TestLRUCache_SlidingTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := NewLRUCache[string](10, time.Minute, WithClock[string](clock.Now), WithSlidingTTL[string]())

	c.Set("k", "v")
	for range 5 {
		clock.Advance(50 * time.Second)
		_, ok := c.Get("k")
		require.True(t, ok)
	}
	clock.Advance(61 * time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLRUCache_CleanExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	evicted := 0
	c := NewLRUCache[int](10, time.Minute, WithClock[int](clock.Now), WithEvict(func(string, int) { evicted++ }))

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(2 * time.Minute)
	c.Set("c", 3)

	m := NewManager(nil)
	m.Register(c)
	assert.Equal(t, 2, m.Sweep())
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, 2, evicted)
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	evicted := 0
	c := NewLRUCache[int](10, time.Minute, WithEvict(func(string, int) { evicted++ }))
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Zero(t, evicted)
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager(nil)
	m.Register(NewLRUCache[int](1, time.Millisecond))
	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	m.Stop()
}
