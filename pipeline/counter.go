package pipeline

import "sync"

// Counter is a monotonically increasing, goroutine-safe progress counter.
// It reports how many records were emitted; it is not used to decide when
// a run is complete.
type Counter struct {
	mu    sync.Mutex
	value int64
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
