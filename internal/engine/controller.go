package engine

import (
	"context"
	"sync"
)

// Controller is the per-connection facade external actors use to resolve
// pending events. It is the only path by which events leave pending state.
//
// Thread-safety: calls are serialized by a per-connection lock, so at most
// one resolution is in flight per connection. Appends from the network
// goroutine proceed concurrently.
type Controller struct {
	mu   sync.Mutex
	gate *Gate
}

// NewController creates a controller resolving through g.
func NewController(g *Gate) *Controller {
	return &Controller{gate: g}
}

// DropNextEvent drops the earliest pending event.
func (c *Controller) DropNextEvent(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.Drop(ctx, Next)
}

// DropNextEvents drops every pending event at index <= n.
func (c *Controller) DropNextEvents(ctx context.Context, n int) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.Drop(ctx, n)
}

// ExecuteNextEvent commits edit (may be nil) and delivers the earliest
// pending event.
func (c *Controller) ExecuteNextEvent(ctx context.Context, edit *PendingEdit) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.Execute(ctx, Next, edit)
}

// ExecuteNextEvents commits edit (may be nil) and delivers every pending
// event at index <= n.
func (c *Controller) ExecuteNextEvents(ctx context.Context, n int, edit *PendingEdit) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.Execute(ctx, n, edit)
}
