package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/mallet/internal/event"
	"github.com/roach88/mallet/internal/store"
)

// Connection is one proxied connection: its event store and the controller
// that resolves it.
type Connection struct {
	ID         string
	Accepted   time.Time
	Store      *store.Store
	Controller *Controller

	metrics *Metrics
	logger  *slog.Logger
}

// Capture appends e to the connection's store. Called by the network
// goroutine only.
func (c *Connection) Capture(ctx context.Context, e event.Event) (int, error) {
	idx, err := c.Store.Append(e)
	if err != nil {
		c.logger.Warn("capture failed", "type", e.Type(), "channel", e.ChannelID(), "error", err)
		return idx, err
	}
	c.metrics.recordCaptured(ctx, e.Type())
	c.logger.Debug("event captured", "index", idx, "type", e.Type(), "channel", e.ChannelID())
	return idx, nil
}

// Registry tracks the connections of a proxy.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	order []string

	pipeline Pipeline
	ids      IDGenerator
	seq      *store.Clock
	clock    event.Clock
	metrics  *Metrics
	gateOpts []GateOption
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIDGenerator sets the generator for connection and channel ids.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) RegistryOption {
	return func(r *Registry) {
		r.ids = g
	}
}

// WithRegistryClock sets the wall clock for accept and execution times.
func WithRegistryClock(c event.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithRegistryMetrics sets the metrics shared by every connection.
func WithRegistryMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithGateOptions passes extra options to every connection's gate.
func WithGateOptions(opts ...GateOption) RegistryOption {
	return func(r *Registry) {
		r.gateOpts = append(r.gateOpts, opts...)
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates a registry whose connections deliver to p.
func NewRegistry(p Pipeline, opts ...RegistryOption) *Registry {
	r := &Registry{
		conns:    make(map[string]*Connection),
		pipeline: p,
		ids:      UUIDv7Generator{},
		seq:      store.NewClock(),
		clock:    event.SystemClock{},
		metrics:  NoopMetrics(),
		logger:   slog.Default().With("component", "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetPipeline replaces the pipeline for connections accepted afterwards.
// Used when the pipeline needs the registry to be constructed first.
func (r *Registry) SetPipeline(p Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipeline = p
}

// NewChannelID generates an identifier for a channel of a connection.
func (r *Registry) NewChannelID() string {
	return r.ids.Generate()
}

// Accept registers a new connection with an empty store.
func (r *Registry) Accept() *Connection {
	id := r.ids.Generate()
	logger := r.logger.With("connection", id)

	s := store.NewWithClock(r.seq)

	r.mu.Lock()
	p := r.pipeline
	r.mu.Unlock()

	opts := []GateOption{
		WithClock(r.clock),
		WithMetrics(r.metrics),
		WithLogger(r.logger),
	}
	opts = append(opts, r.gateOpts...)
	gate := NewGate(id, s, p, opts...)

	conn := &Connection{
		ID:         id,
		Accepted:   r.clock.Now(),
		Store:      s,
		Controller: NewController(gate),
		metrics:    r.metrics,
		logger:     logger,
	}

	r.mu.Lock()
	r.conns[id] = conn
	r.order = append(r.order, id)
	r.mu.Unlock()

	logger.Info("connection accepted")
	return conn
}

// Get returns the connection with the given id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// List returns all connections in accept order, closed ones included.
func (r *Registry) List() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.conns[id])
	}
	return out
}

// Close retires the connection's store. Its events stay inspectable.
// Returns false if the id is unknown.
func (r *Registry) Close(id string) bool {
	c, ok := r.Get(id)
	if !ok {
		return false
	}
	c.Store.Retire()
	c.logger.Info("connection closed", "events", c.Store.Size(), "pending", c.Store.PendingCount())
	return true
}
