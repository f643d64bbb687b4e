package store

import (
	"fmt"
	"sync"

	"github.com/roach88/mallet/internal/event"
)

// Store is the ordered event list of one connection.
//
// Thread-safety model:
//   - Append(): one writer goroutine (the connection's network loop)
//   - Get(), Size(), Events(), pending queries: any goroutine
//   - NotifyUpdated(): the control actor, after resolving events in place
//
// Listeners are invoked outside the store lock, in append order.
type Store struct {
	mu      sync.RWMutex
	events  []event.Event
	seqs    []int64
	retired bool
	clock   *Clock

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New creates an empty store with its own logical clock.
func New() *Store {
	return NewWithClock(NewClock())
}

// NewWithClock creates an empty store stamping appends from clock.
// Used to share one ordering across every connection of a proxy.
func NewWithClock(clock *Clock) *Store {
	return &Store{
		events:    make([]event.Event, 0, 64),
		seqs:      make([]int64, 0, 64),
		clock:     clock,
		listeners: make(map[int]Listener),
	}
}

// Append adds e to the tail and notifies listeners of the insertion.
// Returns the new event's index.
//
// Errors:
//   - STORE_RETIRED if the connection has closed
//   - OUT_OF_ORDER if e's event time precedes the previous event's
func (s *Store) Append(e event.Event) (int, error) {
	if e == nil {
		return -1, fmt.Errorf("append: nil event")
	}

	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		return -1, event.NewError(event.ErrCodeStoreRetired, "append to retired store").OnChannel(e.ChannelID())
	}
	if n := len(s.events); n > 0 && e.EventTime().Before(s.events[n-1].EventTime()) {
		s.mu.Unlock()
		return -1, event.NewError(event.ErrCodeOutOfOrder, "event time precedes previous event").OnChannel(e.ChannelID()).AtIndex(n)
	}

	idx := len(s.events)
	s.events = append(s.events, e)
	s.seqs = append(s.seqs, s.clock.Next())
	s.mu.Unlock()

	s.notify(Change{Kind: Inserted, First: idx, Last: idx})
	return idx, nil
}

// Get returns the event at index i.
// Returns an INVALID_INDEX error outside [0, Size()).
func (s *Store) Get(i int) (event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.events) {
		return nil, event.ErrInvalidIndex(i, len(s.events))
	}
	return s.events[i], nil
}

// Seq returns the logical sequence number stamped on the event at index i.
func (s *Store) Seq(i int) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.seqs) {
		return 0, event.ErrInvalidIndex(i, len(s.seqs))
	}
	return s.seqs[i], nil
}

// Size returns the number of events, executed ones included.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Events returns a snapshot of the event list.
func (s *Store) Events() []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// FirstPending returns the index of the earliest unresolved event.
func (s *Store) FirstPending() (int, bool) {
	return s.NextPending(-1)
}

// NextPending returns the smallest index greater than after whose event is
// still pending.
func (s *Store) NextPending(after int) (int, bool) {
	events := s.Events()
	for i := after + 1; i < len(events); i++ {
		if i < 0 {
			continue
		}
		if !events[i].IsExecuted() {
			return i, true
		}
	}
	return -1, false
}

// PendingCount returns the number of unresolved events.
//
// Event state is read outside the store lock; an in-flight resolution holds
// its event and must not stall appends.
func (s *Store) PendingCount() int {
	n := 0
	for _, e := range s.Events() {
		if !e.IsExecuted() {
			n++
		}
	}
	return n
}

// Retire marks the connection closed. Later appends fail; reads still work.
// Idempotent.
func (s *Store) Retire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = true
}

// Retired reports whether the connection has closed.
func (s *Store) Retired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retired
}

// NotifyUpdated tells listeners that events in [first, last] changed in
// place, typically because they were resolved.
func (s *Store) NotifyUpdated(first, last int) {
	if first > last {
		return
	}
	s.notify(Change{Kind: Updated, First: first, Last: last})
}
