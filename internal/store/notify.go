package store

import (
	"sort"
	"sync"
)

// ChangeKind distinguishes insertions from in-place updates.
type ChangeKind int

const (
	// Inserted reports new events at [First, Last].
	Inserted ChangeKind = iota + 1
	// Updated reports events at [First, Last] changed in place.
	Updated
)

// String implements fmt.Stringer.
func (k ChangeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Change describes an affected index range, inclusive at both ends.
type Change struct {
	Kind  ChangeKind `json:"kind"`
	First int        `json:"first"`
	Last  int        `json:"last"`
}

// Listener receives change notifications. It runs on the goroutine that
// caused the change and must not block.
type Listener func(Change)

// Subscribe registers l and returns a function that unregisters it.
func (s *Store) Subscribe(l Listener) (cancel func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

// Watch returns a buffered channel of changes. A consumer that falls behind
// misses changes rather than blocking the appending goroutine; it can
// resynchronize from Size(). cancel unregisters and closes the channel.
func (s *Store) Watch(buffer int) (<-chan Change, func()) {
	w := &watcher{ch: make(chan Change, buffer)}
	unsubscribe := s.Subscribe(w.send)
	return w.ch, func() {
		unsubscribe()
		w.close()
	}
}

// notify calls every listener in registration order.
func (s *Store) notify(c Change) {
	s.lmu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, s.listeners[id])
	}
	s.lmu.Unlock()

	for _, l := range ls {
		l(c)
	}
}

type watcher struct {
	mu     sync.Mutex
	ch     chan Change
	closed bool
}

func (w *watcher) send(c Change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	select {
	case w.ch <- c:
	default:
		// consumer is behind; drop to avoid blocking Append
	}
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}
