package testutil

import (
	"sync"

	"github.com/roach88/mallet/internal/event"
)

// FakeEditor is an in-memory payload editor.
//
// It holds its own reference to ref-counted objects it is given, and releases
// it when the object is replaced, so tests can check reference counts across
// selection changes.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeEditor struct {
	mu       sync.Mutex
	obj      any
	readOnly bool

	// Sets counts SetCurrentObject calls.
	Sets int
}

// NewFakeEditor creates an empty, read-only editor.
func NewFakeEditor() *FakeEditor {
	return &FakeEditor{readOnly: true}
}

// CurrentObject returns the object being edited, without a reference.
func (e *FakeEditor) CurrentObject() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.obj
}

// SetCurrentObject replaces the object, retaining obj and releasing the
// previous one.
func (e *FakeEditor) SetCurrentObject(obj any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_ = event.Retain(obj)
	e.swap(obj)
	e.Sets++
}

// Edit simulates a user edit: the editor takes over the caller's reference
// to obj.
func (e *FakeEditor) Edit(obj any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.swap(obj)
}

// ReadOnly reports whether edits are disabled.
func (e *FakeEditor) ReadOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readOnly
}

// SetReadOnly enables or disables edits.
func (e *FakeEditor) SetReadOnly(readOnly bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readOnly = readOnly
}

func (e *FakeEditor) swap(obj any) {
	old := e.obj
	e.obj = obj
	_ = event.Release(old)
}
