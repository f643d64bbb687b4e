package engine

import (
	"context"

	"github.com/roach88/mallet/internal/event"
)

// Focus is a control actor's selection state on one connection: which
// event is selected and which message is being edited.
//
// It is owned by the caller (one per UI view or automation script) and is
// not safe for concurrent use.
type Focus struct {
	conn     *Connection
	editor   Editor
	selected int
	editing  *event.MessageEvent
}

// NewFocus creates a focus with nothing selected.
func NewFocus(conn *Connection, editor Editor) *Focus {
	return &Focus{conn: conn, editor: editor, selected: -1}
}

// Selected returns the selected index, or -1.
func (f *Focus) Selected() int {
	return f.selected
}

// Pending returns the in-progress edit to pass to Execute, or nil.
func (f *Focus) Pending() *PendingEdit {
	if f.editing == nil {
		return nil
	}
	return &PendingEdit{Event: f.editing, Editor: f.editor}
}

// Select moves focus to index i (-1 clears the selection).
//
// An in-progress edit of the previously selected message is committed first
// unless the editor is read-only; edits of events resolved in the meantime
// are discarded. The editor is then seeded from the new event:
//   - message: its payload, editable while pending
//   - exception: the rendered cause, read-only
//   - user event: the signal value, read-only
//   - marker or nothing: nil, read-only
func (f *Focus) Select(i int) error {
	if f.editing != nil && !f.editing.IsExecuted() {
		edit := PendingEdit{Event: f.editing, Editor: f.editor}
		if _, err := edit.commit(); err != nil {
			return err
		}
	}

	var e event.Event
	if i >= 0 {
		var err error
		if e, err = f.conn.Store.Get(i); err != nil {
			return err
		}
	} else {
		i = -1
	}
	f.selected = i
	f.editing = nil

	switch ev := e.(type) {
	case *event.MessageEvent:
		f.editing = ev
		obj := ev.Message()
		f.editor.SetCurrentObject(obj)
		_ = event.Release(obj)
		f.editor.SetReadOnly(ev.IsExecuted())
	case *event.ExceptionEvent:
		f.editor.SetCurrentObject(ev.Cause())
		f.editor.SetReadOnly(true)
	case *event.UserEvent:
		f.editor.SetCurrentObject(ev.Value())
		f.editor.SetReadOnly(true)
	case *event.MarkerEvent, nil:
		f.editor.SetCurrentObject(nil)
		f.editor.SetReadOnly(true)
	}
	return nil
}

// CanResolve reports whether the selection is a pending event, the state in
// which Drop and Execute act on it.
func (f *Focus) CanResolve() bool {
	if f.selected < 0 {
		return false
	}
	e, err := f.conn.Store.Get(f.selected)
	return err == nil && !e.IsExecuted()
}

// Drop drops every pending event up to the selection, or the next pending
// event when nothing is selected, then advances the selection to the next
// pending event.
func (f *Focus) Drop(ctx context.Context) (Result, error) {
	var res Result
	var err error
	if f.selected >= 0 {
		res, err = f.conn.Controller.DropNextEvents(ctx, f.selected)
	} else {
		res, err = f.conn.Controller.DropNextEvent(ctx)
	}
	return res, f.advance(res, err)
}

// Execute commits the in-progress edit and delivers every pending event up
// to the selection, or the next pending event when nothing is selected, then
// advances the selection to the next pending event.
func (f *Focus) Execute(ctx context.Context) (Result, error) {
	edit := f.Pending()

	var res Result
	var err error
	if f.selected >= 0 {
		res, err = f.conn.Controller.ExecuteNextEvents(ctx, f.selected, edit)
	} else {
		res, err = f.conn.Controller.ExecuteNextEvent(ctx, edit)
	}
	if err == nil || !event.IsCode(err, event.ErrCodeEditorCommitFailure) {
		f.editing = nil
	}
	return res, f.advance(res, err)
}

// advance selects res.NextPending. A resolution error takes precedence over
// a selection error.
func (f *Focus) advance(res Result, err error) error {
	selErr := f.Select(res.NextPending)
	if err != nil {
		return err
	}
	return selErr
}

// Clear deselects, committing any in-progress edit first.
func (f *Focus) Clear() error {
	return f.Select(-1)
}
