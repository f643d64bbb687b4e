package engine

import "github.com/roach88/mallet/internal/event"

// Editor is the payload editing capability of a UI or automation.
//
// The core calls CurrentObject/ReadOnly to commit edits before execution,
// and SetCurrentObject/SetReadOnly to seed or clear the editor when focus
// moves. Objects handed to SetCurrentObject are borrowed: an editor that
// keeps a ref-counted object beyond the call must Retain it itself.
type Editor interface {
	CurrentObject() any
	SetCurrentObject(obj any)
	ReadOnly() bool
	SetReadOnly(readOnly bool)
}

// PendingEdit is an in-progress edit of a selected message event that has
// not been committed back into the event yet. It is explicit caller state:
// the gate has no hidden dependency on any UI component.
type PendingEdit struct {
	Event  *event.MessageEvent
	Editor Editor
}

// commit writes the editor's current object into the event, retaining a
// reference for the event. Read-only editors are not committed.
// Reports whether a commit happened.
func (p *PendingEdit) commit() (bool, error) {
	if p == nil || p.Event == nil || p.Editor == nil || p.Editor.ReadOnly() {
		return false, nil
	}

	obj := p.Editor.CurrentObject()
	if err := event.Retain(obj); err != nil {
		return false, commitError(p.Event.ChannelID(), err)
	}
	if err := p.Event.SetMessage(obj); err != nil {
		if event.IsAlreadyExecuted(err) {
			// event did not take the reference
			_ = event.Release(obj)
		}
		return false, commitError(p.Event.ChannelID(), err)
	}
	return true, nil
}
