package engine

import (
	"errors"

	"github.com/roach88/mallet/internal/event"
)

// deliveryError wraps a pipeline rejection of the event at index.
func deliveryError(index int, channelID string, err error) error {
	return event.WrapError(event.ErrCodeDeliveryFailure, "pipeline rejected payload", err).
		AtIndex(index).
		OnChannel(channelID)
}

// commitError wraps a failure to commit an in-progress edit.
func commitError(channelID string, err error) error {
	return event.WrapError(event.ErrCodeEditorCommitFailure, "commit pending edit", err).
		OnChannel(channelID)
}

// atIndex ties an interception error to the store position it happened at.
// Delivery errors already carry their index and are returned unchanged.
func atIndex(err error, index int) error {
	var ee *event.Error
	if errors.As(err, &ee) && ee.Index < 0 {
		return ee.AtIndex(index)
	}
	return err
}
