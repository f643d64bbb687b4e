package event

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes interception errors.
type ErrorCode string

const (
	// ErrCodeInvalidIndex indicates an index outside [0, size).
	ErrCodeInvalidIndex ErrorCode = "INVALID_INDEX"

	// ErrCodeAlreadyExecuted indicates a mutation or resolution of an
	// event that has already been resolved.
	ErrCodeAlreadyExecuted ErrorCode = "ALREADY_EXECUTED"

	// ErrCodeEmptyStoreDirection indicates direction derivation on a store
	// with no events.
	ErrCodeEmptyStoreDirection ErrorCode = "EMPTY_STORE_DIRECTION"

	// ErrCodeDeliveryFailure indicates the pipeline rejected a payload.
	ErrCodeDeliveryFailure ErrorCode = "DELIVERY_FAILURE"

	// ErrCodeEditorCommitFailure indicates a pending edit could not be
	// committed back into its event.
	ErrCodeEditorCommitFailure ErrorCode = "EDITOR_COMMIT_FAILURE"

	// ErrCodeRefCount indicates a retain or release of a freed payload.
	ErrCodeRefCount ErrorCode = "REFCOUNT"

	// ErrCodeOutOfOrder indicates an append whose event time precedes the
	// previous event of the same store.
	ErrCodeOutOfOrder ErrorCode = "OUT_OF_ORDER"

	// ErrCodeStoreRetired indicates an append to a closed connection.
	ErrCodeStoreRetired ErrorCode = "STORE_RETIRED"
)

// Error is the structured error returned by the interception core.
//
// Index is -1 when the error is not tied to a store position.
type Error struct {
	Code      ErrorCode
	Message   string
	ChannelID string
	Index     int
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s (index=%d)", msg, e.Index)
	}
	if e.ChannelID != "" {
		msg = fmt.Sprintf("%s (channel=%s)", msg, e.ChannelID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error that is not tied to a store position.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Index: -1}
}

// WrapError creates an Error with an underlying cause.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Index: -1, Err: err}
}

// AtIndex returns a copy of e tied to a store position.
func (e *Error) AtIndex(index int) *Error {
	c := *e
	c.Index = index
	return &c
}

// OnChannel returns a copy of e tied to a channel.
func (e *Error) OnChannel(channelID string) *Error {
	c := *e
	c.ChannelID = channelID
	return &c
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err's chain contains an *Error with the given code,
// at any depth.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsAlreadyExecuted returns true if err is an ALREADY_EXECUTED error.
func IsAlreadyExecuted(err error) bool {
	return IsCode(err, ErrCodeAlreadyExecuted)
}

// IsInvalidIndex returns true if err is an INVALID_INDEX error.
func IsInvalidIndex(err error) bool {
	return IsCode(err, ErrCodeInvalidIndex)
}

// IsDeliveryFailure returns true if err is a DELIVERY_FAILURE error.
func IsDeliveryFailure(err error) bool {
	return IsCode(err, ErrCodeDeliveryFailure)
}

// ErrInvalidIndex creates an INVALID_INDEX error for index against size.
func ErrInvalidIndex(index, size int) *Error {
	return &Error{
		Code:    ErrCodeInvalidIndex,
		Message: fmt.Sprintf("index out of range [0, %d)", size),
		Index:   index,
	}
}
