// Package apperr classifies failures into the kinds surfaced by the chat
// protocol's terminal error event.
package apperr

import "errors"

// Kind is a machine-readable failure class.
type Kind string

const (
	// KindUnknown is used when nothing more specific applies.
	KindUnknown Kind = "UNKNOWN"
	// KindValidation marks a dial, theme or quantity outside its domain.
	KindValidation Kind = "VALIDATION"
	// KindStage marks a generation failure scoped to one pipeline stage.
	KindStage Kind = "STAGE"
	// KindProtocol marks a malformed or out-of-order event.
	KindProtocol Kind = "PROTOCOL"
	// KindPersistence marks a best-effort save failure.
	KindPersistence Kind = "PERSISTENCE"
	// KindProvider marks a model backend failure.
	KindProvider Kind = "PROVIDER"
	// KindCancelled marks a turn cancelled by the caller.
	KindCancelled Kind = "CANCELLED"
	// KindBusy marks a submission while another turn is streaming.
	KindBusy Kind = "BUSY"
)

// Error is the classified error type.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a classified error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
