package chat

import (
	"github.com/pkg/errors"
)

// Kind classifies failures surfaced by the SDK.
type Kind string

const (
	// KindConfiguration marks missing or unusable process configuration.
	KindConfiguration Kind = "configuration"
	// KindProtocol marks unexpected HTTP statuses or malformed responses.
	KindProtocol Kind = "protocol"
	// KindTransport marks connection failures and timeouts.
	KindTransport Kind = "transport"
	// KindValidation marks malformed caller input.
	KindValidation Kind = "validation"
	// KindState marks operations attempted while no chat is in progress.
	KindState Kind = "state"
)

// Error is an SDK failure tagged with its kind. The cause chain stays
// reachable through Unwrap, so errors.Is and errors.As keep working across
// the tag.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string { return e.Cause.Error() }

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Cause: errors.Errorf(format, args...)}
}

func wrapError(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Cause: errors.Wrap(err, msg)}
}

// IsKind reports whether err carries the given SDK error kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func errChatNotInProgress() *Error {
	return newError(KindState, "a chat is not in progress")
}
