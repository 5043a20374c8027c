package domain

import "errors"

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrChatNotFound   = errors.New("chat not found")
	ErrForbidden      = errors.New("not a member of this chat")
	ErrInvalidMessage = errors.New("invalid message format")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrPersistence    = errors.New("failed to persist message")
	ErrChatMismatch   = errors.New("message chat does not match connection")
)

// Close reasons sent with a policy-violation close frame.
const (
	CloseReasonUnauthorized = "Unauthorized"
	CloseReasonChatNotFound = "Chat not found"
	CloseReasonForbidden    = "You are not a member of this chat"
)

// IsConnectionFatal reports whether err must terminate the connection.
func IsConnectionFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrChatNotFound) ||
		errors.Is(err, ErrForbidden)
}

// CloseReason returns the close frame reason for a connection-fatal error.
func CloseReason(err error) string {
	switch {
	case errors.Is(err, ErrChatNotFound):
		return CloseReasonChatNotFound
	case errors.Is(err, ErrForbidden):
		return CloseReasonForbidden
	default:
		return CloseReasonUnauthorized
	}
}
