package chat

import "errors"

var (
	// ErrNotFound covers unknown messages and unknown channels.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller is not a channel member, not
	// the sender of the message, or not an administrator.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput marks a malformed frame or request.
	ErrInvalidInput = errors.New("invalid input")
)
