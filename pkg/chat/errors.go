package chat

import "errors"

// The three failure classes surfaced at the session receive boundary. All of
// them are converted into an error envelope for the originating connection;
// none of them terminate the session.
var (
	// ErrMalformedInput marks a payload that fails shape or required-field
	// validation, or a message sent by a session that has no destination.
	ErrMalformedInput = errors.New("malformed input")

	// ErrNotFound marks a persistence call that referenced an unknown user,
	// recipient, or room.
	ErrNotFound = errors.New("not found")

	// ErrTransientStore marks an I/O failure talking to the durable store.
	ErrTransientStore = errors.New("transient store failure")
)
