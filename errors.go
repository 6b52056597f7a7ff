package perfprobe

// Error is a perfprobe error.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

// Error values.
const (
	// ErrChannelClosed is the channel closed error.
	ErrChannelClosed Error = "channel closed"

	// ErrWaitTimeout is returned when an awaited protocol event does not
	// arrive in time.
	ErrWaitTimeout Error = "timed out waiting for event"

	// ErrInvalidWebsocketMessage is the invalid websocket message error.
	ErrInvalidWebsocketMessage Error = "invalid websocket message"

	// ErrUndefinedSnapshot is returned when the in-page state could not be
	// read back.
	ErrUndefinedSnapshot Error = "in-page instrumentation state is undefined"

	// ErrUnknownProfile is the unknown emulation profile error.
	ErrUnknownProfile Error = "unknown emulation profile"
)
