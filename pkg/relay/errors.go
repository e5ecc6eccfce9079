package relay

import "errors"

var (
	// ErrInvalidCapacity is returned by Open when the requested capacity is not positive.
	ErrInvalidCapacity = errors.New("relay capacity must be greater than zero")

	// ErrChannelClosed is returned to a producer once the reader has been released, or once
	// a failure has already been sent on the relay. Producers treat it as a request to stop.
	ErrChannelClosed = errors.New("relay channel closed")

	// ErrMisuse signals a call the relay contract forbids, such as a concurrent Receive
	// or pulling from a stream that already finished.
	ErrMisuse = errors.New("relay misuse")
)

// SourceError is the failure a work item source reported, as delivered to the consumer.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return "source failed: " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
