package relay

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/openfga/recordrelay/pkg/storage"
)

// State is the lifecycle state of a Stream.
type State int

const (
	Idle State = iota
	Streaming
	Completed
	Errored
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Errored:
		return "errored"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no more values can be pulled in state s.
func (s State) Terminal() bool {
	return s == Completed || s == Errored || s == Cancelled
}

// Stream adapts a relay reader to a [storage.Iterator], pulling one envelope per Next.
type Stream[T any] struct {
	reader *Reader[T]

	mu    sync.Mutex
	state State // GUARDED_BY(mu)
}

var _ storage.Iterator[any] = (*Stream[any])(nil)

// NewStream returns a stream over r. The stream owns r and releases it when it finishes.
func NewStream[T any](r *Reader[T]) *Stream[T] {
	return &Stream[T]{reader: r}
}

// State returns the current state of the stream.
func (s *Stream[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// finish moves a running stream to the terminal state to and releases the reader.
// It reports false if the stream had already finished.
func (s *Stream[T]) finish(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return false
	}
	s.state = to
	s.reader.Release()
	return true
}

// Next returns the next value. At the end of the relay it returns storage.ErrIteratorDone,
// after a producer failure it returns that failure, and if ctx ends it returns ctx.Err()
// and cancels the stream. Calling Next once the stream finished is an error wrapping ErrMisuse.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T

	if st := s.State(); st.Terminal() {
		return zero, fmt.Errorf("%w: next on a %s stream", ErrMisuse, st)
	}

	e, ok, err := s.reader.Receive(ctx)
	switch {
	case err != nil:
		if errors.Is(err, ErrMisuse) {
			return zero, err
		}
		s.finish(Cancelled)
		return zero, err
	case !ok:
		s.finish(Completed)
		return zero, storage.ErrIteratorDone
	case e.IsFailure():
		s.finish(Errored)
		return zero, e.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		// Stop raced with this Next.
		return zero, storage.ErrIteratorDone
	}
	s.state = Streaming
	return e.Value, nil
}

// Stop cancels the stream and releases the reader, which makes the producer's next
// send fail with ErrChannelClosed. It is safe to call more than once.
func (s *Stream[T]) Stop() {
	s.finish(Cancelled)
}

// All returns an iterator over the remaining values. A failure is yielded once as the
// last pair. The stream is stopped when the loop exits.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Stop()

		for {
			v, err := s.Next(ctx)
			if err != nil {
				if !errors.Is(err, storage.ErrIteratorDone) {
					var zero T
					yield(zero, err)
				}
				return
			}

			if !yield(v, nil) {
				return
			}
		}
	}
}
