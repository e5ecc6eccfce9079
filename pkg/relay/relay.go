// Package relay moves the values of a producer goroutine to a single consumer through a
// bounded buffer, carrying the producer's terminal failure and the consumer's cancellation
// across the goroutine boundary.
package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openfga/recordrelay/internal/build"
	"github.com/openfga/recordrelay/pkg/logger"
)

// DefaultCapacity is the buffer size used when none is configured.
const DefaultCapacity = 16

var sendBlockedHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace:                       build.ProjectName,
	Name:                            "relay_send_blocked_duration_ms",
	Help:                            "Time (in ms) a producer spent blocked on a full relay buffer.",
	Buckets:                         []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
	NativeHistogramBucketFactor:     1.1,
	NativeHistogramMaxBucketNumber:  100,
	NativeHistogramMinResetDuration: time.Hour,
})

// durationMs converts d to fractional milliseconds.
func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Envelope is the unit carried by a relay: either an item (Err is nil) or the
// terminal failure of the producer.
type Envelope[T any] struct {
	Value T
	Err   error
}

// Item wraps a produced value.
func Item[T any](v T) Envelope[T] {
	return Envelope[T]{Value: v}
}

// Failure wraps a terminal producer error.
func Failure[T any](err error) Envelope[T] {
	return Envelope[T]{Err: err}
}

// IsFailure reports whether e carries an error rather than a value.
func (e Envelope[T]) IsFailure() bool {
	return e.Err != nil
}

type config struct {
	multipleWriters bool
	logger          logger.Logger
}

// Option configures a relay.
type Option func(*config)

// WithMultipleWriters allows Writer.Duplicate. The relay then closes once every
// writer handle has been closed.
func WithMultipleWriters() Option {
	return func(c *config) {
		c.multipleWriters = true
	}
}

// WithLogger sets the logger used by Go to report how the producer finished.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{logger: logger.NewNoopLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

type relay[T any] struct {
	ch chan Envelope[T]

	// done is closed when the reader is released.
	done        chan struct{}
	releaseOnce sync.Once

	// failed is set by the first Fail; later sends are refused.
	failed atomic.Bool

	multipleWriters bool

	mu      sync.Mutex
	writers int // GUARDED_BY(mu)
}

// Open creates a relay buffering at most capacity envelopes and returns its writer and
// reader handles.
func Open[T any](capacity int, opts ...Option) (*Writer[T], *Reader[T], error) {
	return open[T](capacity, newConfig(opts))
}

func open[T any](capacity int, cfg *config) (*Writer[T], *Reader[T], error) {
	if capacity <= 0 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	r := &relay[T]{
		ch:              make(chan Envelope[T], capacity),
		done:            make(chan struct{}),
		multipleWriters: cfg.multipleWriters,
		writers:         1,
	}

	return &Writer[T]{relay: r}, &Reader[T]{relay: r}, nil
}

func (r *relay[T]) released() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// deliver blocks until e is buffered or the reader is released.
func (r *relay[T]) deliver(e Envelope[T]) error {
	if r.released() {
		return ErrChannelClosed
	}

	select {
	case r.ch <- e:
		return nil
	default:
	}

	start := time.Now()
	select {
	case r.ch <- e:
		sendBlockedHistogram.Observe(durationMs(time.Since(start)))
		return nil
	case <-r.done:
		return ErrChannelClosed
	}
}

func (r *relay[T]) release() {
	r.releaseOnce.Do(func() {
		close(r.done)
	})
}

func (r *relay[T]) closeWriter() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writers--
	if r.writers == 0 {
		close(r.ch)
	}
}

// Writer is the producer side of a relay.
type Writer[T any] struct {
	relay *relay[T]

	mu     sync.Mutex
	closed bool // GUARDED_BY(mu)
}

// Send buffers v, blocking while the buffer is full. It returns ErrChannelClosed once the
// reader has been released or a failure has been sent; v is then not delivered.
func (w *Writer[T]) Send(v T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("%w: send on a closed writer", ErrMisuse)
	}

	if w.relay.failed.Load() {
		return ErrChannelClosed
	}

	return w.relay.deliver(Item(v))
}

// Fail sends err as the terminal failure of the relay and closes the writer. Only the
// first failure of a relay is delivered; later ones return ErrChannelClosed.
func (w *Writer[T]) Fail(err error) error {
	if err == nil {
		return fmt.Errorf("%w: fail with a nil error", ErrMisuse)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("%w: fail on a closed writer", ErrMisuse)
	}

	var sendErr error
	if w.relay.failed.CompareAndSwap(false, true) {
		sendErr = w.relay.deliver(Failure[T](err))
	} else {
		sendErr = ErrChannelClosed
	}
	w.mu.Unlock()

	_ = w.Close()
	return sendErr
}

// Close closes this writer handle. It is safe to call more than once. The relay itself
// closes when its last writer closes; envelopes already buffered stay readable.
func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.relay.closeWriter()
	return nil
}

// Duplicate returns a new, independently closed writer handle on the same relay.
// The relay must have been opened with WithMultipleWriters.
func (w *Writer[T]) Duplicate() (*Writer[T], error) {
	if !w.relay.multipleWriters {
		return nil, fmt.Errorf("%w: relay does not allow multiple writers", ErrMisuse)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("%w: duplicate of a closed writer", ErrMisuse)
	}

	w.relay.mu.Lock()
	w.relay.writers++
	w.relay.mu.Unlock()

	return &Writer[T]{relay: w.relay}, nil
}

// Reader is the single consumer side of a relay. It cannot be duplicated.
type Reader[T any] struct {
	relay     *relay[T]
	receiving atomic.Bool
}

// Receive returns the next envelope in send order. ok is false once the relay is
// closed and drained, or the reader has been released; every later call then reports
// the same. A failure envelope terminates the reader. If ctx ends first, ctx.Err()
// is returned and the reader stays usable.
func (r *Reader[T]) Receive(ctx context.Context) (Envelope[T], bool, error) {
	var zero Envelope[T]

	if !r.receiving.CompareAndSwap(false, true) {
		return zero, false, fmt.Errorf("%w: concurrent receive", ErrMisuse)
	}
	defer r.receiving.Store(false)

	if r.relay.released() {
		return zero, false, nil
	}

	if err := ctx.Err(); err != nil {
		return zero, false, err
	}

	select {
	case e, ok := <-r.relay.ch:
		if !ok {
			return zero, false, nil
		}
		if e.IsFailure() {
			r.relay.release()
		}
		return e, true, nil
	case <-r.relay.done:
		return zero, false, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// Release drops the reader. Blocked and future sends return ErrChannelClosed.
// It is safe to call more than once.
func (r *Reader[T]) Release() {
	r.relay.release()
}

// Len returns the number of buffered envelopes.
func (r *Reader[T]) Len() int {
	return len(r.relay.ch)
}

// Cap returns the capacity of the relay.
func (r *Reader[T]) Cap() int {
	return cap(r.relay.ch)
}
