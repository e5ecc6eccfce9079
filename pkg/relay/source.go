package relay

import (
	"context"
	"errors"

	"github.com/sourcegraph/conc/panics"

	"github.com/openfga/recordrelay/pkg/logger"
	"github.com/openfga/recordrelay/pkg/storage"
)

// Pump drains iter into w on the calling goroutine, in iteration order.
//
// storage.ErrIteratorDone ends the run and Pump returns nil. Any other error, or a
// panic raised by iter, is sent once through w.Fail as a *SourceError and returned.
// If the reader is released, Pump stops pulling from iter and returns ErrChannelClosed.
// iter is stopped and w closed on every path.
func Pump[T any](ctx context.Context, iter storage.Iterator[T], w *Writer[T]) error {
	defer func() {
		_ = w.Close()
	}()
	defer iter.Stop()

	for {
		var (
			v   T
			err error
		)
		if recovered := panics.Try(func() { v, err = iter.Next(ctx) }); recovered != nil {
			err = recovered.AsError()
		}

		if err != nil {
			if errors.Is(err, storage.ErrIteratorDone) {
				return nil
			}

			srcErr := &SourceError{Err: err}
			if failErr := w.Fail(srcErr); failErr != nil {
				return failErr
			}
			return srcErr
		}

		if err := w.Send(v); err != nil {
			return err
		}
	}
}

// Go opens a relay of the given capacity, pumps iter into it on a new goroutine
// and returns the stream reading from it. iter is stopped if the relay cannot be opened.
func Go[T any](ctx context.Context, iter storage.Iterator[T], capacity int, opts ...Option) (*Stream[T], error) {
	cfg := newConfig(opts)

	w, r, err := open[T](capacity, cfg)
	if err != nil {
		iter.Stop()
		return nil, err
	}

	go func() {
		err := Pump(ctx, iter, w)
		switch {
		case err == nil:
			cfg.logger.DebugWithContext(ctx, "relay source drained")
		case errors.Is(err, ErrChannelClosed):
			cfg.logger.DebugWithContext(ctx, "relay reader released before the source was drained")
		case storage.IterIsDoneOrCancelled(err):
			cfg.logger.DebugWithContext(ctx, "relay source cancelled", logger.Error(err))
		default:
			cfg.logger.ErrorWithContext(ctx, "relay source failed", logger.Error(err))
		}
	}()

	return NewStream(r), nil
}
