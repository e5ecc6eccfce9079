//go:generate mockgen -source iterators.go -destination ../../internal/mocks/mock_iterators.go -package mocks Iterator

package storage

import (
	"context"
	"errors"
	"sync"
)

var ErrIteratorDone = errors.New("iterator done")

type Iterator[T any] interface {
	// Next will return the next available item or ErrIteratorDone if no more items are available.
	// Any other error is terminal.
	Next(ctx context.Context) (T, error)
	// Stop terminates iteration over the underlying iterator. It must be safe to call more than once.
	Stop()
}

// RecordIterator is an iterator for Records. It is closed by explicitly calling Stop() or by calling Next() until it
// returns an ErrIteratorDone error.
type RecordIterator = Iterator[*Record]

// IterIsDoneOrCancelled reports whether err signals the normal end of an iteration
// or the cancellation of the caller's context.
func IterIsDoneOrCancelled(err error) bool {
	return errors.Is(err, ErrIteratorDone) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type staticIterator[T any] struct {
	items []T
	mu    sync.Mutex
}

var _ RecordIterator = (*staticIterator[*Record])(nil)

func (s *staticIterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return zero, ErrIteratorDone
	}

	next := s.items[0]
	s.items = s.items[1:]
	return next, nil
}

func (s *staticIterator[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
}

// NewStaticIterator returns an Iterator that iterates over the provided slice.
func NewStaticIterator[T any](items []T) Iterator[T] {
	return &staticIterator[T]{items: items}
}

// NewStaticRecordIterator returns a RecordIterator that iterates over the provided slice.
func NewStaticRecordIterator(records []*Record) RecordIterator {
	return NewStaticIterator(records)
}

type errorIterator[T any] struct {
	err error
}

// NewErrorIterator returns an Iterator whose every call to Next fails with err.
func NewErrorIterator[T any](err error) Iterator[T] {
	return &errorIterator[T]{err: err}
}

func (e *errorIterator[T]) Next(context.Context) (T, error) {
	var zero T
	return zero, e.err
}

func (e *errorIterator[T]) Stop() {}

type limitIterator[T any] struct {
	iter      Iterator[T]
	remaining int
}

// NewLimitIterator yields at most limit values from iter and stops iter once the limit is reached.
// A limit of zero or less returns iter unchanged.
func NewLimitIterator[T any](iter Iterator[T], limit int) Iterator[T] {
	if limit <= 0 {
		return iter
	}
	return &limitIterator[T]{iter: iter, remaining: limit}
}

func (l *limitIterator[T]) Next(ctx context.Context) (T, error) {
	if l.remaining <= 0 {
		var zero T
		l.iter.Stop()
		return zero, ErrIteratorDone
	}

	v, err := l.iter.Next(ctx)
	if err != nil {
		return v, err
	}
	l.remaining--
	return v, nil
}

func (l *limitIterator[T]) Stop() {
	l.iter.Stop()
}

// ToSlice consumes iter until it is done and stops it. The first terminal error
// is returned together with the values read so far.
func ToSlice[T any](ctx context.Context, iter Iterator[T]) ([]T, error) {
	defer iter.Stop()

	var res []T
	for {
		v, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return res, nil
			}
			return res, err
		}
		res = append(res, v)
	}
}
