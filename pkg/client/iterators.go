package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/recordrelay/pkg/recordpb"
	"github.com/openfga/recordrelay/pkg/storage"
)

type streamRecv interface {
	Recv() (*structpb.Struct, error)
}

// streamRecordIterator adapts a ReadRecords stream to a storage.RecordIterator.
type streamRecordIterator struct {
	mu     sync.Mutex
	stream streamRecv
	err    error
	done   bool

	cancel     context.CancelFunc
	cancelOnce sync.Once
	stopped    atomic.Bool
}

var _ storage.RecordIterator = (*streamRecordIterator)(nil)

// newStreamRecordIterator takes ownership of cancel, which ends the stream on Stop.
func newStreamRecordIterator(stream streamRecv, cancel context.CancelFunc) *streamRecordIterator {
	return &streamRecordIterator{
		stream: stream,
		cancel: cancel,
	}
}

func (s *streamRecordIterator) Next(ctx context.Context) (*storage.Record, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return nil, storage.ErrIteratorDone
	}

	// Recv only unblocks when the stream's own context ends.
	stop := context.AfterFunc(ctx, s.cancelStream)
	msg, err := s.stream.Recv()
	stop()
	if err != nil {
		if ctx.Err() != nil {
			s.err = ctx.Err()
			s.finish()
			return nil, s.err
		}
		if errors.Is(err, io.EOF) || s.stopped.Load() {
			s.finish()
			return nil, storage.ErrIteratorDone
		}
		s.err = fromGRPCError(err)
		s.finish()
		return nil, s.err
	}

	record, err := recordpb.RecordFromStruct(msg)
	if err != nil {
		s.err = err
		s.finish()
		return nil, err
	}
	return record, nil
}

// Stop ends the stream. It does not wait for a Next blocked in Recv, which
// then reports storage.ErrIteratorDone.
func (s *streamRecordIterator) Stop() {
	s.stopped.Store(true)
	s.cancelStream()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
}

func (s *streamRecordIterator) cancelStream() {
	s.cancelOnce.Do(s.cancel)
}

func (s *streamRecordIterator) finish() {
	s.done = true
	s.cancelStream()
}
