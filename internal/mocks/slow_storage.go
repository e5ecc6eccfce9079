package mocks

import (
	"context"
	"time"

	"github.com/openfga/recordrelay/pkg/storage"
)

// slowRecordBackend is a proxy to the actual backend except every record read is delayed by readRecordDelay.
// This allows simulating streams that outlive the request deadline.
type slowRecordBackend struct {
	readRecordDelay time.Duration
	storage.RecordBackend
}

// NewMockSlowRecordBackend returns a wrapper of a backend whose record iterators wait readRecordDelay before each record.
func NewMockSlowRecordBackend(ds storage.RecordBackend, readRecordDelay time.Duration) storage.RecordBackend {
	return &slowRecordBackend{
		readRecordDelay: readRecordDelay,
		RecordBackend:   ds,
	}
}

func (m *slowRecordBackend) ReadRecords(ctx context.Context, filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions) (storage.RecordIterator, error) {
	iter, err := m.RecordBackend.ReadRecords(ctx, filter, options)
	if err != nil {
		return nil, err
	}
	return &slowIterator{delay: m.readRecordDelay, RecordIterator: iter}, nil
}

type slowIterator struct {
	delay time.Duration
	storage.RecordIterator
}

func (s *slowIterator) Next(ctx context.Context) (*storage.Record, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.RecordIterator.Next(ctx)
}
