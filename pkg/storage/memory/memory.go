package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/openfga/recordrelay/pkg/storage"
)

var tracer = otel.Tracer("recordrelay/pkg/storage/memory")

// recordIterator is lazy: the matching records are only collected on the first call to Next.
type recordIterator struct {
	ds      *MemoryBackend
	filter  storage.ReadRecordsFilter
	records []*storage.Record
	fetched bool
	stopped bool
	mu      sync.Mutex
}

var _ storage.RecordIterator = (*recordIterator)(nil)

// Next see [storage.Iterator].Next.
func (s *recordIterator) Next(ctx context.Context) (*storage.Record, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, storage.ErrIteratorDone
	}

	if !s.fetched {
		s.records = s.ds.snapshot(s.filter)
		s.fetched = true
	}

	if len(s.records) == 0 {
		return nil, storage.ErrIteratorDone
	}

	next, rest := s.records[0], s.records[1:]
	s.records = rest
	return next.Clone(), nil
}

// Stop see [storage.Iterator].Stop.
func (s *recordIterator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.records = nil
}

type StorageOption func(dataStore *MemoryBackend)

const defaultMaxRecordsPerWrite = storage.DefaultMaxRecordsPerWrite

// MemoryBackend provides an ephemeral storage.RecordBackend.
// Records of each collection are appended in ULID order since ulid.DefaultEntropy is monotonic.
type MemoryBackend struct {
	mu                 sync.Mutex
	maxRecordsPerWrite int

	// collection => records ordered by ulid
	records map[string][]*storage.Record
	// collection/key => present
	keys map[string]struct{}
}

var _ storage.RecordBackend = (*MemoryBackend)(nil)

// New creates a new empty in-memory backend.
func New(opts ...StorageOption) *MemoryBackend {
	ds := &MemoryBackend{
		maxRecordsPerWrite: defaultMaxRecordsPerWrite,
		records:            make(map[string][]*storage.Record),
		keys:               make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(ds)
	}

	return ds
}

// WithMaxRecordsPerWrite returns a [StorageOption] that sets the maximum number of records allowed in a single write operation.
func WithMaxRecordsPerWrite(n int) StorageOption {
	return func(ds *MemoryBackend) { ds.maxRecordsPerWrite = n }
}

// Close does not do anything for MemoryBackend.
func (s *MemoryBackend) Close() {}

// ReadRecords see [storage.RecordReader].ReadRecords.
func (s *MemoryBackend) ReadRecords(ctx context.Context, filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions) (storage.RecordIterator, error) {
	_, span := tracer.Start(ctx, "memory.ReadRecords")
	defer span.End()

	iter := &recordIterator{ds: s, filter: filter}
	return storage.NewLimitIterator[*storage.Record](iter, options.Limit), nil
}

func (s *MemoryBackend) snapshot(filter storage.ReadRecordsFilter) []*storage.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []*storage.Record
	for _, r := range s.records[filter.Collection] {
		if strings.HasPrefix(r.Key, filter.KeyPrefix) {
			res = append(res, r)
		}
	}
	return res
}

// Write see [storage.RecordWriter].Write.
func (s *MemoryBackend) Write(ctx context.Context, records storage.Writes) error {
	_, span := tracer.Start(ctx, "memory.Write")
	defer span.End()

	if err := storage.ValidateWrites(records, s.maxRecordsPerWrite); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if _, ok := s.keys[r.ID()]; ok {
			return storage.ErrCollision
		}
	}

	now := time.Now().UTC()
	for _, r := range records {
		stored := r.Clone()
		stored.Ulid = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
		stored.InsertedAt = now

		s.records[r.Collection] = append(s.records[r.Collection], stored)
		s.keys[r.ID()] = struct{}{}
	}

	return nil
}

// MaxRecordsPerWrite see [storage.RecordWriter].MaxRecordsPerWrite.
func (s *MemoryBackend) MaxRecordsPerWrite() int {
	return s.maxRecordsPerWrite
}

// IsReady see [storage.RecordBackend].IsReady.
func (s *MemoryBackend) IsReady(context.Context) (storage.ReadinessStatus, error) {
	return storage.ReadinessStatus{IsReady: true}, nil
}
