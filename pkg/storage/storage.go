// Package storage contains storage interfaces and implementations
//
//go:generate mockgen -source storage.go -destination ../../internal/mocks/mock_storage.go -package mocks RecordBackend
package storage

import (
	"context"
)

const (
	DefaultMaxRecordsPerWrite = 100
	DefaultReadLimit          = 0
)

// ReadRecordsFilter narrows a read to the records of a single collection.
// An empty KeyPrefix matches every key in the collection.
type ReadRecordsFilter struct {
	Collection string
	KeyPrefix  string
}

// ReadRecordsOptions holds the optional knobs of a read.
type ReadRecordsOptions struct {
	// Limit caps the number of records yielded. Zero means no limit.
	Limit int
}

// Writes is a typesafe alias for Write arguments.
type Writes = []*Record

type RecordReader interface {
	// ReadRecords returns an iterator over the records of the given collection whose key
	// starts with the filter's KeyPrefix, ordered by ULID.
	//
	// The returned iterator is lazy: implementations backed by a database must not run the
	// query before the first call to Next, so that query failures surface from Next.
	//
	// The caller must be careful to close the RecordIterator, either by consuming the entire
	// iterator or by calling Stop.
	ReadRecords(ctx context.Context, filter ReadRecordsFilter, options ReadRecordsOptions) (RecordIterator, error)
}

type RecordWriter interface {
	// Write inserts the given records. Each record is assigned a new ULID and insertion time.
	// If there are more than MaxRecordsPerWrite, it must return ErrExceededWriteBatchLimit.
	// If a record with the same collection and key already exists, it must return ErrCollision.
	Write(ctx context.Context, records Writes) error

	// MaxRecordsPerWrite returns the maximum number of records allowed in one write operation.
	MaxRecordsPerWrite() int
}

// RecordBackend is the data store collaborator of the relay server.
type RecordBackend interface {
	RecordReader
	RecordWriter

	// IsReady reports whether the datastore is ready to accept traffic.
	IsReady(ctx context.Context) (ReadinessStatus, error)

	// Close closes the datastore and cleans up any residual resources.
	Close()
}

// ReadinessStatus represents the readiness status of the datastore.
type ReadinessStatus struct {
	// Message is a human-friendly status message for the current datastore status.
	Message string

	IsReady bool
}

// ValidateWrites checks the records of a write request before they reach a backend.
func ValidateWrites(records Writes, maxRecordsPerWrite int) error {
	if len(records) > maxRecordsPerWrite {
		return ErrExceededWriteBatchLimit
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.Collection == "" || r.Key == "" {
			return InvalidRecordError(r)
		}

		id := r.ID()
		if _, ok := seen[id]; ok {
			return ErrCollision
		}
		seen[id] = struct{}{}
	}

	return nil
}
