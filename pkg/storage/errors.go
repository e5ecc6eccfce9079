package storage

import (
	"errors"
	"fmt"
)

var (
	// Creation errors

	// ErrCollision if an item already exists within the store.
	ErrCollision = errors.New("item already exists")

	// Write errors

	// ErrInvalidWriteInput if a record is missing its collection or key.
	ErrInvalidWriteInput = errors.New("invalid write input")
	// ErrExceededWriteBatchLimit if MaxRecordsPerWrite is exceeded
	ErrExceededWriteBatchLimit = errors.New("number of operations exceeded write batch limit")

	// Shared errors

	ErrCancelled = errors.New("request has been cancelled")
	ErrNotFound  = errors.New("not found")
)

func InvalidRecordError(r *Record) error {
	if r == nil {
		return fmt.Errorf("cannot write a nil record: %w", ErrInvalidWriteInput)
	}
	return fmt.Errorf("cannot write a record without collection and key: collection: '%s', key: '%s': %w", r.Collection, r.Key, ErrInvalidWriteInput)
}
