package storage

import (
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Record is a single row of a collection. Records are immutable once written.
type Record struct {
	Collection string
	Key        string
	Payload    *structpb.Struct
	Ulid       string
	InsertedAt time.Time
}

// ID returns the identity of the record within the datastore, "collection/key".
func (r *Record) ID() string {
	return r.Collection + "/" + r.Key
}

// Clone returns a deep copy of the record, so that stored records are never
// shared with callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	clone := *r
	if r.Payload != nil {
		clone.Payload = proto.Clone(r.Payload).(*structpb.Struct)
	}
	return &clone
}

// MarshalPayload encodes the payload into the wire form persisted by the SQL backends.
func (r *Record) MarshalPayload() ([]byte, error) {
	if r.Payload == nil {
		return nil, nil
	}
	return proto.Marshal(r.Payload)
}

// UnmarshalPayload decodes a payload previously produced by MarshalPayload.
func UnmarshalPayload(b []byte) (*structpb.Struct, error) {
	if b == nil {
		return nil, nil
	}

	var payload structpb.Struct
	if err := proto.Unmarshal(b, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
