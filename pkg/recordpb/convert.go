package recordpb

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/recordrelay/pkg/storage"
)

// ErrMalformedMessage is returned when a message is missing a field or holds a field of the wrong kind.
var ErrMalformedMessage = errors.New("malformed message")

const (
	fieldCollection = "collection"
	fieldKeyPrefix  = "key_prefix"
	fieldLimit      = "limit"
	fieldKey        = "key"
	fieldPayload    = "payload"
	fieldUlid       = "ulid"
	fieldInsertedAt = "inserted_at"
	fieldRecords    = "records"
	fieldWritten    = "written"
)

func malformed(field, format string, args ...any) error {
	return fmt.Errorf("%w: field '%s' %s", ErrMalformedMessage, field, fmt.Sprintf(format, args...))
}

// NewReadRecordsRequest builds the request message of ReadRecords.
func NewReadRecordsRequest(filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldCollection: structpb.NewStringValue(filter.Collection),
	}
	if filter.KeyPrefix != "" {
		fields[fieldKeyPrefix] = structpb.NewStringValue(filter.KeyPrefix)
	}
	if options.Limit > 0 {
		fields[fieldLimit] = structpb.NewNumberValue(float64(options.Limit))
	}
	return &structpb.Struct{Fields: fields}
}

// ParseReadRecordsRequest is the inverse of NewReadRecordsRequest. The collection is required.
func ParseReadRecordsRequest(req *structpb.Struct) (storage.ReadRecordsFilter, storage.ReadRecordsOptions, error) {
	var (
		filter  storage.ReadRecordsFilter
		options storage.ReadRecordsOptions
		err     error
	)

	if filter.Collection, err = requiredString(req, fieldCollection); err != nil {
		return filter, options, err
	}
	if filter.KeyPrefix, err = optionalString(req, fieldKeyPrefix); err != nil {
		return filter, options, err
	}

	v, ok := req.GetFields()[fieldLimit]
	if !ok {
		return filter, options, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return filter, options, malformed(fieldLimit, "must be a number")
	}
	if n.NumberValue < 0 || n.NumberValue != math.Trunc(n.NumberValue) || n.NumberValue > math.MaxInt32 {
		return filter, options, malformed(fieldLimit, "must be a non-negative integer, got %v", n.NumberValue)
	}
	options.Limit = int(n.NumberValue)

	return filter, options, nil
}

// RecordToStruct encodes a stored record as a ReadRecords response message.
func RecordToStruct(r *storage.Record) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldCollection: structpb.NewStringValue(r.Collection),
		fieldKey:        structpb.NewStringValue(r.Key),
	}
	if r.Payload != nil {
		fields[fieldPayload] = structpb.NewStructValue(r.Payload)
	}
	if r.Ulid != "" {
		fields[fieldUlid] = structpb.NewStringValue(r.Ulid)
	}
	if !r.InsertedAt.IsZero() {
		fields[fieldInsertedAt] = structpb.NewStringValue(r.InsertedAt.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}

// RecordFromStruct decodes a message built by RecordToStruct.
func RecordFromStruct(s *structpb.Struct) (*storage.Record, error) {
	var (
		r   storage.Record
		err error
	)

	if r.Collection, err = requiredString(s, fieldCollection); err != nil {
		return nil, err
	}
	if r.Key, err = requiredString(s, fieldKey); err != nil {
		return nil, err
	}
	if r.Ulid, err = optionalString(s, fieldUlid); err != nil {
		return nil, err
	}

	if v, ok := s.GetFields()[fieldPayload]; ok {
		p, ok := v.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return nil, malformed(fieldPayload, "must be an object")
		}
		r.Payload = p.StructValue
	}

	insertedAt, err := optionalString(s, fieldInsertedAt)
	if err != nil {
		return nil, err
	}
	if insertedAt != "" {
		r.InsertedAt, err = time.Parse(time.RFC3339Nano, insertedAt)
		if err != nil {
			return nil, malformed(fieldInsertedAt, "is not a RFC 3339 timestamp: %v", err)
		}
	}

	return &r, nil
}

// NewWriteRecordsRequest builds the request message of WriteRecords.
func NewWriteRecordsRequest(records storage.Writes) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(records))
	for _, r := range records {
		values = append(values, structpb.NewStructValue(RecordToStruct(r)))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldRecords: structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// ParseWriteRecordsRequest decodes a message built by NewWriteRecordsRequest.
// Server assigned fields of the records are ignored.
func ParseWriteRecordsRequest(req *structpb.Struct) (storage.Writes, error) {
	v, ok := req.GetFields()[fieldRecords]
	if !ok {
		return nil, malformed(fieldRecords, "is required")
	}
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, malformed(fieldRecords, "must be a list")
	}

	records := make(storage.Writes, 0, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		s, ok := item.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return nil, malformed(fieldRecords, "item %d must be an object", i)
		}
		r, err := RecordFromStruct(s.StructValue)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		r.Ulid = ""
		r.InsertedAt = time.Time{}
		records = append(records, r)
	}
	return records, nil
}

func NewWriteRecordsResponse(written int) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldWritten: structpb.NewNumberValue(float64(written)),
	}}
}

// ParseWriteRecordsResponse returns the number of records the server wrote.
func ParseWriteRecordsResponse(resp *structpb.Struct) (int, error) {
	v, ok := resp.GetFields()[fieldWritten]
	if !ok {
		return 0, malformed(fieldWritten, "is required")
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, malformed(fieldWritten, "must be a number")
	}
	return int(n.NumberValue), nil
}

func requiredString(s *structpb.Struct, field string) (string, error) {
	v, ok := s.GetFields()[field]
	if !ok {
		return "", malformed(field, "is required")
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", malformed(field, "must be a string")
	}
	if str.StringValue == "" {
		return "", malformed(field, "must not be empty")
	}
	return str.StringValue, nil
}

func optionalString(s *structpb.Struct, field string) (string, error) {
	v, ok := s.GetFields()[field]
	if !ok {
		return "", nil
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", malformed(field, "must be a string")
	}
	return str.StringValue, nil
}
