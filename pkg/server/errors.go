package server

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openfga/recordrelay/pkg/recordpb"
	"github.com/openfga/recordrelay/pkg/relay"
	"github.com/openfga/recordrelay/pkg/storage"
)

// toGRPCError converts a storage or relay error to a gRPC status error.
// Errors that already carry a status are returned unchanged.
func toGRPCError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, storage.ErrCancelled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, recordpb.ErrMalformedMessage):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrCollision):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, storage.ErrInvalidWriteInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrExceededWriteBatchLimit):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, relay.ErrInvalidCapacity):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("storage error: %v", err))
	}
}
