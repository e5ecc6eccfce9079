package client

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openfga/recordrelay/pkg/storage"
)

// fromGRPCError converts a gRPC status error back to a storage error.
func fromGRPCError(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	msg := st.Message()
	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.AlreadyExists:
		return storage.ErrCollision
	case codes.InvalidArgument:
		if strings.Contains(msg, storage.ErrExceededWriteBatchLimit.Error()) {
			return storage.ErrExceededWriteBatchLimit
		}
		if strings.Contains(msg, storage.ErrInvalidWriteInput.Error()) {
			return fmt.Errorf("%w: %s", storage.ErrInvalidWriteInput, msg)
		}
		return fmt.Errorf("invalid argument: %s", msg)
	case codes.Canceled:
		return fmt.Errorf("%w: %s", storage.ErrCancelled, msg)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, msg)
	default:
		return fmt.Errorf("grpc error (code=%s): %s", st.Code(), msg)
	}
}
