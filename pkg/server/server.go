// Package server implements the record service: records are read from the backend
// on a producer goroutine and relayed to the gRPC stream through a bounded buffer.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/recordrelay/internal/build"
	"github.com/openfga/recordrelay/pkg/logger"
	"github.com/openfga/recordrelay/pkg/recordpb"
	"github.com/openfga/recordrelay/pkg/relay"
	"github.com/openfga/recordrelay/pkg/storage"
	"github.com/openfga/recordrelay/pkg/telemetry"
)

var tracer = otel.Tracer("recordrelay/pkg/server")

const (
	outcomeCompleted = "completed"
	outcomeErrored   = "errored"
	outcomeCancelled = "cancelled"
	outcomeAborted   = "aborted"
)

var (
	streamedRecordsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "streamed_records_total",
		Help:      "The total number of records sent on ReadRecords streams.",
	})

	streamOutcomesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "stream_outcomes_total",
		Help:      "The total number of ReadRecords streams by how they ended.",
	}, []string{"outcome"})
)

// Server serves a storage.RecordBackend over gRPC.
type Server struct {
	recordpb.UnimplementedRecordServiceServer

	backend  storage.RecordBackend
	capacity int
	logger   logger.Logger
}

var _ recordpb.RecordServiceServer = (*Server)(nil)

type Option func(s *Server)

// WithRelayCapacity sets the number of records buffered between the backend and a stream.
func WithRelayCapacity(capacity int) Option {
	return func(s *Server) {
		s.capacity = capacity
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New returns a Server over backend. The capacity is checked by Verify, not here.
func New(backend storage.RecordBackend, opts ...Option) *Server {
	s := &Server{
		backend:  backend,
		capacity: relay.DefaultCapacity,
		logger:   logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Verify rejects a configuration the server cannot stream with.
func (s *Server) Verify() error {
	if s.capacity <= 0 {
		return fmt.Errorf("%w: got %d", relay.ErrInvalidCapacity, s.capacity)
	}
	return nil
}

// ReadRecords see recordpb.RecordServiceServer.
func (s *Server) ReadRecords(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	filter, options, err := recordpb.ParseReadRecordsRequest(req)
	if err != nil {
		return toGRPCError(err)
	}

	return s.StreamRecords(stream.Context(), filter, options, stream.Send)
}

// StreamRecords reads the matching records on a producer goroutine and calls send once per
// record, in order. A read failure ends the stream with the failure's status after the
// records read before it. A send failure stops the producer and is returned as is.
func (s *Server) StreamRecords(ctx context.Context, filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions, send func(*structpb.Struct) error) error {
	ctx, span := tracer.Start(ctx, "StreamRecords", trace.WithAttributes(
		attribute.String("collection", filter.Collection),
		attribute.String("key_prefix", filter.KeyPrefix),
		attribute.Int("capacity", s.capacity),
	))
	defer span.End()

	iter, err := s.backend.ReadRecords(ctx, filter, options)
	if err != nil {
		telemetry.TraceError(span, err)
		streamOutcomesCounter.WithLabelValues(outcomeErrored).Inc()
		return toGRPCError(err)
	}

	records, err := relay.Go(ctx, iter, s.capacity, relay.WithLogger(s.logger))
	if err != nil {
		telemetry.TraceError(span, err)
		streamOutcomesCounter.WithLabelValues(outcomeErrored).Inc()
		return toGRPCError(err)
	}
	defer records.Stop()

	var sent int
	for {
		record, err := records.Next(ctx)
		if err != nil {
			span.SetAttributes(attribute.Int("sent", sent))
			return s.finish(ctx, span, err)
		}

		if err := send(recordpb.RecordToStruct(record)); err != nil {
			records.Stop()
			span.SetAttributes(attribute.Int("sent", sent))
			streamOutcomesCounter.WithLabelValues(outcomeAborted).Inc()
			s.logger.DebugWithContext(ctx, "stream send failed", logger.Error(err), logger.Int("sent", sent))
			return err
		}

		sent++
		streamedRecordsCounter.Inc()
	}
}

func (s *Server) finish(ctx context.Context, span trace.Span, err error) error {
	switch {
	case errors.Is(err, storage.ErrIteratorDone):
		streamOutcomesCounter.WithLabelValues(outcomeCompleted).Inc()
		return nil
	case errors.Is(err, relay.ErrMisuse):
		telemetry.TraceError(span, err)
		streamOutcomesCounter.WithLabelValues(outcomeErrored).Inc()
		s.logger.ErrorWithContext(ctx, "relay misuse while streaming records", logger.Error(err))
		return status.Error(codes.Internal, err.Error())
	case storage.IterIsDoneOrCancelled(err):
		streamOutcomesCounter.WithLabelValues(outcomeCancelled).Inc()
		return toGRPCError(err)
	default:
		telemetry.TraceError(span, err)
		streamOutcomesCounter.WithLabelValues(outcomeErrored).Inc()
		return toGRPCError(err)
	}
}

// WriteRecords see recordpb.RecordServiceServer.
func (s *Server) WriteRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := tracer.Start(ctx, "WriteRecords")
	defer span.End()

	records, err := recordpb.ParseWriteRecordsRequest(req)
	if err != nil {
		return nil, toGRPCError(err)
	}
	span.SetAttributes(attribute.Int("records", len(records)))

	if err := s.backend.Write(ctx, records); err != nil {
		telemetry.TraceError(span, err)
		return nil, toGRPCError(err)
	}

	return recordpb.NewWriteRecordsResponse(len(records)), nil
}

// IsReady reports whether the backend accepts traffic.
func (s *Server) IsReady(ctx context.Context) (bool, error) {
	readiness, err := s.backend.IsReady(ctx)
	if err != nil {
		return false, err
	}

	if !readiness.IsReady {
		s.logger.WarnWithContext(ctx, "datastore is not ready", logger.String("message", readiness.Message))
	}
	return readiness.IsReady, nil
}
