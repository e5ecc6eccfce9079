// Package client is a Go client of the record service.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthv1pb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/openfga/recordrelay/pkg/logger"
	"github.com/openfga/recordrelay/pkg/recordpb"
	"github.com/openfga/recordrelay/pkg/storage"
)

// Client reads and writes records through a remote recordrelay server.
type Client struct {
	conn   *grpc.ClientConn
	client recordpb.RecordServiceClient
	health healthv1pb.HealthClient
	logger logger.Logger
}

// Config configures the client.
type Config struct {
	// Addr is the address of the recordrelay server (e.g., "localhost:8081").
	Addr string

	// KeepaliveTime is the duration after which a keepalive ping is sent if no activity.
	// Zero value means keepalive is disabled.
	KeepaliveTime time.Duration

	// KeepaliveTimeout is the duration to wait for a keepalive ping response.
	// Only used when KeepaliveTime > 0.
	KeepaliveTimeout time.Duration

	// EnableTracing propagates the caller's trace to the server.
	EnableTracing bool

	// DialOptions are appended to the options New builds.
	DialOptions []grpc.DialOption

	Logger logger.Logger
}

func New(config Config) (*Client, error) {
	grpcOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	if config.KeepaliveTime > 0 {
		grpcOpts = append(grpcOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    config.KeepaliveTime,
			Timeout: config.KeepaliveTimeout,
		}))
	}

	if config.EnableTracing {
		grpcOpts = append(grpcOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
	}

	grpcOpts = append(grpcOpts, config.DialOptions...)

	conn, err := grpc.NewClient(config.Addr, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create a client for %s: %w", config.Addr, err)
	}

	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &Client{
		conn:   conn,
		client: recordpb.NewRecordServiceClient(conn),
		health: healthv1pb.NewHealthClient(conn),
		logger: l,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// WaitReady polls the server health until it reports SERVING or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		resp, err := c.health.Check(ctx, &healthv1pb.HealthCheckRequest{Service: recordpb.RecordService_ServiceName})
		if err == nil && resp.GetStatus() != healthv1pb.HealthCheckResponse_SERVING {
			err = fmt.Errorf("server is %s", resp.GetStatus())
		}
		if err != nil {
			c.logger.Debug("waiting for the server to be ready", logger.Int("attempt", attempt), logger.Error(err))
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

// ReadRecords streams the matching records. The iterator must be stopped or drained.
func (c *Client) ReadRecords(ctx context.Context, filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions) (storage.RecordIterator, error) {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := c.client.ReadRecords(ctx, recordpb.NewReadRecordsRequest(filter, options))
	if err != nil {
		cancel()
		return nil, fromGRPCError(err)
	}

	return newStreamRecordIterator(stream, cancel), nil
}

// ListRecords drains ReadRecords into a slice.
func (c *Client) ListRecords(ctx context.Context, filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions) ([]*storage.Record, error) {
	iter, err := c.ReadRecords(ctx, filter, options)
	if err != nil {
		return nil, err
	}
	return storage.ToSlice(ctx, iter)
}

// WriteRecords writes records in one batch and returns how many were written.
func (c *Client) WriteRecords(ctx context.Context, records storage.Writes) (int, error) {
	if len(records) == 0 {
		return 0, errors.New("no records to write")
	}

	resp, err := c.client.WriteRecords(ctx, recordpb.NewWriteRecordsRequest(records))
	if err != nil {
		return 0, fromGRPCError(err)
	}
	return recordpb.ParseWriteRecordsResponse(resp)
}
