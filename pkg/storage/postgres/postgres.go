package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfga/recordrelay/pkg/logger"
	"github.com/openfga/recordrelay/pkg/storage"
	"github.com/openfga/recordrelay/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("recordrelay/pkg/storage/postgres")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postgres."+name)
}

// Datastore provides a PostgreSQL based implementation of [storage.RecordBackend].
// Reads run on the pgx pool directly, writes and readiness checks go through a
// database/sql handle over the same pool.
type Datastore struct {
	pool                    *pgxpool.Pool
	db                      *sql.DB
	stbl                    sq.StatementBuilderType
	dbInfo                  *sqlcommon.DBInfo
	logger                  logger.Logger
	dbStatsCollector        prometheus.Collector
	maxRecordsPerWriteField int
	versionReady            bool
}

// Ensures that Datastore implements the RecordBackend interface.
var _ storage.RecordBackend = (*Datastore)(nil)

// PrepareDSN applies the configured username and password on top of the ones in uri.
func PrepareDSN(uri, username, password string) (string, error) {
	if username == "" && password == "" {
		return uri, nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse postgres connection uri: %w", err)
	}

	if username == "" && parsed.User != nil {
		username = parsed.User.Username()
	}

	switch {
	case password != "":
		parsed.User = url.UserPassword(username, password)
	case parsed.User != nil:
		if p, ok := parsed.User.Password(); ok {
			parsed.User = url.UserPassword(username, p)
		} else {
			parsed.User = url.User(username)
		}
	default:
		parsed.User = url.User(username)
	}

	return parsed.String(), nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareDSN(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("parse postgres connection uri: %w", err)
	}
	if cfg.MaxOpenConns != 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 0 {
		poolCfg.MinIdleConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime != 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime != 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres connection: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)

	collector, err := configureDB(db, cfg)
	if err != nil {
		_ = db.Close()
		pool.Close()
		return nil, fmt.Errorf("configure db: %w", err)
	}

	stbl := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).RunWith(db)

	return &Datastore{
		pool:                    pool,
		db:                      db,
		stbl:                    stbl,
		dbInfo:                  sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "postgres"),
		logger:                  cfg.Logger,
		dbStatsCollector:        collector,
		maxRecordsPerWriteField: cfg.MaxRecordsPerWriteField,
	}, nil
}

// configureDB waits for the database to answer and registers its stats collector.
func configureDB(db *sql.DB, cfg *sqlcommon.Config) (prometheus.Collector, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err := backoff.Retry(func() error {
		err := db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for database", logger.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "recordrelay")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return collector, nil
}

// Close see [storage.RecordBackend].Close.
func (s *Datastore) Close() {
	if s.dbStatsCollector != nil {
		prometheus.Unregister(s.dbStatsCollector)
	}
	_ = s.db.Close()
	s.pool.Close()
}

// ReadRecords see [storage.RecordReader].ReadRecords.
func (s *Datastore) ReadRecords(ctx context.Context, filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions) (storage.RecordIterator, error) {
	_, span := startTrace(ctx, "ReadRecords")
	defer span.End()

	sb := sqlcommon.SelectRecords(sq.StatementBuilder.PlaceholderFormat(sq.Dollar), filter, options)
	return sqlcommon.NewSQLRecordIterator(pgxpoolQuery(s.pool, sb), HandleSQLError), nil
}

// Write see [storage.RecordWriter].Write.
func (s *Datastore) Write(ctx context.Context, records storage.Writes) error {
	ctx, span := startTrace(ctx, "Write")
	defer span.End()

	if err := storage.ValidateWrites(records, s.maxRecordsPerWriteField); err != nil {
		return err
	}

	return sqlcommon.Write(ctx, s.dbInfo, records, time.Now().UTC())
}

// MaxRecordsPerWrite see [storage.RecordWriter].MaxRecordsPerWrite.
func (s *Datastore) MaxRecordsPerWrite() int {
	return s.maxRecordsPerWriteField
}

// IsReady see [sqlcommon.IsReady].
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, s.versionReady, s.db)
	if err != nil {
		return versionReady, err
	}
	s.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return storage.ErrCollision
	}

	if strings.Contains(err.Error(), "duplicate key value") {
		return storage.ErrCollision
	}

	return sqlcommon.HandleSQLError(err)
}
