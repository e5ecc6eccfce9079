package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/openfga/recordrelay/pkg/logger"
	"github.com/openfga/recordrelay/pkg/storage"
	"github.com/openfga/recordrelay/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("recordrelay/pkg/storage/mysql")

const errDuplicateEntry = 1062

type MySQL struct {
	stbl                    sq.StatementBuilderType
	db                      *sql.DB
	dbInfo                  *sqlcommon.DBInfo
	logger                  logger.Logger
	dbStatsCollector        prometheus.Collector
	maxRecordsPerWriteField int
	versionReady            bool
}

var _ storage.RecordBackend = (*MySQL)(nil)

// PrepareDSN applies the configured credentials to uri and turns on parseTime,
// which the record iterator needs to scan inserted_at.
func PrepareDSN(uri, username, password string) (string, error) {
	dsnCfg, err := mysql.ParseDSN(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql connection dsn: %w", err)
	}

	if username != "" {
		dsnCfg.User = username
	}
	if password != "" {
		dsnCfg.Passwd = password
	}
	dsnCfg.ParseTime = true

	return dsnCfg.FormatDSN(), nil
}

func New(uri string, cfg *sqlcommon.Config) (*MySQL, error) {
	uri, err := PrepareDSN(uri, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}
	sqlcommon.ApplyPoolSettings(db, cfg)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err = backoff.Retry(func() error {
		err = db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for mysql", logger.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mysql connection: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "recordrelay")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	stbl := sq.StatementBuilder.RunWith(db)

	return &MySQL{
		stbl:                    stbl,
		db:                      db,
		dbInfo:                  sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "mysql"),
		logger:                  cfg.Logger,
		dbStatsCollector:        collector,
		maxRecordsPerWriteField: cfg.MaxRecordsPerWriteField,
	}, nil
}

// Close closes the datastore and cleans up any residual resources.
func (m *MySQL) Close() {
	if m.dbStatsCollector != nil {
		prometheus.Unregister(m.dbStatsCollector)
	}
	m.db.Close()
}

// ReadRecords see [storage.RecordReader].ReadRecords.
func (m *MySQL) ReadRecords(ctx context.Context, filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions) (storage.RecordIterator, error) {
	_, span := tracer.Start(ctx, "mysql.ReadRecords")
	defer span.End()

	sb := sqlcommon.SelectRecords(m.stbl, filter, options)
	return sqlcommon.NewSelectBuilderIterator(sb, HandleSQLError), nil
}

// Write see [storage.RecordWriter].Write.
func (m *MySQL) Write(ctx context.Context, records storage.Writes) error {
	ctx, span := tracer.Start(ctx, "mysql.Write")
	defer span.End()

	if err := storage.ValidateWrites(records, m.maxRecordsPerWriteField); err != nil {
		return err
	}

	return sqlcommon.Write(ctx, m.dbInfo, records, time.Now().UTC())
}

// MaxRecordsPerWrite see [storage.RecordWriter].MaxRecordsPerWrite.
func (m *MySQL) MaxRecordsPerWrite() int {
	return m.maxRecordsPerWriteField
}

// IsReady see [sqlcommon.IsReady].
func (m *MySQL) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, m.versionReady, m.db)
	if err != nil {
		return versionReady, err
	}
	m.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == errDuplicateEntry {
		return storage.ErrCollision
	}

	return sqlcommon.HandleSQLError(err)
}
