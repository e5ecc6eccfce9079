package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfga/recordrelay/internal/build"
	"github.com/openfga/recordrelay/pkg/logger"
	"github.com/openfga/recordrelay/pkg/storage"
)

var tracer = otel.Tracer("recordrelay/pkg/storage/sqlcommon")

// RecordTable is the name of the table every SQL backend stores records in.
const RecordTable = "record"

// Config defines the configuration parameters
// for setting up and managing a sql connection.
type Config struct {
	Username                string
	Password                string
	Logger                  logger.Logger
	MaxRecordsPerWriteField int

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	ExportMetrics bool
}

// DatastoreOption defines a function type
// used for configuring a Config object.
type DatastoreOption func(*Config)

// WithUsername returns a DatastoreOption that sets the username in the Config.
func WithUsername(username string) DatastoreOption {
	return func(config *Config) {
		config.Username = username
	}
}

// WithPassword returns a DatastoreOption that sets the password in the Config.
func WithPassword(password string) DatastoreOption {
	return func(config *Config) {
		config.Password = password
	}
}

// WithLogger returns a DatastoreOption that sets the Logger in the Config.
func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithMaxRecordsPerWrite returns a DatastoreOption that sets
// the maximum number of records per write in the Config.
func WithMaxRecordsPerWrite(n int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxRecordsPerWriteField = n
	}
}

func WithMaxOpenConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxOpenConns = c
	}
}

func WithMaxIdleConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxIdleConns = c
	}
}

func WithConnMaxIdleTime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxIdleTime = d
	}
}

func WithConnMaxLifetime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxLifetime = d
	}
}

// WithMetrics returns a DatastoreOption that
// enables the export of connection pool metrics.
func WithMetrics() DatastoreOption {
	return func(cfg *Config) {
		cfg.ExportMetrics = true
	}
}

// NewConfig creates a new Config instance with default values
// and applies any provided DatastoreOption modifications.
func NewConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	if cfg.MaxRecordsPerWriteField == 0 {
		cfg.MaxRecordsPerWriteField = storage.DefaultMaxRecordsPerWrite
	}

	return cfg
}

// ApplyPoolSettings copies the connection pool settings of cfg onto db.
func ApplyPoolSettings(db *sql.DB, cfg *Config) {
	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// Rows is the subset of *sql.Rows the record iterator needs, so that drivers with their
// own row types (pgx) can be adapted to it.
type Rows interface {
	Err() error
	Next() bool
	Scan(dest ...any) error
	Close() error
}

var _ Rows = (*sql.Rows)(nil)

// QueryFunc runs the read query and returns its rows.
type QueryFunc func(ctx context.Context) (Rows, error)

// ErrorHandlerFn maps a driver error onto a storage error.
type ErrorHandlerFn func(error) error

// recordColumns are the columns, in scan order, every record select must return.
var recordColumns = []string{
	"collection",
	"record_key",
	"payload",
	"ulid",
	"inserted_at",
}

// RecordColumns returns the columns used by the SQL record iterator.
func RecordColumns() []string {
	return recordColumns
}

// SQLRecordIterator is a lazy [storage.RecordIterator] over the rows of a select.
// The query only runs on the first call to Next, so query failures surface there.
type SQLRecordIterator struct {
	query          QueryFunc
	handleSQLError ErrorHandlerFn

	rows    Rows // GUARDED_BY(mu)
	stopped bool // GUARDED_BY(mu)
	mu      sync.Mutex
}

var _ storage.RecordIterator = (*SQLRecordIterator)(nil)

// NewSQLRecordIterator returns a SQL record iterator running query on first use.
func NewSQLRecordIterator(query QueryFunc, errHandler ErrorHandlerFn) *SQLRecordIterator {
	return &SQLRecordIterator{
		query:          query,
		handleSQLError: errHandler,
	}
}

// NewSelectBuilderIterator returns a SQL record iterator over a squirrel select
// that runs against a *sql.DB or *sql.Tx.
func NewSelectBuilderIterator(sb sq.SelectBuilder, errHandler ErrorHandlerFn) *SQLRecordIterator {
	return NewSQLRecordIterator(func(ctx context.Context) (Rows, error) {
		return sb.QueryContext(ctx)
	}, errHandler)
}

func (t *SQLRecordIterator) fetch(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.fetch")
	defer span.End()

	rows, err := t.query(ctx)
	if err != nil {
		span.RecordError(err)
		return t.handleSQLError(err)
	}
	t.rows = rows
	return nil
}

// Next see [storage.Iterator].Next.
func (t *SQLRecordIterator) Next(ctx context.Context) (*storage.Record, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil, storage.ErrIteratorDone
	}

	if t.rows == nil {
		if err := t.fetch(ctx); err != nil {
			return nil, err
		}
	}

	if !t.rows.Next() {
		if err := t.rows.Err(); err != nil {
			return nil, t.handleSQLError(err)
		}
		return nil, storage.ErrIteratorDone
	}

	var record storage.Record
	var payload []byte
	err := t.rows.Scan(
		&record.Collection,
		&record.Key,
		&payload,
		&record.Ulid,
		&record.InsertedAt,
	)
	if err != nil {
		return nil, t.handleSQLError(err)
	}

	record.Payload, err = storage.UnmarshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", record.ID(), err)
	}
	record.InsertedAt = record.InsertedAt.UTC()

	return &record, nil
}

// Stop see [storage.Iterator].Stop.
func (t *SQLRecordIterator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.rows != nil {
		_ = t.rows.Close()
	}
}

// likeEscaper escapes the LIKE wildcards of a key prefix using '!' as the escape character,
// which every supported engine accepts in an ESCAPE clause.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// SelectRecords builds the read query for filter and options, ordered by ulid.
func SelectRecords(stbl sq.StatementBuilderType, filter storage.ReadRecordsFilter, options storage.ReadRecordsOptions) sq.SelectBuilder {
	sb := stbl.
		Select(RecordColumns()...).
		From(RecordTable).
		Where(sq.Eq{"collection": filter.Collection}).
		OrderBy("ulid")

	if filter.KeyPrefix != "" {
		sb = sb.Where(sq.Expr("record_key LIKE ? ESCAPE '!'", likeEscaper.Replace(filter.KeyPrefix)+"%"))
	}

	if options.Limit > 0 {
		sb = sb.Limit(uint64(options.Limit))
	}

	return sb
}

// DBInfo encapsulates DB information for use in common method.
type DBInfo struct {
	db             *sql.DB
	stbl           sq.StatementBuilderType
	HandleSQLError ErrorHandlerFn
}

// NewDBInfo constructs a [DBInfo] object.
func NewDBInfo(db *sql.DB, stbl sq.StatementBuilderType, errorHandler ErrorHandlerFn, dialect string) *DBInfo {
	if err := goose.SetDialect(dialect); err != nil {
		panic("failed to set database dialect: " + err.Error())
	}

	return &DBInfo{
		db:             db,
		stbl:           stbl,
		HandleSQLError: errorHandler,
	}
}

// Write provides the common method for inserting records across sql storage.
// All records are inserted in one transaction: a collision on any of them writes nothing.
func Write(ctx context.Context, dbInfo *DBInfo, records storage.Writes, now time.Time) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.Write", trace.WithAttributes(attribute.Int("records", len(records))))
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	txn, err := dbInfo.db.BeginTx(ctx, nil)
	if err != nil {
		return dbInfo.HandleSQLError(err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	insert := dbInfo.stbl.
		Insert(RecordTable).
		Columns(RecordColumns()...).
		RunWith(txn)

	entropy := ulid.DefaultEntropy()
	for _, r := range records {
		payload, err := r.MarshalPayload()
		if err != nil {
			return fmt.Errorf("encode payload of %s: %w", r.ID(), err)
		}

		id := ulid.MustNew(ulid.Timestamp(now), entropy).String()
		insert = insert.Values(r.Collection, r.Key, payload, id, now)
	}

	if _, err := insert.ExecContext(ctx); err != nil {
		return dbInfo.HandleSQLError(err)
	}

	if err := txn.Commit(); err != nil {
		return dbInfo.HandleSQLError(err)
	}

	return nil
}

// HandleSQLError maps the driver independent errors onto storage errors.
func HandleSQLError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", storage.ErrCancelled, err)
	}

	return fmt.Errorf("sql error: %w", err)
}

// IsReady returns true if connection to datastore is successful AND
// (the datastore has the latest migration applied OR skipVersionCheck).
func IsReady(ctx context.Context, skipVersionCheck bool, db *sql.DB) (storage.ReadinessStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// do ping first to ensure we have better error message
	// if error is due to connection issue.
	if pingErr := db.PingContext(ctx); pingErr != nil {
		return storage.ReadinessStatus{}, pingErr
	}

	if skipVersionCheck {
		return storage.ReadinessStatus{
			IsReady: true,
		}, nil
	}

	revision, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return storage.ReadinessStatus{}, err
	}

	if revision < build.MinimumSupportedDatastoreSchemaRevision {
		return storage.ReadinessStatus{
			Message: "datastore requires migrations: at revision '" +
				strconv.FormatInt(revision, 10) +
				"', but requires '" +
				strconv.FormatInt(build.MinimumSupportedDatastoreSchemaRevision, 10) +
				"'. Run 'recordrelay migrate'.",
			IsReady: false,
		}, nil
	}
	return storage.ReadinessStatus{
		IsReady: true,
	}, nil
}
