package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openfga/recordrelay/pkg/storage/sqlcommon"
)

// pgxpoolQuery runs a squirrel select on the pgx pool for the sqlcommon record iterator.
func pgxpoolQuery(pool *pgxpool.Pool, sb sq.SelectBuilder) sqlcommon.QueryFunc {
	return func(ctx context.Context) (sqlcommon.Rows, error) {
		stmt, args, err := sb.ToSql()
		if err != nil {
			return nil, err
		}

		rows, err := pool.Query(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		return &pgxRowsWrapper{rows: rows}, nil
	}
}

// pgxRowsWrapper wraps pgx.Rows to implement sqlcommon.Rows interface.
type pgxRowsWrapper struct {
	rows pgx.Rows
}

var _ sqlcommon.Rows = (*pgxRowsWrapper)(nil)

func (r *pgxRowsWrapper) Err() error {
	return r.rows.Err()
}

func (r *pgxRowsWrapper) Next() bool {
	return r.rows.Next()
}

func (r *pgxRowsWrapper) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *pgxRowsWrapper) Close() error {
	r.rows.Close()
	return nil
}
