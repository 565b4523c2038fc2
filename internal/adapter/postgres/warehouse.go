package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-delivery/atlas/internal/domain/query"
)

// tokenExpiredMarker is the warehouse gateway's error code for an expired
// OAuth token. It appears in the error message, not as a SQLSTATE.
const tokenExpiredMarker = "390114"

// Warehouse executes read-only SQL against the projects warehouse through a
// connection pool. Each query checks out its own connection, so concurrent
// requests never share connection state.
type Warehouse struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	log     *slog.Logger
}

// NewWarehouse creates a Warehouse executor. timeout bounds each query;
// zero means no per-query deadline beyond the caller's context.
func NewWarehouse(pool *pgxpool.Pool, timeout time.Duration, log *slog.Logger) *Warehouse {
	if log == nil {
		log = slog.Default()
	}
	return &Warehouse{pool: pool, timeout: timeout, log: log}
}

// Execute runs sql and returns all rows with column order preserved.
// An authentication-token-expiration error is retried exactly once; the pool
// dials the replacement connection with fresh credentials.
func (w *Warehouse) Execute(ctx context.Context, sql string, args ...any) (*query.Rowset, error) {
	rs, err := w.run(ctx, sql, args...)
	if err != nil && isTokenExpired(err) {
		w.log.Warn("warehouse token expired, retrying once", "error", err)
		rs, err = w.run(ctx, sql, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("warehouse execute: %w", err)
	}
	return rs, nil
}

func (w *Warehouse) run(ctx context.Context, sql string, args ...any) (*query.Rowset, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	rows, err := w.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	rs := &query.Rowset{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// normalizeValue reduces driver types to the scalars the renderer understands.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(time.RFC3339)
	case float32:
		return float64(val)
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[:4], val[4:6], val[6:8], val[8:10], val[10:])
	default:
		return v
	}
}

// isTokenExpired detects an expired warehouse credential, either as an
// invalid-authorization SQLSTATE from the server or the gateway's own marker
// code in the message body.
func isTokenExpired(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "28000" || pgErr.Code == "28P01" {
			return true
		}
	}
	return strings.Contains(err.Error(), tokenExpiredMarker)
}

// Ping verifies the pool can reach the warehouse.
func (w *Warehouse) Ping(ctx context.Context) error {
	if err := w.pool.Ping(ctx); err != nil {
		return fmt.Errorf("warehouse ping: %w", err)
	}
	return nil
}
