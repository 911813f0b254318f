// Package postgres implements store.Store on PostgreSQL with real
// transactions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("finance-reconciler/postgres")

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps *sql.DB and traces every statement.
type DB struct {
	*sql.DB
}

// Open connects to dsn, applies the pool settings and pings the server.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{db}, nil
}

// querier is satisfied by both *DB and *Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func startSpan(ctx context.Context, name, query string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", sqlVerb(query)),
		attribute.String("db.statement", compact(query)),
	))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := startSpan(ctx, "db.Query", query)
	rows, err := db.DB.QueryContext(ctx, query, args...)
	finish(span, err)
	return rows, err
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow {
	ctx, span := startSpan(ctx, "db.QueryRow", query)
	return &tracedRow{row: db.DB.QueryRowContext(ctx, query, args...), span: span}
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := startSpan(ctx, "db.Exec", query)
	res, err := db.DB.ExecContext(ctx, query, args...)
	finish(span, err)
	return res, err
}

// Begin starts a traced transaction. The span covers the transaction's
// lifetime and ends on Commit or Rollback.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	ctx, span := tracer.Start(ctx, "db.Tx", trace.WithAttributes(attribute.String("db.system", "postgresql")))
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		finish(span, err)
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{tx: tx, span: span}, nil
}

// Tx is a traced *sql.Tx.
type Tx struct {
	tx   *sql.Tx
	span trace.Span
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := startSpan(ctx, "tx.Query", query)
	rows, err := t.tx.QueryContext(ctx, query, args...)
	finish(span, err)
	return rows, err
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow {
	ctx, span := startSpan(ctx, "tx.QueryRow", query)
	return &tracedRow{row: t.tx.QueryRowContext(ctx, query, args...), span: span}
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := startSpan(ctx, "tx.Exec", query)
	res, err := t.tx.ExecContext(ctx, query, args...)
	finish(span, err)
	return res, err
}

func (t *Tx) Commit() error {
	err := t.tx.Commit()
	finish(t.span, err)
	return err
}

// Rollback is safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	t.span.SetAttributes(attribute.Bool("db.rolled_back", true))
	finish(t.span, err)
	return err
}

// tracedRow keeps the span open until Scan, where *sql.Row reports errors.
type tracedRow struct {
	row  *sql.Row
	span trace.Span
}

func (r *tracedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if r.span != nil {
		if err == sql.ErrNoRows {
			r.span.End()
		} else {
			finish(r.span, err)
		}
		r.span = nil
	}
	return err
}

func sqlVerb(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// compact collapses whitespace and truncates the statement for span
// attributes. All statements here use $N placeholders, so no values leak.
func compact(q string) string {
	s := strings.Join(strings.Fields(q), " ")
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
