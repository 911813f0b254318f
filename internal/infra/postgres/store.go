package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/store"
)

//go:embed schema.sql
var schema string

const (
	selectAll = `SELECT kind, record_id, payload, updated_at FROM records WHERE kind = $1 ORDER BY record_id`
	selectOne = `SELECT kind, record_id, payload, updated_at FROM records WHERE kind = $1 AND record_id = $2`
	upsert    = `INSERT INTO records (kind, record_id, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, record_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	deleteOne = `DELETE FROM records WHERE kind = $1 AND record_id = $2`
)

// Store is a store.Store and store.Transactor backed by PostgreSQL.
type Store struct {
	db *DB
	q  querier
}

// NewStore creates a Store over db.
func NewStore(db *DB) *Store {
	return &Store{db: db, q: db}
}

// Migrate creates the records table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetAll implements store.Store.
func (s *Store) GetAll(ctx context.Context, kind store.Kind) ([]store.Record, error) {
	rows, err := s.q.QueryContext(ctx, selectAll, string(kind))
	if err != nil {
		return nil, fmt.Errorf("GetAll %s: %w", kind, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var (
			rec  store.Record
			kstr string
		)
		if err := rows.Scan(&kstr, &rec.ID, &rec.Payload, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("GetAll %s: scanning: %w", kind, err)
		}
		rec.Kind = store.Kind(kstr)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetAll %s: iterating: %w", kind, err)
	}
	return out, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, kind store.Kind, id string) (*store.Record, error) {
	var (
		rec  store.Record
		kstr string
	)
	err := s.q.QueryRowContext(ctx, selectOne, string(kind), id).Scan(&kstr, &rec.ID, &rec.Payload, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get %s %s: %w", kind, id, err)
	}
	rec.Kind = store.Kind(kstr)
	return &rec, nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, rec store.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("Put %s: record ID is required", rec.Kind)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	if _, err := s.q.ExecContext(ctx, upsert, string(rec.Kind), rec.ID, string(rec.Payload), updated); err != nil {
		return fmt.Errorf("Put %s %s: %w", rec.Kind, rec.ID, err)
	}
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, kind store.Kind, id string) error {
	res, err := s.q.ExecContext(ctx, deleteOne, string(kind), id)
	if err != nil {
		return fmt.Errorf("Delete %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete %s %s: rows affected: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// WithinTx implements store.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(ctx, &Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Ensure Store implements the store interfaces.
var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)
