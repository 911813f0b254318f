// Package bigquery implements store.Store on a BigQuery records table.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/finance-reconciler/internal/store"
)

// Store is a store.Store backed by BigQuery. It does not implement
// store.Transactor; multi-record writes fall back to compensating deletes.
type Store struct {
	client *bigquery.Client
	table  Table
}

// NewStore creates a Store with its own client.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewStore: project ID is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, Table{ProjectID: projectID, DatasetID: datasetID}), nil
}

// NewStoreWithClient creates a Store over an existing client.
func NewStoreWithClient(client *bigquery.Client, t Table) *Store {
	return &Store{client: client, table: t}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// GetAll implements store.Store.
func (s *Store) GetAll(ctx context.Context, kind store.Kind) ([]store.Record, error) {
	rows, err := ListRecordsWithClient(ctx, s.client, s.table, string(kind))
	if err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, toRecord(r))
	}
	return out, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, kind store.Kind, id string) (*store.Record, error) {
	row, err := GetRecordWithClient(ctx, s.client, s.table, string(kind), id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	rec := toRecord(*row)
	return &rec, nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, rec store.Record) error {
	return UpsertRecordWithClient(ctx, s.client, s.table, fromRecord(rec))
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, kind store.Kind, id string) error {
	removed, err := DeleteRecordWithClient(ctx, s.client, s.table, string(kind), id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func toRecord(r RecordRow) store.Record {
	rec := store.Record{Kind: store.Kind(r.Kind), ID: r.RecordID, Payload: []byte(r.Payload)}
	if r.UpdatedTS.Valid {
		rec.UpdatedAt = r.UpdatedTS.Timestamp
	}
	return rec
}

func fromRecord(rec store.Record) RecordRow {
	row := RecordRow{Kind: string(rec.Kind), RecordID: rec.ID, Payload: string(rec.Payload)}
	if !rec.UpdatedAt.IsZero() {
		row.UpdatedTS = bigquery.NullTimestamp{Timestamp: rec.UpdatedAt, Valid: true}
	}
	return row
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
