// Package store defines the persistence port used by the reconciliation
// pipeline and a typed repository on top of it.
package store

import (
	"context"
	"errors"
	"time"
)

// Kind names a collection of records.
type Kind string

const (
	KindTransactions Kind = "transactions"
	KindAccounts     Kind = "accounts"
	KindObligations  Kind = "obligations"
	KindCategories   Kind = "categories"
	KindSeries       Kind = "obligation_series"
)

// Kinds lists every collection the pipeline uses.
var Kinds = []Kind{KindTransactions, KindAccounts, KindObligations, KindCategories, KindSeries}

var (
	// ErrNotFound is returned by Get and Delete for unknown records.
	ErrNotFound = errors.New("record not found")
	// ErrReservedCategory is returned when deleting a reserved category.
	ErrReservedCategory = errors.New("category is reserved")
)

// Record is the unit of persistence: a JSON document addressed by kind and
// ID.
type Record struct {
	Kind      Kind
	ID        string
	Payload   []byte
	UpdatedAt time.Time
}

// Store is the narrow persistence port. Implementations must be safe for
// concurrent use.
type Store interface {
	// GetAll returns every record of a kind.
	GetAll(ctx context.Context, kind Kind) ([]Record, error)

	// Get returns one record, or ErrNotFound.
	Get(ctx context.Context, kind Kind, id string) (*Record, error)

	// Put inserts or replaces a record.
	Put(ctx context.Context, rec Record) error

	// Delete removes a record, or returns ErrNotFound.
	Delete(ctx context.Context, kind Kind, id string) error
}

// Transactor is implemented by stores that support atomic multi-record
// writes. fn receives a Store bound to the transaction; returning an error
// rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
