package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-reconciler/internal/store"
)

// journal wraps a store without transactions and remembers the prior state
// of every record it writes, so a failed operation can be compensated.
// Compensation is best effort: a crash between the write and the rollback
// leaves partial state behind.
type journal struct {
	store.Store

	mu      sync.Mutex
	entries []journalEntry
}

type journalEntry struct {
	kind store.Kind
	id   string
	prev *store.Record // nil when the record did not exist
}

func newJournal(s store.Store) *journal {
	return &journal{Store: s}
}

func (j *journal) Put(ctx context.Context, rec store.Record) error {
	prev, err := j.Store.Get(ctx, rec.Kind, rec.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := j.Store.Put(ctx, rec); err != nil {
		return err
	}
	j.record(rec.Kind, rec.ID, prev)
	return nil
}

func (j *journal) Delete(ctx context.Context, kind store.Kind, id string) error {
	prev, err := j.Store.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := j.Store.Delete(ctx, kind, id); err != nil {
		return err
	}
	j.record(kind, id, prev)
	return nil
}

func (j *journal) record(kind store.Kind, id string, prev *store.Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, journalEntry{kind: kind, id: id, prev: prev})
}

// size returns how many writes would be undone.
func (j *journal) size() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// rollback undoes the recorded writes newest first and reports every
// compensation that failed.
func (j *journal) rollback(ctx context.Context) error {
	j.mu.Lock()
	entries := j.entries
	j.entries = nil
	j.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var err error
		if e.prev == nil {
			err = j.Store.Delete(ctx, e.kind, e.id)
			if errors.Is(err, store.ErrNotFound) {
				err = nil
			}
		} else {
			err = j.Store.Put(ctx, *e.prev)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("undo %s %s: %w", e.kind, e.id, err))
		}
	}
	return errors.Join(errs...)
}
