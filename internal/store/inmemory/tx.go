package inmemory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dvloznov/finance-reconciler/internal/store"
)

type key struct {
	kind store.Kind
	id   string
}

// txStore buffers writes over a base store until commit.
type txStore struct {
	base    *Store
	mu      sync.Mutex
	puts    map[key]store.Record
	deletes map[key]bool
}

// WithinTx implements store.Transactor. Writes made through tx become
// visible atomically when fn returns nil and are discarded otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	tx := &txStore{base: s, puts: make(map[key]store.Record), deletes: make(map[key]bool)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range tx.deletes {
		delete(s.records[k.kind], k.id)
	}
	for _, r := range tx.puts {
		s.putLocked(r)
	}
	return nil
}

func (t *txStore) GetAll(ctx context.Context, kind store.Kind) ([]store.Record, error) {
	base, err := t.base.GetAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := slices.DeleteFunc(base, func(r store.Record) bool {
		k := key{kind, r.ID}
		_, replaced := t.puts[k]
		return replaced || t.deletes[k]
	})
	for k, r := range t.puts {
		if k.kind == kind {
			out = append(out, clone(r))
		}
	}
	slices.SortFunc(out, func(a, b store.Record) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *txStore) Get(ctx context.Context, kind store.Kind, id string) (*store.Record, error) {
	t.mu.Lock()
	k := key{kind, id}
	if r, ok := t.puts[k]; ok {
		t.mu.Unlock()
		c := clone(r)
		return &c, nil
	}
	deleted := t.deletes[k]
	t.mu.Unlock()
	if deleted {
		return nil, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return t.base.Get(ctx, kind, id)
}

func (t *txStore) Put(ctx context.Context, rec store.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key{rec.Kind, rec.ID}
	delete(t.deletes, k)
	t.puts[k] = clone(rec)
	return nil
}

func (t *txStore) Delete(ctx context.Context, kind store.Kind, id string) error {
	if _, err := t.Get(ctx, kind, id); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key{kind, id}
	delete(t.puts, k)
	t.deletes[k] = true
	return nil
}
