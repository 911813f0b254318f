// Package inmemory provides a map-backed store.Store.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/store"
)

// Store is an in-memory implementation of store.Store and store.Transactor.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu      sync.RWMutex
	records map[store.Kind]map[string]store.Record
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[store.Kind]map[string]store.Record)}
}

func clone(r store.Record) store.Record {
	r.Payload = slices.Clone(r.Payload)
	return r
}

// GetAll implements store.Store. Records are returned ordered by ID.
func (s *Store) GetAll(ctx context.Context, kind store.Kind) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Record, 0, len(s.records[kind]))
	for _, r := range s.records[kind] {
		out = append(out, clone(r))
	}
	slices.SortFunc(out, func(a, b store.Record) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, kind store.Kind, id string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[kind][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	c := clone(r)
	return &c, nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, rec store.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(rec)
	return nil
}

func (s *Store) putLocked(rec store.Record) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	m, ok := s.records[rec.Kind]
	if !ok {
		m = make(map[string]store.Record)
		s.records[rec.Kind] = m
	}
	m[rec.ID] = clone(rec)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, kind store.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[kind][id]; !ok {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	delete(s.records[kind], id)
	return nil
}

// Seed loads fixtures of the form {"accounts": [{"id": ...}, ...], ...}.
func (s *Store) Seed(r io.Reader) error {
	var fixtures map[store.Kind][]json.RawMessage
	if err := json.NewDecoder(r).Decode(&fixtures); err != nil {
		return fmt.Errorf("decoding fixtures: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, items := range fixtures {
		if !slices.Contains(store.Kinds, kind) {
			return fmt.Errorf("unknown fixture kind %q", kind)
		}
		for i, raw := range items {
			var head struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &head); err != nil || head.ID == "" {
				return fmt.Errorf("%s[%d]: missing id", kind, i)
			}
			s.putLocked(store.Record{Kind: kind, ID: head.ID, Payload: raw})
		}
	}
	return nil
}

// SeedFile loads fixtures from a JSON file.
func (s *Store) SeedFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening fixtures: %w", err)
	}
	defer f.Close()
	return s.Seed(f)
}

// Ensure Store implements the store interfaces.
var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)
