package inmemory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-reconciler/internal/store"
)

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Put(ctx, store.Record{Kind: store.KindAccounts, ID: "b", Payload: []byte(`{"id":"b"}`)}))
	require.NoError(t, s.Put(ctx, store.Record{Kind: store.KindAccounts, ID: "a", Payload: []byte(`{"id":"a"}`)}))

	all, err := s.GetAll(ctx, store.KindAccounts)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.False(t, all[0].UpdatedAt.IsZero())

	rec, err := s.Get(ctx, store.KindAccounts, "b")
	require.NoError(t, err)
	rec.Payload[0] = 'X'
	again, _ := s.Get(ctx, store.KindAccounts, "b")
	assert.Equal(t, `{"id":"b"}`, string(again.Payload), "returned records must be copies")

	require.NoError(t, s.Delete(ctx, store.KindAccounts, "b"))
	_, err = s.Get(ctx, store.KindAccounts, "b")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, store.KindAccounts, "b"), store.ErrNotFound)

	assert.Error(t, s.Put(ctx, store.Record{Kind: store.KindAccounts}))
}

func TestWithinTxCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Put(ctx, store.Record{Kind: store.KindObligations, ID: "old", Payload: []byte(`{}`)}))

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		require.NoError(t, tx.Put(ctx, store.Record{Kind: store.KindObligations, ID: "new", Payload: []byte(`{}`)}))
		require.NoError(t, tx.Delete(ctx, store.KindObligations, "old"))

		inside, err := tx.GetAll(ctx, store.KindObligations)
		require.NoError(t, err)
		assert.Len(t, inside, 1)

		outside, _ := s.GetAll(ctx, store.KindObligations)
		assert.Equal(t, "old", outside[0].ID, "writes must stay invisible until commit")
		return nil
	})
	require.NoError(t, err)

	all, _ := s.GetAll(ctx, store.KindObligations)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].ID)
}

func TestWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		_ = tx.Put(ctx, store.Record{Kind: store.KindSeries, ID: "s1", Payload: []byte(`{}`)})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, _ := s.GetAll(ctx, store.KindSeries)
	assert.Empty(t, all)
}

func TestSeed(t *testing.T) {
	s := NewStore()
	err := s.Seed(strings.NewReader(`{
		"accounts": [{"id": "acc-1", "currency": "AED", "balance": "1050"}],
		"categories": [{"id": "groceries", "name": "Groceries"}]
	}`))
	require.NoError(t, err)

	rec, err := s.Get(context.Background(), store.KindAccounts, "acc-1")
	require.NoError(t, err)
	assert.Contains(t, string(rec.Payload), `"1050"`)

	assert.Error(t, s.Seed(strings.NewReader(`{"widgets": [{"id": "x"}]}`)))
	assert.Error(t, s.Seed(strings.NewReader(`{"accounts": [{"name": "no id"}]}`)))
}
