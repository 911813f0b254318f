package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-reconciler/internal/store"
	"github.com/dvloznov/finance-reconciler/internal/store/inmemory"
)

func TestJournalRollback(t *testing.T) {
	ctx := context.Background()
	base := inmemory.NewStore()
	require.NoError(t, base.Put(ctx, store.Record{Kind: store.KindAccounts, ID: "acc-1", Payload: []byte(`{"id":"acc-1","balance":"10"}`)}))
	require.NoError(t, base.Put(ctx, store.Record{Kind: store.KindCategories, ID: "food", Payload: []byte(`{"id":"food"}`)}))

	j := newJournal(base)
	require.NoError(t, j.Put(ctx, store.Record{Kind: store.KindAccounts, ID: "acc-1", Payload: []byte(`{"id":"acc-1","balance":"99"}`)}))
	require.NoError(t, j.Put(ctx, store.Record{Kind: store.KindTransactions, ID: "tx-1", Payload: []byte(`{"id":"tx-1"}`)}))
	require.NoError(t, j.Delete(ctx, store.KindCategories, "food"))
	assert.Equal(t, 3, j.size())

	require.NoError(t, j.rollback(ctx))
	assert.Equal(t, 0, j.size())

	acc, err := base.Get(ctx, store.KindAccounts, "acc-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"acc-1","balance":"10"}`, string(acc.Payload))

	_, err = base.Get(ctx, store.KindTransactions, "tx-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = base.Get(ctx, store.KindCategories, "food")
	assert.NoError(t, err)
}

func TestJournalDeleteMissing(t *testing.T) {
	j := newJournal(inmemory.NewStore())
	err := j.Delete(context.Background(), store.KindTransactions, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, j.size())
}
