package receipts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAssignsOutcomeAndDigest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })

	ok, err := store.Record(ctx, Entry{Operation: "deposite", Caller: "stk1alice", Asset: "ST", Amount: "200", Events: 2})
	require.NoError(t, err)
	require.Equal(t, OutcomeCommitted, ok.Outcome)
	require.Len(t, ok.Digest, 64)
	require.Equal(t, Digest(ok), ok.Digest)

	reverted, err := store.Record(ctx, Entry{Operation: "withdraw", Caller: "stk1alice", ErrorKind: "window", Reason: "you should withdraw wait until endTime"})
	require.NoError(t, err)
	require.Equal(t, OutcomeReverted, reverted.Outcome)
	require.NotEqual(t, ok.Digest, reverted.Digest)

	failed, err := store.Record(ctx, Entry{Operation: "withdraw", ErrorKind: "internal"})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, failed.Outcome)

	_, err = store.Record(ctx, Entry{})
	require.Error(t, err)

	loaded, err := store.Get(ctx, ok.ID)
	require.NoError(t, err)
	require.Equal(t, "200", loaded.Amount)
	require.True(t, fixed.Equal(loaded.CreatedAt))

	_, err = store.Get(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.SetNowFunc(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	entries := []Entry{
		{Operation: "deposite", Caller: "a"},
		{Operation: "deposite", Caller: "b"},
		{Operation: "receiveReward", Caller: "m"},
		{Operation: "withdraw", Caller: "a", ErrorKind: "validation"},
	}
	for _, e := range entries {
		_, err := store.Record(ctx, e)
		require.NoError(t, err)
	}

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "withdraw", all[0].Operation, "newest first")

	deposits, err := store.List(ctx, Filter{Operation: "deposite"})
	require.NoError(t, err)
	require.Len(t, deposits, 2)

	byCaller, err := store.List(ctx, Filter{Caller: "a"})
	require.NoError(t, err)
	require.Len(t, byCaller, 2)

	reverted, err := store.List(ctx, Filter{Outcome: OutcomeReverted})
	require.NoError(t, err)
	require.Len(t, reverted, 1)

	recent, err := store.List(ctx, Filter{Since: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	limited, err := store.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestExportParquet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, op := range []string{"deposite", "withdraw"} {
		_, err := store.Record(ctx, Entry{Operation: op, Caller: "a", Amount: "1"})
		require.NoError(t, err)
	}
	path := filepath.Join(t.TempDir(), "receipts.parquet")
	n, err := store.Export(ctx, path, Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	require.Equal(t, "PAR1", string(data[:4]))
	require.Equal(t, "PAR1", string(data[len(data)-4:]))
}

func TestDialectorSelection(t *testing.T) {
	require.Equal(t, "postgres", dialector("postgres://user@localhost/pool").Name())
	require.Equal(t, "postgres", dialector("postgresql://user@localhost/pool").Name())
	require.Equal(t, "sqlite", dialector("receipts.db").Name())
}
