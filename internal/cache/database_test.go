package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fitos/notify/internal/database/testutil"
)

func newTestStore(t *testing.T) (*DatabaseStore, *time.Time) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestDatabaseStoreIncrementUsesFixedWindow(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "push:daily:u1", time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Hour, ttl)

	*now = now.Add(10 * time.Minute)
	count, ttl, err = store.IncrementWithTTL(ctx, "push:daily:u1", time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 50*time.Minute, ttl)

	*now = now.Add(time.Hour)
	count, _, err = store.IncrementWithTTL(ctx, "push:daily:u1", time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, count, "counter restarts once the window passes")
}

func TestDatabaseStoreDecrementGivesBackOneSlot(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Decrement(ctx, "push:daily:missing"))
	_, found, err := store.Get(ctx, "push:daily:missing")
	require.NoError(t, err)
	require.False(t, found, "decrement never creates a counter")

	for i := 0; i < 2; i++ {
		_, _, err := store.IncrementWithTTL(ctx, "push:daily:u1", time.Hour)
		require.NoError(t, err)
	}
	require.NoError(t, store.Decrement(ctx, "push:daily:u1"))
	require.NoError(t, store.Decrement(ctx, "push:daily:u1"))
	require.NoError(t, store.Decrement(ctx, "push:daily:u1"))

	value, found, err := store.Get(ctx, "push:daily:u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "0", string(value), "counter stops at zero")

	count, ttl, err := store.IncrementWithTTL(ctx, "push:daily:u1", time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Hour, ttl, "decrement keeps the original window")

	*now = now.Add(2 * time.Hour)
	require.NoError(t, store.Decrement(ctx, "push:daily:u1"), "expired counters are ignored")
}

func TestDatabaseStoreSetIfAbsent(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	ok, err := store.SetIfAbsent(ctx, "job:reminders", []byte("a"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.SetIfAbsent(ctx, "job:reminders", []byte("b"), time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	*now = now.Add(2 * time.Minute)
	ok, err = store.SetIfAbsent(ctx, "job:reminders", []byte("c"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	value, found, err := store.Get(ctx, "job:reminders")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("c"), value)
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "a", []byte("2"), time.Minute))
	require.NoError(t, store.Set(ctx, "forever", []byte("x"), 0))

	value, found, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("2"), value)

	*now = now.Add(2 * time.Minute)
	_, found, err = store.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, store.Delete(ctx, "forever"))
	_, found, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "long", []byte("1"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("1"), 0))

	*now = now.Add(5 * time.Minute)
	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}

func TestNilDatabaseStore(t *testing.T) {
	require.Nil(t, NewDatabaseStore(nil))

	var store *DatabaseStore
	_, _, err := store.IncrementWithTTL(context.Background(), "k", time.Second)
	require.Error(t, err)
}
