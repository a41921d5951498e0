package gashistory

import (
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	store, err := NewRedisStore(db)
	require.NoError(t, err)
	ctx := t.Context()

	mock.ExpectGet("mev:gas:0xabc").RedisNil()
	_, ok, err := store.Get(ctx, "mev:gas:0xabc")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSet("mev:gas:0xabc", "80000000", time.Hour).SetVal("OK")
	require.NoError(t, store.Set(ctx, "mev:gas:0xabc", 80_000_000, time.Hour))

	mock.ExpectGet("mev:gas:0xabc").SetVal("80000000")
	v, ok, err := store.Get(ctx, "mev:gas:0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(80_000_000), v)

	mock.ExpectGet("mev:gas:0xbad").SetVal("not-a-number")
	_, _, err = store.Get(ctx, "mev:gas:0xbad")
	require.ErrorContains(t, err, "parse")

	mock.ExpectGet("mev:gas:0xdown").SetErr(errors.New("connection refused"))
	_, _, err = store.Get(ctx, "mev:gas:0xdown")
	require.ErrorContains(t, err, "connection refused")

	mock.ExpectSet("mev:gas:0xdown", "1", time.Minute).SetErr(errors.New("READONLY"))
	err = store.Set(ctx, "mev:gas:0xdown", 1, time.Minute)
	require.ErrorContains(t, err, "READONLY")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisStore_NilClient(t *testing.T) {
	t.Parallel()
	s, err := NewRedisStore(nil)
	require.ErrorContains(t, err, "invalid redis client")
	require.Nil(t, s)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	defer store.Close()
	ctx := t.Context()

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", 42, time.Hour))
	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), v)

	require.NoError(t, store.Set(ctx, "short", 7, 20*time.Millisecond))
	require.Eventually(t, func() bool {
		_, ok, _ := store.Get(ctx, "short")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
