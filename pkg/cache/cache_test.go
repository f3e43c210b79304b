package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGetDelete(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "funding:balance:a", []byte(`{"available":60}`), 0))

	val, ok, err := store.Get(ctx, "funding:balance:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"available":60}`, string(val))

	require.NoError(t, store.Delete(ctx, "funding:balance:a"))
	_, ok, err = store.Get(ctx, "funding:balance:a")
	require.NoError(t, err)
	assert.False(t, ok)

	hits, misses := store.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("x"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, _ := store.Get(ctx, "short")
	assert.False(t, ok)

	store.removeExpired()
	assert.Equal(t, 0, store.Size())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	original := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", original, 0))
	original[0] = 'z'

	val, _, _ := store.Get(ctx, "k")
	val[1] = 'z'

	again, _, _ := store.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryStoreDeleteByPrefix(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	_ = store.Set(ctx, "funding:balance:1", []byte("1"), 0)
	_ = store.Set(ctx, "funding:balance:2", []byte("2"), 0)
	_ = store.Set(ctx, "other", []byte("3"), 0)

	store.DeleteByPrefix("funding:balance:")
	assert.Equal(t, 1, store.Size())

	store.Stop()
	store.Stop()
}

func TestMemoryStoreSetNX(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "k", []byte("first"), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "k", []byte("second"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	val, _, _ := store.Get(ctx, "k")
	assert.Equal(t, "first", string(val))
}
