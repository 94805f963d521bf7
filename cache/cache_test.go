package cache

import (
	"testing"

	"github.com/aukilabs/tessera/models"
	"github.com/stretchr/testify/require"
)

type disposableResource struct {
	disposed bool
}

func (r *disposableResource) Dispose() {
	r.disposed = true
}

func key(node string) models.CommandKey {
	return models.CommandKey{
		Layer: 1,
		Node:  node,
		URL:   "http://localhost/" + node,
	}
}

func TestCacheGetPut(t *testing.T) {
	c, err := New(10, 5)
	require.NoError(t, err)

	_, ok := c.Get(key("a"), 0)
	require.False(t, ok)

	version := c.Put(key("a"), "a1", 0)
	require.Equal(t, uint64(1), version)

	res, ok := c.Get(key("a"), 1)
	require.True(t, ok)
	require.Equal(t, "a1", res)

	t.Run("get is idempotent", func(t *testing.T) {
		res2, ok := c.Get(key("a"), 1)
		require.True(t, ok)
		require.Equal(t, res, res2)
		require.Equal(t, 1, c.Len())
	})

	t.Run("put replaces the resident copy", func(t *testing.T) {
		version := c.Put(key("a"), "a2", 2)
		require.Equal(t, uint64(2), version)
		require.Equal(t, 1, c.Len())

		evicted := c.Flush(2)
		require.Len(t, evicted, 1)
		require.Equal(t, "a1", evicted[0].Resource)
		require.Equal(t, uint64(1), evicted[0].Version)
	})
}

func TestCacheFlush(t *testing.T) {
	c, err := New(10, 5)
	require.NoError(t, err)

	c.Put(key("a"), "a", 0)
	c.Put(key("b"), "b", 0)

	t.Run("entries within the grace window stay", func(t *testing.T) {
		require.Empty(t, c.Flush(5))
		require.Equal(t, 2, c.Len())
	})

	t.Run("touched entries stay", func(t *testing.T) {
		require.True(t, c.Touch(key("b"), 4))
		require.False(t, c.Touch(key("c"), 4))

		evicted := c.Flush(6)
		require.Len(t, evicted, 1)
		require.Equal(t, key("a"), evicted[0].Key)
		require.Equal(t, 1, c.Len())
	})

	t.Run("expired entries are evicted", func(t *testing.T) {
		evicted := c.Flush(10)
		require.Len(t, evicted, 1)
		require.Equal(t, key("b"), evicted[0].Key)
		require.Zero(t, c.Len())
	})
}

func TestCacheCapacity(t *testing.T) {
	c, err := New(2, 100)
	require.NoError(t, err)

	a := &disposableResource{}
	c.Put(key("a"), a, 0)
	c.Put(key("b"), "b", 0)
	c.Put(key("c"), "c", 0)
	require.Equal(t, 2, c.Len())

	evicted := c.Flush(1)
	require.Len(t, evicted, 1)
	require.Equal(t, key("a"), evicted[0].Key)

	Dispose(evicted)
	require.True(t, a.disposed)
}

func TestCacheRemove(t *testing.T) {
	c, err := New(2, 100)
	require.NoError(t, err)

	c.Put(key("a"), "a", 0)
	c.Remove(key("a"))
	require.Zero(t, c.Len())
	require.Len(t, c.Flush(0), 1)
}
