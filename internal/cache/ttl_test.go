package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL_SetGet(t *testing.T) {
	c := NewTTL[int](4, time.Minute)
	c.Set("a", 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTL_Expiry(t *testing.T) {
	c := NewTTL[string](4, 10*time.Millisecond)
	c.Set("a", "x")
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTL_EvictsOldestOverCapacity(t *testing.T) {
	c := NewTTL[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTL_GetOrLoad(t *testing.T) {
	c := NewTTL[int](4, time.Minute)
	loads := 0
	load := func() (int, error) { loads++; return 42, nil }

	v, err := c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, loads, "second lookup should hit the cache")
}

func TestTTL_GetOrLoadErrorNotCached(t *testing.T) {
	c := NewTTL[int](4, time.Minute)
	boom := errors.New("boom")
	loads := 0

	_, err := c.GetOrLoad("k", func() (int, error) { loads++; return 0, boom })
	require.ErrorIs(t, err, boom)

	v, err := c.GetOrLoad("k", func() (int, error) { loads++; return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, loads)
}
