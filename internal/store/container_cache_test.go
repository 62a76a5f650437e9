package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wes-simulator/internal/types"
)

type fakeSource struct {
	calls int
	items []types.OutsideContainer
	err   error
}

func (f *fakeSource) OutsideContainers(ctx context.Context) ([]types.OutsideContainer, error) {
	f.calls++
	return f.items, f.err
}

func TestContainerCache_LoadsOnce(t *testing.T) {
	src := &fakeSource{items: []types.OutsideContainer{{Code: "C1"}, {Code: "C2"}}}
	cache := NewContainerCache(src)
	cache.SetPicker(func(n int) int { return n - 1 })

	for i := 0; i < 3; i++ {
		c, ok, err := cache.Pick(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "C2", c.Code)
	}
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 2, cache.Size())
}

func TestContainerCache_EmptyNotCached(t *testing.T) {
	src := &fakeSource{}
	cache := NewContainerCache(src)

	_, ok, err := cache.Pick(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	src.items = []types.OutsideContainer{{Code: "C1"}}
	c, ok, err := cache.Pick(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "C1", c.Code)
	assert.Equal(t, 2, src.calls)
}

func TestContainerCache_Refresh(t *testing.T) {
	src := &fakeSource{items: []types.OutsideContainer{{Code: "C1"}}}
	cache := NewContainerCache(src)

	_, _, err := cache.Pick(context.Background())
	require.NoError(t, err)

	src.items = []types.OutsideContainer{{Code: "C9"}}
	cache.Refresh()
	assert.Equal(t, 0, cache.Size())

	c, ok, err := cache.Pick(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "C9", c.Code)
	assert.Equal(t, 2, src.calls)
}

func TestContainerCache_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	cache := NewContainerCache(src)

	_, ok, err := cache.Pick(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}
