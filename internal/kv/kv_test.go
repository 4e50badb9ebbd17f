package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var s Store = NewMemory()

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "a", "1"))
	v, ok, _ := s.Get(ctx, "a")
	require.True(t, ok)
	require.Equal(t, "1", v)

	require.NoError(t, s.Remove(ctx, "a"))
	require.NoError(t, s.Remove(ctx, "never-set"))
	_, ok, _ = s.Get(ctx, "a")
	require.False(t, ok)
}
