package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := New(store, 5, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return svc
}

func TestToleranceMinutes(t *testing.T) {
	ctx := context.Background()

	t.Run("unset key uses default", func(t *testing.T) {
		svc := newService(t, NewInMemoryStore())
		assert.Equal(t, 5, svc.ToleranceMinutes(ctx))
	})

	t.Run("stored value wins and is cached", func(t *testing.T) {
		store := NewInMemoryStore()
		require.NoError(t, store.Set(ctx, KeyToleranceMinutes, "10"))
		svc := newService(t, store)

		assert.Equal(t, 10, svc.ToleranceMinutes(ctx))
		require.NoError(t, store.Set(ctx, KeyToleranceMinutes, "15"))
		assert.Equal(t, 10, svc.ToleranceMinutes(ctx))
		assert.Equal(t, uint64(1), svc.CacheStats().Hits)

		svc.Invalidate()
		assert.Equal(t, 15, svc.ToleranceMinutes(ctx))
	})

	t.Run("malformed value uses default", func(t *testing.T) {
		store := NewInMemoryStore()
		require.NoError(t, store.Set(ctx, KeyToleranceMinutes, "ten"))
		assert.Equal(t, 5, newService(t, store).ToleranceMinutes(ctx))

		require.NoError(t, store.Set(ctx, KeyToleranceMinutes, "-3"))
		assert.Equal(t, 5, newService(t, store).ToleranceMinutes(ctx))
	})

	t.Run("store failure uses default and retries next time", func(t *testing.T) {
		store := NewInMemoryStore()
		require.NoError(t, store.Set(ctx, KeyToleranceMinutes, "7"))
		store.FailWith(errors.New("connection refused"))
		svc := newService(t, store)

		assert.Equal(t, 5, svc.ToleranceMinutes(ctx))
		store.FailWith(nil)
		assert.Equal(t, 7, svc.ToleranceMinutes(ctx))
	})
}

func TestNew(t *testing.T) {
	_, err := New(nil, 5)
	require.Error(t, err)

	_, err = New(NewInMemoryStore(), -1)
	require.Error(t, err)
}
