package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("missing tenant is not found", func(t *testing.T) {
		_, err := store.GetByTenant(ctx, "tenant-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("upsert then get", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, &Settings{
			TenantID:        "tenant-1",
			OpenRouterKey:   "key-1",
			OpenRouterModel: "some/model",
		}))

		got, err := store.GetByTenant(ctx, "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, "key-1", got.OpenRouterKey)
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("upsert replaces existing values", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, &Settings{
			TenantID:      "tenant-1",
			OpenRouterKey: "key-2",
			Admin:         true,
		}))

		got, err := store.GetByTenant(ctx, "tenant-1")
		require.NoError(t, err)
		assert.Equal(t, "key-2", got.OpenRouterKey)
		assert.True(t, got.Admin)
		assert.Empty(t, got.OpenRouterModel)
	})
}
