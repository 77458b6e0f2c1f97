package storefront_test

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/gameshop/internal/application/storefront"
	"github.com/Zhima-Mochi/gameshop/internal/domain/catalog"
	"github.com/Zhima-Mochi/gameshop/internal/domain/ledger"
	"github.com/Zhima-Mochi/gameshop/internal/domain/player"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueries(t *testing.T) (*storefront.Queries, *memory.SessionRepository) {
	t.Helper()
	cat, err := catalog.New([]catalog.Item{
		{Key: "axe", Name: "War Axe", Description: "Heavy.", Price: 250, Category: catalog.CategoryWeapon, AssetRef: "Axe2H_Epic"},
		{Key: "bow", Name: "War Bow", Price: 180, Category: catalog.CategoryWeapon, AssetRef: "Bow_Epic"},
	})
	require.NoError(t, err)
	sessions := memory.NewSessionRepository(200, 2)
	return storefront.NewQueries(cat, sessions, observability.Nop()), sessions
}

func TestCatalogKeepsOrderAndTooltips(t *testing.T) {
	q, _ := newQueries(t)
	entries := q.Catalog()
	require.Len(t, entries, 2)
	assert.Equal(t, "axe", entries[0].Key)
	assert.Equal(t, "War Axe\nHeavy.", entries[0].Tooltip)
	assert.Equal(t, "War Bow", entries[1].Tooltip)
}

func TestBalanceAndCanAfford(t *testing.T) {
	q, _ := newQueries(t)
	ctx := context.Background()

	w, err := q.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), w.Balance)

	for range 3 {
		ok, err := q.CanAfford(ctx, "p1", 180)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := q.CanAfford(ctx, "p1", 250)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = q.CanAfford(ctx, "p1", -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)

	_, err = q.Balance(ctx, "")
	assert.ErrorIs(t, err, player.ErrPlayerIDRequired)
}

func TestInventoryView(t *testing.T) {
	q, sessions := newQueries(t)
	ctx := context.Background()

	view, err := q.Inventory(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Capacity)
	assert.Zero(t, view.Occupied)
	assert.False(t, view.Full)
	assert.Empty(t, view.Slots)

	s, err := sessions.Load(ctx, "p1")
	require.NoError(t, err)
	_, err = s.Inventory.Allocate(&catalog.Item{Key: "axe", Name: "War Axe", AssetRef: "Axe2H_Epic"})
	require.NoError(t, err)
	_, err = s.Inventory.Allocate(&catalog.Item{Key: "bow", Name: "War Bow", AssetRef: "Bow_Epic"})
	require.NoError(t, err)

	view, err = q.Inventory(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, view.Full)
	require.Len(t, view.Slots, 2)
	assert.Equal(t, storefront.SlotView{Index: 1, ItemKey: "bow", ItemName: "War Bow", AssetRef: "Bow_Epic"}, view.Slots[1])
}
