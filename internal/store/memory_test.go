package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexsol/sniperbot/internal/types"
)

func TestMemoryRepositorySetActiveWalletIsExclusive(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	require.NoError(t, r.CreateUser(ctx, &types.User{ID: "u1", ChatID: "c1"}))
	require.NoError(t, r.CreateWallet(ctx, &types.Wallet{ID: "w1", UserID: "u1", Active: true}))
	require.NoError(t, r.CreateWallet(ctx, &types.Wallet{ID: "w2", UserID: "u1", Active: false}))

	require.NoError(t, r.SetActiveWallet(ctx, "u1", "w2"))

	active, err := r.GetActiveWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "w2", active.ID)
}

func TestMemoryRepositoryListStuckOrders(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	require.NoError(t, r.CreateOrder(ctx, &types.Order{ID: "o1", UserID: "u1", Status: types.OrderStatusPending}))
	require.NoError(t, r.CreateOrder(ctx, &types.Order{ID: "o2", UserID: "u1", Status: types.OrderStatusFilled}))

	stuck, err := r.ListStuckOrders(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "o1", stuck[0].ID)
}

func TestMemoryRepositoryGetOrderNotFound(t *testing.T) {
	r := NewMemoryRepository()
	_, err := r.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
