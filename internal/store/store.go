// Package store implements the persistent Repository (users, wallets,
// orders, positions, monitors) backing the services described in §3 of the
// data model. The production adapter is Postgres via pgx/v5; schema changes
// are applied with golang-migrate.
package store

import (
	"context"
	"errors"

	"github.com/vortexsol/sniperbot/internal/types"
)

// ErrNotFound is returned by Repository lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// Repository is the persistence boundary every service in cmd/sniperd
// depends on. Nothing above this interface knows it is talking to Postgres.
type Repository interface {
	// Users & wallets
	CreateUser(ctx context.Context, u *types.User) error
	GetUser(ctx context.Context, userID string) (*types.User, error)
	CreateWallet(ctx context.Context, w *types.Wallet) error
	GetActiveWallet(ctx context.Context, userID string) (*types.Wallet, error)
	SetActiveWallet(ctx context.Context, userID, walletID string) error

	// Orders
	CreateOrder(ctx context.Context, o *types.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, status types.OrderStatus, txSignature string) error
	SetOrderCommission(ctx context.Context, orderID string, commissionUSD float64) error
	GetOrder(ctx context.Context, orderID string) (*types.Order, error)
	ListStuckOrders(ctx context.Context, olderThanSeconds int) ([]*types.Order, error)

	// Positions
	CreatePosition(ctx context.Context, p *types.Position) error
	UpdatePosition(ctx context.Context, p *types.Position) error
	GetPosition(ctx context.Context, positionID string) (*types.Position, error)
	ListActivePositions(ctx context.Context) ([]*types.Position, error)

	// Monitors
	UpsertMonitorState(ctx context.Context, m *types.MonitorState) error
	GetMonitorState(ctx context.Context, positionID string) (*types.MonitorState, error)

	Close()
}
