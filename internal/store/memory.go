package store

import (
	"context"
	"sync"
	"time"

	"github.com/vortexsol/sniperbot/internal/types"
)

// MemoryRepository is an in-process Repository used by tests and local
// development, mirroring the shape of PostgresRepository without a
// database dependency.
type MemoryRepository struct {
	mu        sync.Mutex
	users     map[string]*types.User
	wallets   map[string]*types.Wallet
	orders    map[string]*types.Order
	positions map[string]*types.Position
	monitors  map[string]*types.MonitorState
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[string]*types.User),
		wallets:   make(map[string]*types.Wallet),
		orders:    make(map[string]*types.Order),
		positions: make(map[string]*types.Position),
		monitors:  make(map[string]*types.MonitorState),
	}
}

func (r *MemoryRepository) Close() {}

func (r *MemoryRepository) CreateUser(ctx context.Context, u *types.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	cp.CreatedAt = time.Now()
	r.users[u.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, userID string) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) CreateWallet(ctx context.Context, w *types.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.Active {
		for _, existing := range r.wallets {
			if existing.UserID == w.UserID {
				existing.Active = false
			}
		}
	}
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetActiveWallet(ctx context.Context, userID string) (*types.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.UserID == userID && w.Active {
			cp := *w
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) SetActiveWallet(ctx context.Context, userID, walletID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.wallets[walletID]
	if !ok || target.UserID != userID {
		return ErrNotFound
	}
	for _, w := range r.wallets {
		if w.UserID == userID {
			w.Active = false
		}
	}
	target.Active = true
	return nil
}

func (r *MemoryRepository) CreateOrder(ctx context.Context, o *types.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	now := time.Now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	r.orders[o.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateOrderStatus(ctx context.Context, orderID string, status types.OrderStatus, txSignature string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.Signature = txSignature
	o.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) SetOrderCommission(ctx context.Context, orderID string, commissionUSD float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.CommissionUSD = commissionUSD
	o.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) ListStuckOrders(ctx context.Context, olderThanSeconds int) ([]*types.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var out []*types.Order
	for _, o := range r.orders {
		if o.Status == types.OrderStatusPending && o.CreatedAt.Before(cutoff) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreatePosition(ctx context.Context, p *types.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	now := time.Now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	r.positions[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdatePosition(ctx context.Context, p *types.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.positions[p.ID]
	if !ok {
		return ErrNotFound
	}
	existing.HighestObservedPrice = p.HighestObservedPrice
	existing.Status = p.Status
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) GetPosition(ctx context.Context, positionID string) (*types.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[positionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) ListActivePositions(ctx context.Context) ([]*types.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Position
	for _, p := range r.positions {
		if p.Status == types.PositionOpen || p.Status == types.PositionExiting {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) UpsertMonitorState(ctx context.Context, m *types.MonitorState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	cp.LastEvaluated = time.Now()
	r.monitors[m.PositionID] = &cp
	return nil
}

func (r *MemoryRepository) GetMonitorState(ctx context.Context, positionID string) (*types.MonitorState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[positionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

var _ Repository = (*MemoryRepository)(nil)
