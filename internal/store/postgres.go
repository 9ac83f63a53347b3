package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vortexsol/sniperbot/internal/types"
)

// PostgresRepository is the production Repository adapter backed by pgx/v5.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects a pool to connStr and verifies reachability.
func NewPostgresRepository(ctx context.Context, connStr string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pgx pool.
func (r *PostgresRepository) Pool() *pgxpool.Pool { return r.pool }

func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *PostgresRepository) CreateUser(ctx context.Context, u *types.User) error {
	const q = `INSERT INTO users (id, chat_id, created_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, u.ID, u.ChatID)
	return err
}

func (r *PostgresRepository) GetUser(ctx context.Context, userID string) (*types.User, error) {
	const q = `SELECT id, chat_id, created_at FROM users WHERE id = $1`
	var u types.User
	err := r.pool.QueryRow(ctx, q, userID).Scan(&u.ID, &u.ChatID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) CreateWallet(ctx context.Context, w *types.Wallet) error {
	const q = `INSERT INTO wallets (id, user_id, public_address, encrypted_key, chain, active)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q, w.ID, w.UserID, w.PublicAddress, w.EncryptedKey, w.Chain, w.Active)
	return err
}

func (r *PostgresRepository) GetActiveWallet(ctx context.Context, userID string) (*types.Wallet, error) {
	const q = `SELECT id, user_id, public_address, encrypted_key, chain, active
		FROM wallets WHERE user_id = $1 AND active = true LIMIT 1`
	var w types.Wallet
	err := r.pool.QueryRow(ctx, q, userID).Scan(&w.ID, &w.UserID, &w.PublicAddress, &w.EncryptedKey, &w.Chain, &w.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active wallet: %w", err)
	}
	return &w, nil
}

// SetActiveWallet atomically deactivates the user's current wallet(s) and
// activates walletID, so "the" active wallet invariant always holds.
func (r *PostgresRepository) SetActiveWallet(ctx context.Context, userID, walletID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("set active wallet: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE wallets SET active = false WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("set active wallet: deactivate: %w", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE wallets SET active = true WHERE id = $1 AND user_id = $2`, walletID, userID)
	if err != nil {
		return fmt.Errorf("set active wallet: activate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) CreateOrder(ctx context.Context, o *types.Order) error {
	const q = `INSERT INTO orders (id, user_id, token_mint, side, amount_in, status, signature, commission_usd, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`
	_, err := r.pool.Exec(ctx, q, o.ID, o.UserID, o.TokenMint, o.Side, o.AmountIn, o.Status, o.Signature, o.CommissionUSD)
	return err
}

func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID string, status types.OrderStatus, txSignature string) error {
	const q = `UPDATE orders SET status = $2, signature = $3, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, orderID, status, txSignature)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetOrderCommission(ctx context.Context, orderID string, commissionUSD float64) error {
	const q = `UPDATE orders SET commission_usd = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, orderID, commissionUSD)
	if err != nil {
		return fmt.Errorf("set order commission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	const q = `SELECT id, user_id, token_mint, side, amount_in, status, signature, commission_usd, created_at, updated_at
		FROM orders WHERE id = $1`
	var o types.Order
	err := r.pool.QueryRow(ctx, q, orderID).Scan(
		&o.ID, &o.UserID, &o.TokenMint, &o.Side, &o.AmountIn, &o.Status, &o.Signature, &o.CommissionUSD, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// ListStuckOrders returns pending orders older than olderThanSeconds (§13
// supplemented feature); no job in this module calls it.
func (r *PostgresRepository) ListStuckOrders(ctx context.Context, olderThanSeconds int) ([]*types.Order, error) {
	const q = `SELECT id, user_id, token_mint, side, amount_in, status, signature, commission_usd, created_at, updated_at
		FROM orders WHERE status = $1 AND created_at < now() - make_interval(secs => $2)`
	rows, err := r.pool.Query(ctx, q, types.OrderStatusPending, olderThanSeconds)
	if err != nil {
		return nil, fmt.Errorf("list stuck orders: %w", err)
	}
	defer rows.Close()

	var out []*types.Order
	for rows.Next() {
		var o types.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TokenMint, &o.Side, &o.AmountIn, &o.Status, &o.Signature, &o.CommissionUSD, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list stuck orders: scan: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreatePosition(ctx context.Context, p *types.Position) error {
	const q = `INSERT INTO positions
		(id, user_id, token_mint, entry_amount_in, entry_amount_out, entry_price,
		 take_profit_pct, stop_loss_pct, trailing_stop_enabled, trailing_stop_pct,
		 highest_observed_price, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now(), now())`
	_, err := r.pool.Exec(ctx, q,
		p.ID, p.UserID, p.TokenMint, p.EntryAmountIn, p.EntryAmountOut, p.EntryPrice,
		p.TakeProfitPct, p.StopLossPct, p.TrailingStopEnabled, p.TrailingStopPct,
		p.HighestObservedPrice, p.Status)
	return err
}

func (r *PostgresRepository) UpdatePosition(ctx context.Context, p *types.Position) error {
	const q = `UPDATE positions SET
		highest_observed_price = $2, status = $3, updated_at = now()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, p.ID, p.HighestObservedPrice, p.Status)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) GetPosition(ctx context.Context, positionID string) (*types.Position, error) {
	const q = `SELECT id, user_id, token_mint, entry_amount_in, entry_amount_out, entry_price,
		take_profit_pct, stop_loss_pct, trailing_stop_enabled, trailing_stop_pct,
		highest_observed_price, status, created_at, updated_at
		FROM positions WHERE id = $1`
	var p types.Position
	err := r.pool.QueryRow(ctx, q, positionID).Scan(
		&p.ID, &p.UserID, &p.TokenMint, &p.EntryAmountIn, &p.EntryAmountOut, &p.EntryPrice,
		&p.TakeProfitPct, &p.StopLossPct, &p.TrailingStopEnabled, &p.TrailingStopPct,
		&p.HighestObservedPrice, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) ListActivePositions(ctx context.Context) ([]*types.Position, error) {
	const q = `SELECT id, user_id, token_mint, entry_amount_in, entry_amount_out, entry_price,
		take_profit_pct, stop_loss_pct, trailing_stop_enabled, trailing_stop_pct,
		highest_observed_price, status, created_at, updated_at
		FROM positions WHERE status IN ($1, $2)`
	rows, err := r.pool.Query(ctx, q, types.PositionOpen, types.PositionExiting)
	if err != nil {
		return nil, fmt.Errorf("list active positions: %w", err)
	}
	defer rows.Close()

	var out []*types.Position
	for rows.Next() {
		var p types.Position
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.TokenMint, &p.EntryAmountIn, &p.EntryAmountOut, &p.EntryPrice,
			&p.TakeProfitPct, &p.StopLossPct, &p.TrailingStopEnabled, &p.TrailingStopPct,
			&p.HighestObservedPrice, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list active positions: scan: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpsertMonitorState(ctx context.Context, m *types.MonitorState) error {
	const q = `INSERT INTO monitor_states (position_id, status, attempt_count, last_price, last_evaluated)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (position_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempt_count = EXCLUDED.attempt_count,
			last_price = EXCLUDED.last_price,
			last_evaluated = now()`
	_, err := r.pool.Exec(ctx, q, m.PositionID, m.Status, m.AttemptCount, m.LastPrice)
	return err
}

func (r *PostgresRepository) GetMonitorState(ctx context.Context, positionID string) (*types.MonitorState, error) {
	const q = `SELECT position_id, status, attempt_count, last_price, last_evaluated
		FROM monitor_states WHERE position_id = $1`
	var m types.MonitorState
	err := r.pool.QueryRow(ctx, q, positionID).Scan(&m.PositionID, &m.Status, &m.AttemptCount, &m.LastPrice, &m.LastEvaluated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor state: %w", err)
	}
	return &m, nil
}

var _ Repository = (*PostgresRepository)(nil)
