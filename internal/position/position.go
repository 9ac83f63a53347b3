// Package position implements the Position Monitor (C8): one evaluator per
// OPEN position with an exit rule, ticked by a single global cooperative
// task and dispatching triggered positions to the Exit Executor (§4.8).
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vortexsol/sniperbot/internal/bus"
	"github.com/vortexsol/sniperbot/internal/pricefeed"
	"github.com/vortexsol/sniperbot/internal/store"
	"github.com/vortexsol/sniperbot/internal/types"
)

// PriceLookup is the narrow Price Feed capability the monitor needs.
type PriceLookup interface {
	GetPrice(ctx context.Context, mint string, forceRefresh bool) (*types.PriceSample, error)
}

// Exiter is the Exit Executor capability a triggered position is dispatched
// to. Expressed as an interface rather than a concrete type so the monitor
// and the exit executor never hold a strong reference to one another (§9
// design note: "Cyclic ownership between monitor and executor").
type Exiter interface {
	Exit(ctx context.Context, position *types.Position) error
}

// Config governs the monitor's tick interval and concurrency cap (§4.8).
type Config struct {
	CheckInterval       time.Duration
	MaxConcurrentChecks int
}

// Monitor is the process-wide Position Monitor service.
type Monitor struct {
	repo   store.Repository
	prices PriceLookup
	bus    *bus.Bus
	exiter Exiter
	cfg    Config
	logger *zap.Logger

	sem chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Monitor. logger and bus may both be nil (bus publication
// is then skipped).
func New(repo store.Repository, prices PriceLookup, b *bus.Bus, exiter Exiter, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.MaxConcurrentChecks <= 0 {
		cfg.MaxConcurrentChecks = 10
	}
	return &Monitor{
		repo:   repo,
		prices: prices,
		bus:    b,
		exiter: exiter,
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxConcurrentChecks),
	}
}

// Start scans OPEN positions with a configured rule and seeds an ACTIVE
// monitor for any that lack one (§4.8: "monitors start... on process boot
// by scanning OPEN positions with rules"), then launches the global ticker.
func (m *Monitor) Start(ctx context.Context) error {
	positions, err := m.repo.ListActivePositions(ctx)
	if err != nil {
		return fmt.Errorf("position: boot scan: %w", err)
	}
	for _, p := range positions {
		if p.Status != types.PositionOpen || !p.HasRule() {
			continue
		}
		if _, err := m.repo.GetMonitorState(ctx, p.ID); errors.Is(err, store.ErrNotFound) {
			if err := m.repo.UpsertMonitorState(ctx, &types.MonitorState{
				PositionID: p.ID,
				Status:     types.MonitorActive,
			}); err != nil && m.logger != nil {
				m.logger.Warn("position: seed monitor state", zap.String("position_id", p.ID), zap.Error(err))
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

// Shutdown stops the ticker and waits for the in-flight tick to finish.
func (m *Monitor) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick is the single cooperative task described in §4.8: it fans evaluation
// of every active, ruled position out across goroutines bounded by the
// concurrency cap, and waits for all of them before the next interval.
func (m *Monitor) tick(ctx context.Context) {
	positions, err := m.repo.ListActivePositions(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("position: list active positions", zap.Error(err))
		}
		return
	}

	var wg sync.WaitGroup
	for _, p := range positions {
		if p.Status != types.PositionOpen || !p.HasRule() {
			continue
		}
		p := p
		select {
		case m.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-m.sem }()
			m.evaluate(ctx, p)
		}()
	}
	wg.Wait()
}

// evaluate runs one monitor's per-tick evaluation (§4.8 steps 1-4).
func (m *Monitor) evaluate(ctx context.Context, listed *types.Position) {
	state, err := m.repo.GetMonitorState(ctx, listed.ID)
	if err != nil {
		state = &types.MonitorState{PositionID: listed.ID, Status: types.MonitorActive}
	}
	if state.Status != types.MonitorActive {
		return
	}

	current, err := m.repo.GetPosition(ctx, listed.ID)
	if errors.Is(err, store.ErrNotFound) {
		// A monitor that loses its position row transitions to FAILED
		// (§4.8 lifecycle note).
		state.Status = types.MonitorFailed
		_ = m.repo.UpsertMonitorState(ctx, state)
		return
	}
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("position: refetch position", zap.String("position_id", listed.ID), zap.Error(err))
		}
		return
	}
	if current.Status != types.PositionOpen {
		return
	}

	sample, err := m.prices.GetPrice(ctx, current.TokenMint, false)
	if err != nil {
		var circuitOpen *pricefeed.CircuitOpenError
		if errors.As(err, &circuitOpen) {
			// Soft failure: CIRCUIT_OPEN does not count toward rule
			// triggers (§4.8 step 1).
			return
		}
		if m.logger != nil {
			m.logger.Warn("position: price fetch", zap.String("position_id", current.ID), zap.Error(err))
		}
		return
	}
	price := sample.PriceInSOL

	state.LastPrice = price
	state.AttemptCount++

	if current.TrailingStopEnabled && price > current.HighestObservedPrice {
		current.HighestObservedPrice = price
		if err := m.repo.UpdatePosition(ctx, current); err != nil && m.logger != nil {
			m.logger.Warn("position: persist highest price", zap.String("position_id", current.ID), zap.Error(err))
		}
	}

	triggered, reason := EvaluateRules(current, price)
	if !triggered {
		_ = m.repo.UpsertMonitorState(ctx, state)
		return
	}

	state.Status = types.MonitorExiting
	_ = m.repo.UpsertMonitorState(ctx, state)

	if m.bus != nil {
		_ = m.bus.Publish(ctx, bus.ChannelPositionEvents, "position.exit_triggered", "position-monitor", map[string]any{
			"position_id": current.ID,
			"reason":      reason,
			"price":       price,
		})
	}

	if err := m.exiter.Exit(ctx, current); err != nil {
		state.Status = types.MonitorFailed
		_ = m.repo.UpsertMonitorState(ctx, state)
		if m.logger != nil {
			m.logger.Error("position: exit dispatch failed", zap.String("position_id", current.ID), zap.Error(err))
		}
		return
	}
	state.Status = types.MonitorCompleted
	_ = m.repo.UpsertMonitorState(ctx, state)
}

// EvaluateRules applies the §4.8 step 3 priority order — stop-loss beats
// trailing-stop beats take-profit — and returns whether price triggers an
// exit, plus which rule fired.
func EvaluateRules(p *types.Position, price float64) (bool, string) {
	if p.StopLossPct != nil {
		slPrice := p.EntryPrice * (1 - *p.StopLossPct/100)
		if price <= slPrice {
			return true, "stop_loss"
		}
	}
	if p.TrailingStopEnabled && p.TrailingStopPct != nil {
		trailingPrice := p.HighestObservedPrice * (1 - *p.TrailingStopPct/100)
		if price <= trailingPrice {
			return true, "trailing_stop"
		}
	}
	if p.TakeProfitPct != nil {
		tpPrice := p.EntryPrice * (1 + *p.TakeProfitPct/100)
		if price >= tpPrice {
			return true, "take_profit"
		}
	}
	return false, ""
}
