package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexsol/sniperbot/internal/pricefeed"
	"github.com/vortexsol/sniperbot/internal/store"
	"github.com/vortexsol/sniperbot/internal/types"
)

func pct(v float64) *float64 { return &v }

// TestTrailingStopProgression is the exact scenario from the core spec's
// testable properties: entry=0.001, trail=10%; highest climbs to 0.0015
// (trailing=0.00135) then 0.002 (trailing=0.0018); a price of 0.0017 is
// below the latest trailing price and must trigger.
func TestTrailingStopProgression(t *testing.T) {
	p := &types.Position{
		EntryPrice:          0.001,
		TrailingStopEnabled: true,
		TrailingStopPct:     pct(10),
	}

	p.HighestObservedPrice = 0.0015
	triggered, _ := EvaluateRules(p, 0.0015)
	assert.False(t, triggered, "price at the new high must not itself trigger")

	p.HighestObservedPrice = 0.002
	triggered, reason := EvaluateRules(p, 0.0017)
	assert.True(t, triggered)
	assert.Equal(t, "trailing_stop", reason)
}

func TestStopLossFiresWithTakeProfitConfigured(t *testing.T) {
	p := &types.Position{
		EntryPrice:    0.001,
		StopLossPct:   pct(20),
		TakeProfitPct: pct(5),
	}
	// Stop-loss sits at 0.0008 and take-profit at 0.00105, so no single
	// price crosses both; 0.00079 crosses only the stop-loss, and it must be
	// reported as such while a take-profit rule is also configured.
	triggered, reason := EvaluateRules(p, 0.00079)
	require.True(t, triggered)
	assert.Equal(t, "stop_loss", reason)
}

func TestTakeProfitTriggersWhenNoOtherRuleFires(t *testing.T) {
	p := &types.Position{EntryPrice: 0.001, TakeProfitPct: pct(10)}
	triggered, reason := EvaluateRules(p, 0.0011)
	require.True(t, triggered)
	assert.Equal(t, "take_profit", reason)
}

type fakeExiter struct {
	calls int
	err   error
}

func (f *fakeExiter) Exit(ctx context.Context, p *types.Position) error {
	f.calls++
	return f.err
}

type fakePrices struct {
	sample *types.PriceSample
	err    error
}

func (f *fakePrices) GetPrice(ctx context.Context, mint string, forceRefresh bool) (*types.PriceSample, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sample, nil
}

func newPosition(repo store.Repository, id string, tp *float64) *types.Position {
	p := &types.Position{
		ID:            id,
		UserID:        "user-1",
		TokenMint:     "TokenMintXYZ",
		EntryPrice:    0.001,
		TakeProfitPct: tp,
		Status:        types.PositionOpen,
	}
	_ = repo.CreatePosition(context.Background(), p)
	return p
}

func TestEvaluateTriggersExitAndMarksMonitorCompleted(t *testing.T) {
	repo := store.NewMemoryRepository()
	p := newPosition(repo, "pos-1", pct(10))
	require.NoError(t, repo.UpsertMonitorState(context.Background(), &types.MonitorState{PositionID: p.ID, Status: types.MonitorActive}))

	exiter := &fakeExiter{}
	prices := &fakePrices{sample: &types.PriceSample{PriceInSOL: 0.0011}}
	m := New(repo, prices, nil, exiter, Config{}, nil)

	m.evaluate(context.Background(), p)

	assert.Equal(t, 1, exiter.calls)
	state, err := repo.GetMonitorState(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MonitorCompleted, state.Status)
}

func TestEvaluateMarksMonitorFailedWhenExitDispatchErrors(t *testing.T) {
	repo := store.NewMemoryRepository()
	p := newPosition(repo, "pos-2", pct(10))
	require.NoError(t, repo.UpsertMonitorState(context.Background(), &types.MonitorState{PositionID: p.ID, Status: types.MonitorActive}))

	exiter := &fakeExiter{err: errors.New("router unavailable")}
	prices := &fakePrices{sample: &types.PriceSample{PriceInSOL: 0.0011}}
	m := New(repo, prices, nil, exiter, Config{}, nil)

	m.evaluate(context.Background(), p)

	state, err := repo.GetMonitorState(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MonitorFailed, state.Status)
}

func TestEvaluateSkipsTriggerOnCircuitOpen(t *testing.T) {
	repo := store.NewMemoryRepository()
	p := newPosition(repo, "pos-3", pct(1)) // a tiny TP that would otherwise trigger
	require.NoError(t, repo.UpsertMonitorState(context.Background(), &types.MonitorState{PositionID: p.ID, Status: types.MonitorActive}))

	exiter := &fakeExiter{}
	prices := &fakePrices{err: &pricefeed.CircuitOpenError{ResetAt: time.Now().Add(time.Minute)}}
	m := New(repo, prices, nil, exiter, Config{}, nil)

	m.evaluate(context.Background(), p)

	assert.Equal(t, 0, exiter.calls, "a CIRCUIT_OPEN price failure must not count toward a trigger")
	state, err := repo.GetMonitorState(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MonitorActive, state.Status)
}

func TestEvaluateTransitionsToFailedWhenPositionRowIsGone(t *testing.T) {
	repo := store.NewMemoryRepository()
	ghost := &types.Position{ID: "pos-ghost", Status: types.PositionOpen, TakeProfitPct: pct(10)}
	require.NoError(t, repo.UpsertMonitorState(context.Background(), &types.MonitorState{PositionID: ghost.ID, Status: types.MonitorActive}))

	m := New(repo, &fakePrices{sample: &types.PriceSample{PriceInSOL: 0.001}}, nil, &fakeExiter{}, Config{}, nil)
	m.evaluate(context.Background(), ghost)

	state, err := repo.GetMonitorState(context.Background(), ghost.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MonitorFailed, state.Status)
}

func TestStartSeedsMonitorStateForOpenPositionsWithRules(t *testing.T) {
	repo := store.NewMemoryRepository()
	newPosition(repo, "pos-boot", pct(10))

	m := New(repo, &fakePrices{}, nil, &fakeExiter{}, Config{CheckInterval: time.Hour}, nil)
	require.NoError(t, m.Start(context.Background()))
	defer m.Shutdown()

	state, err := repo.GetMonitorState(context.Background(), "pos-boot")
	require.NoError(t, err)
	assert.Equal(t, types.MonitorActive, state.Status)
}
