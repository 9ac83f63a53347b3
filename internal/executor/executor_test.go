package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexsol/sniperbot/internal/kv"
	"github.com/vortexsol/sniperbot/internal/router"
	"github.com/vortexsol/sniperbot/internal/store"
	"github.com/vortexsol/sniperbot/internal/types"
	"github.com/vortexsol/sniperbot/internal/vault"
	"github.com/vortexsol/sniperbot/pkg/sol"
)

const testPassword = "Correct-Horse9!"

type fakeWallets struct {
	byUser map[string]*types.Wallet
}

func (f *fakeWallets) GetActiveWallet(ctx context.Context, userID string) (*types.Wallet, error) {
	w, ok := f.byUser[userID]
	if !ok {
		return nil, errors.New("no wallet")
	}
	return w, nil
}

type fakeRouter struct {
	quoteOut math.Int
	quoteErr error
	swapErr  error
	swapOut  math.Int
	sig      string
}

func (r *fakeRouter) GetQuote(ctx context.Context, inputMint, outputMint string, amountIn math.Int) (router.Quote, error) {
	if r.quoteErr != nil {
		return router.Quote{}, r.quoteErr
	}
	return router.Quote{PoolID: "pool", AmountOut: r.quoteOut, ProtocolID: "raydium_v4"}, nil
}

func (r *fakeRouter) GetTokenPrice(ctx context.Context, tokenMint string) (float64, error) {
	return 0.001, nil
}

func (r *fakeRouter) Swap(ctx context.Context, req router.SwapRequest) (router.SwapResult, error) {
	if r.swapErr != nil {
		return router.SwapResult{}, r.swapErr
	}
	return router.SwapResult{Signature: r.sig, AmountOut: r.swapOut}, nil
}

type fakePrices struct {
	sample *types.PriceSample
	err    error
}

func (p *fakePrices) GetPrice(ctx context.Context, mint string, forceRefresh bool) (*types.PriceSample, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.sample, nil
}

func newTestExecutor(t *testing.T, rtr router.Router, prices PriceLookup) (*Executor, *fakeWallets, store.Repository) {
	t.Helper()
	wallets := &fakeWallets{byUser: map[string]*types.Wallet{}}
	v := vault.New(kv.NewMemoryStore(), wallets, vault.Config{
		ArgonMemoryKiB:      65536,
		ArgonIterations:     3,
		ArgonParallelism:    4,
		StrictTTL:           2 * time.Minute,
		ReuseTTL:            15 * time.Minute,
		PasswordReuseTTLSec: 900,
	})
	repo := store.NewMemoryRepository()

	ex, err := New(v, repo, rtr, prices, Config{
		CommissionBps:    50,
		MinCommissionUSD: 0.05,
		SOLUSDPrice:      150.0,
	}, nil)
	require.NoError(t, err)
	return ex, wallets, repo
}

func seedWallet(t *testing.T, ex *Executor, wallets *fakeWallets, userID string) {
	t.Helper()
	key := make([]byte, 64)
	for i := range key {
		key[i] = byte(i + 1)
	}
	blob, err := ex.vault.Encrypt(key, testPassword)
	require.NoError(t, err)
	wallets.byUser[userID] = &types.Wallet{UserID: userID, EncryptedKey: blob, Active: true}
}

func TestExecuteBuySucceedsWithPassword(t *testing.T) {
	rtr := &fakeRouter{
		quoteOut: math.NewInt(1_000_000),
		swapOut:  math.NewInt(990_000),
		sig:      "sig123",
	}
	prices := &fakePrices{sample: &types.PriceSample{PriceInSOL: 0.0005}}
	ex, wallets, repo := newTestExecutor(t, rtr, prices)
	seedWallet(t, ex, wallets, "user-1")

	result, err := ex.Execute(context.Background(), TradeRequest{
		UserID:      "user-1",
		InputMint:   sol.WSOL.String(),
		OutputMint:  "TokenMintXYZ",
		AmountIn:    math.NewInt(1_000_000_000),
		SlippageBps: 100,
		Password:    testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "sig123", result.Signature)
	assert.True(t, result.OutputAmount.Equal(math.NewInt(990_000)))
	assert.GreaterOrEqual(t, result.CommissionUSD, 0.05)

	order, err := repo.GetOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderSideBuy, order.Side)
	assert.Equal(t, "TokenMintXYZ", order.TokenMint)
}

func TestExecuteFailsWithoutCredentials(t *testing.T) {
	rtr := &fakeRouter{}
	ex, wallets, repo := newTestExecutor(t, rtr, &fakePrices{})
	seedWallet(t, ex, wallets, "user-1")

	_, err := ex.Execute(context.Background(), TradeRequest{
		UserID:     "user-1",
		InputMint:  sol.WSOL.String(),
		OutputMint: "TokenMintXYZ",
		AmountIn:   math.NewInt(1_000_000_000),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrInvalidPassword)

	orders, err := repo.ListStuckOrders(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, orders, "no order should be created when credentials are missing")
}

func TestExecuteMarksOrderFailedOnRouterError(t *testing.T) {
	rtr := &fakeRouter{
		quoteOut: math.NewInt(1_000_000),
		swapErr:  errors.New("slippage exceeded"),
	}
	ex, wallets, repo := newTestExecutor(t, rtr, &fakePrices{})
	seedWallet(t, ex, wallets, "user-1")

	_, err := ex.Execute(context.Background(), TradeRequest{
		UserID:     "user-1",
		InputMint:  sol.WSOL.String(),
		OutputMint: "TokenMintXYZ",
		AmountIn:   math.NewInt(1_000_000_000),
		Password:   testPassword,
	})
	require.Error(t, err)
	var swapErr *SwapFailedError
	require.ErrorAs(t, err, &swapErr)

	orders, err := repo.ListStuckOrders(context.Background(), -3600)
	require.NoError(t, err)
	require.Len(t, orders, 0, "ListStuckOrders only returns pending orders, and this one is now failed")
}

func TestExecutePrefersSessionOverPassword(t *testing.T) {
	rtr := &fakeRouter{
		quoteOut: math.NewInt(1_000_000),
		swapOut:  math.NewInt(990_000),
		sig:      "sig456",
	}
	ex, wallets, _ := newTestExecutor(t, rtr, &fakePrices{sample: &types.PriceSample{PriceInSOL: 0.0005}})
	seedWallet(t, ex, wallets, "user-1")

	token, _, err := ex.vault.CreateSession(context.Background(), "user-1", testPassword, vault.ModeReuse)
	require.NoError(t, err)

	result, err := ex.Execute(context.Background(), TradeRequest{
		UserID:       "user-1",
		InputMint:    sol.WSOL.String(),
		OutputMint:   "TokenMintXYZ",
		AmountIn:     math.NewInt(1_000_000_000),
		SessionToken: token,
		Password:     "wrong-password-should-be-ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "sig456", result.Signature)
}

func TestComputeCommissionFallsBackToFloorOnPriceFailure(t *testing.T) {
	rtr := &fakeRouter{}
	ex, _, _ := newTestExecutor(t, rtr, &fakePrices{err: errors.New("price feed down")})

	got := ex.computeCommissionUSD(context.Background(), "TokenMintXYZ", math.NewInt(1_000_000))
	assert.Equal(t, 0.05, got)
}
