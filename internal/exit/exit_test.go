package exit

import (
	"context"
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
)

type fakeWallets struct {
	byUser map[string]*types.Wallet
}

func (f *fakeWallets) GetActiveWallet(ctx context.Context, userID string) (*types.Wallet, error) {
	w, ok := f.byUser[userID]
	if !ok {
		return nil, assertErr
	}
	return w, nil
}

var assertErr = &vault.Error{Code: vault.CodeWalletNotFound}

type fakeRouter struct {
	quoteOut math.Int
	swapErrs []error // consumed in order; last one repeats once exhausted
	swapOut  math.Int
	sig      string
	calls    int
}

func (r *fakeRouter) GetQuote(ctx context.Context, inputMint, outputMint string, amountIn math.Int) (router.Quote, error) {
	return router.Quote{AmountOut: r.quoteOut}, nil
}

func (r *fakeRouter) GetTokenPrice(ctx context.Context, tokenMint string) (float64, error) {
	return 0.001, nil
}

func (r *fakeRouter) Swap(ctx context.Context, req router.SwapRequest) (router.SwapResult, error) {
	idx := r.calls
	r.calls++
	var err error
	if idx < len(r.swapErrs) {
		err = r.swapErrs[idx]
	}
	if err != nil {
		return router.SwapResult{}, err
	}
	return router.SwapResult{Signature: r.sig, AmountOut: r.swapOut}, nil
}

const testPassword = "Correct-Horse9!"

func newTestExecutor(t *testing.T, rtr router.Router, cfg Config) (*Executor, store.Repository, string) {
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

	key := make([]byte, 64)
	for i := range key {
		key[i] = byte(i + 1)
	}
	blob, err := v.Encrypt(key, testPassword)
	require.NoError(t, err)
	wallets.byUser["user-1"] = &types.Wallet{UserID: "user-1", EncryptedKey: blob, Active: true}

	token, _, err := v.CreateSession(context.Background(), "user-1", testPassword, vault.ModeReuse)
	require.NoError(t, err)

	ex := New(v, repo, rtr, nil, cfg, nil)
	return ex, repo, token
}

func newHeldPosition(repo store.Repository, token string) *types.Position {
	p := &types.Position{
		ID:               "pos-1",
		UserID:           "user-1",
		TokenMint:        "TokenMintXYZ",
		EntryAmountOut:   500_000,
		Status:           types.PositionOpen,
		ExitSessionToken: token,
	}
	_ = repo.CreatePosition(context.Background(), p)
	return p
}

func TestExitSucceedsAndClosesPosition(t *testing.T) {
	rtr := &fakeRouter{quoteOut: math.NewInt(1_000_000), swapOut: math.NewInt(990_000), sig: "sell-sig"}
	ex, repo, token := newTestExecutor(t, rtr, Config{MaxAttempts: 3})
	p := newHeldPosition(repo, token)

	err := ex.Exit(context.Background(), p)
	require.NoError(t, err)

	updated, err := repo.GetPosition(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionClosed, updated.Status)
}

func TestExitRetriesTransientFailureThenSucceeds(t *testing.T) {
	rtr := &fakeRouter{
		quoteOut: math.NewInt(1_000_000),
		swapOut:  math.NewInt(990_000),
		sig:      "sell-sig-2",
		swapErrs: []error{&router.JupiterError{Code: router.CodeSubmissionFailed}},
	}
	ex, repo, token := newTestExecutor(t, rtr, Config{MaxAttempts: 3})
	p := newHeldPosition(repo, token)

	err := ex.Exit(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, rtr.calls, "first attempt transient-fails, second succeeds")
}

func TestExitAbortsImmediatelyOnTerminalFailure(t *testing.T) {
	rtr := &fakeRouter{
		quoteOut: math.NewInt(1_000_000),
		swapErrs: []error{&router.JupiterError{Code: router.CodeNoRoute}},
	}
	ex, repo, token := newTestExecutor(t, rtr, Config{MaxAttempts: 3})
	p := newHeldPosition(repo, token)

	err := ex.Exit(context.Background(), p)
	require.Error(t, err)
	var terminal *TerminalFailureError
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, 1, rtr.calls, "a terminal code must not be retried")

	unchanged, err := repo.GetPosition(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PositionOpen, unchanged.Status, "position stays OPEN on terminal failure")
}

func TestExitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	rtr := &fakeRouter{
		quoteOut: math.NewInt(1_000_000),
		swapErrs: []error{
			&router.JupiterError{Code: router.CodeNoRoute},
			&router.JupiterError{Code: router.CodeNoRoute},
		},
	}
	ex, repo, token := newTestExecutor(t, rtr, Config{MaxAttempts: 1, BreakerThreshold: 2, BreakerTimeout: time.Minute})
	p := newHeldPosition(repo, token)

	require.Error(t, ex.Exit(context.Background(), p))
	require.Error(t, ex.Exit(context.Background(), p))

	err := ex.Exit(context.Background(), p)
	require.Error(t, err)
	var openErr *BreakerOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 2, rtr.calls, "the third call must short-circuit before reaching the router")
}
