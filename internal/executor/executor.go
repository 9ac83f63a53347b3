// Package executor implements the Trade Executor (C7): acquires a signing
// keypair from the vault, persists the order intent, calls the DEX router,
// and reconciles the outcome (§4.7).
package executor

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vortexsol/sniperbot/internal/router"
	"github.com/vortexsol/sniperbot/internal/store"
	"github.com/vortexsol/sniperbot/internal/types"
	"github.com/vortexsol/sniperbot/internal/vault"
	"github.com/vortexsol/sniperbot/pkg/sol"
)

// PriceLookup is the narrow slice of the Price Feed the executor needs to
// convert a settled amount into a commission figure. *pricefeed.Feed
// satisfies this structurally.
type PriceLookup interface {
	GetPrice(ctx context.Context, mint string, forceRefresh bool) (*types.PriceSample, error)
}

// Config governs commission accounting and the platform fee forwarded to
// the router (§4.7).
type Config struct {
	CommissionBps      int
	PlatformFeeBps     int
	FeeAccount         string
	MinCommissionUSD   float64
	SlippageBpsDefault int
	SOLUSDPrice        float64
}

// platformFeeEnabled reports whether both platform-fee inputs are present
// (§4.7: "If either is absent platform fee is disabled").
func (c Config) platformFeeEnabled() bool {
	return c.PlatformFeeBps > 0 && c.FeeAccount != ""
}

// TradeRequest is the input to Execute (§4.7). At least one of Password or
// SessionToken is required; SessionToken takes priority when both are set.
type TradeRequest struct {
	UserID       string
	InputMint    string
	OutputMint   string
	AmountIn     math.Int
	SlippageBps  int
	Password     string
	SessionToken string
}

// TradeResult is the outcome of a completed swap (§4.7).
type TradeResult struct {
	OrderID        string
	Signature      string
	InputMint      string
	OutputMint     string
	InputAmount    math.Int
	OutputAmount   math.Int
	PriceImpactPct float64
	CommissionUSD  float64
	Slot           uint64
}

// SwapFailedError wraps a router failure surfaced to the caller (§7:
// "SWAP_FAILED{reason}").
type SwapFailedError struct {
	Reason string
	Err    error
}

func (e *SwapFailedError) Error() string { return fmt.Sprintf("executor: swap failed: %s", e.Reason) }
func (e *SwapFailedError) Unwrap() error { return e.Err }

// Executor is the process-wide Trade Executor service.
type Executor struct {
	vault  *vault.Vault
	repo   store.Repository
	router router.Router
	prices PriceLookup
	cfg    Config
	logger *zap.Logger

	feeAccount solana.PublicKey
}

// New constructs an Executor. logger may be nil.
func New(v *vault.Vault, repo store.Repository, r router.Router, prices PriceLookup, cfg Config, logger *zap.Logger) (*Executor, error) {
	ex := &Executor{vault: v, repo: repo, router: r, prices: prices, cfg: cfg, logger: logger}
	if cfg.platformFeeEnabled() {
		acct, err := solana.PublicKeyFromBase58(cfg.FeeAccount)
		if err != nil {
			return nil, fmt.Errorf("executor: parse fee account: %w", err)
		}
		ex.feeAccount = acct
	}
	return ex, nil
}

// Execute runs a single trade end to end (§4.7, steps 1-5).
func (ex *Executor) Execute(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	kp, err := ex.acquireKeypair(ctx, req)
	if err != nil {
		return nil, err
	}
	cleared := false
	defer func() {
		if !cleared {
			vault.ClearKeypair(kp)
		}
	}()

	side := determineSide(req.InputMint, req.OutputMint)
	order := &types.Order{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		TokenMint: tokenMintFor(side, req.InputMint, req.OutputMint),
		Side:      side,
		AmountIn:  req.AmountIn.Uint64(),
		Status:    types.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := ex.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("executor: persist order: %w", err)
	}

	slippageBps := req.SlippageBps
	if slippageBps <= 0 {
		slippageBps = ex.cfg.SlippageBpsDefault
	}

	quote, err := ex.router.GetQuote(ctx, req.InputMint, req.OutputMint, req.AmountIn)
	if err != nil {
		return nil, ex.fail(ctx, order, err)
	}
	minOut := applySlippage(quote.AmountOut, slippageBps)

	swapReq := router.SwapRequest{
		Signer:         signerPtr(kp),
		InputMint:      req.InputMint,
		OutputMint:     req.OutputMint,
		AmountIn:       req.AmountIn,
		MinAmountOut:   minOut,
		PlatformFeeBps: ex.cfg.PlatformFeeBps,
		FeeAccount:     ex.feeAccount,
	}
	if !ex.cfg.platformFeeEnabled() {
		swapReq.PlatformFeeBps = 0
	}

	result, swapErr := ex.router.Swap(ctx, swapReq)

	// §4.7 step 4: zeroize before interpreting the result. The deferred
	// ClearKeypair above covers a panic or early return before this point;
	// once cleared is set it does nothing.
	vault.ClearKeypair(kp)
	cleared = true

	if swapErr != nil {
		return nil, ex.fail(ctx, order, swapErr)
	}

	commissionUSD := ex.computeCommissionUSD(ctx, req.OutputMint, result.AmountOut)

	go ex.finalizeFilled(order.ID, result.Signature, commissionUSD)

	return &TradeResult{
		OrderID:       order.ID,
		Signature:     result.Signature,
		InputMint:     req.InputMint,
		OutputMint:    req.OutputMint,
		InputAmount:   req.AmountIn,
		OutputAmount:  result.AmountOut,
		CommissionUSD: commissionUSD,
	}, nil
}

// acquireKeypair implements §4.7 step 1. SessionToken is preferred over a
// supplied Password; neither present yields INVALID_PASSWORD without ever
// touching the router.
func (ex *Executor) acquireKeypair(ctx context.Context, req TradeRequest) (*vault.Keypair, error) {
	switch {
	case req.SessionToken != "":
		return ex.vault.KeypairForSigning(ctx, req.SessionToken)
	case req.Password != "":
		return ex.vault.KeypairForSigningWithPassword(ctx, req.UserID, req.Password)
	default:
		return nil, vault.ErrInvalidPassword
	}
}

// fail transitions order to failed (best-effort, synchronous — the order
// row must reflect failure before Execute returns a cancelable user error)
// and wraps cause as a SwapFailedError.
func (ex *Executor) fail(ctx context.Context, order *types.Order, cause error) error {
	if err := ex.repo.UpdateOrderStatus(ctx, order.ID, types.OrderStatusFailed, ""); err != nil && ex.logger != nil {
		ex.logger.Warn("executor: mark order failed", zap.String("order_id", order.ID), zap.Error(err))
	}
	return &SwapFailedError{Reason: cause.Error(), Err: cause}
}

// finalizeFilled persists the successful-swap outcome. Run detached from
// the caller per §5's fire-and-forget note for post-swap DB writes.
func (ex *Executor) finalizeFilled(orderID, signature string, commissionUSD float64) {
	ctx := context.Background()
	if err := ex.repo.UpdateOrderStatus(ctx, orderID, types.OrderStatusFilled, signature); err != nil {
		if ex.logger != nil {
			ex.logger.Error("executor: mark order filled", zap.String("order_id", orderID), zap.Error(err))
		}
		return
	}
	if err := ex.repo.SetOrderCommission(ctx, orderID, commissionUSD); err != nil && ex.logger != nil {
		ex.logger.Error("executor: record commission", zap.String("order_id", orderID), zap.Error(err))
	}
}

// computeCommissionUSD converts amountOut of mint to USD via the Price Feed
// and applies commission_bps, floored at min_commission_usd (§4.7 step 5).
// A fetch failure logs and falls back to the floor rather than blocking the
// already-settled trade. Token decimal places are not modeled generically
// (§1 non-goal: no on-chain layout knowledge) so amountOut is treated as
// 9-decimal, the native SOL scale; for SPL outputs with a different decimal
// count this is a deliberate approximation.
func (ex *Executor) computeCommissionUSD(ctx context.Context, mint string, amountOut math.Int) float64 {
	floor := ex.cfg.MinCommissionUSD

	sample, err := ex.prices.GetPrice(ctx, mint, false)
	if err != nil {
		if ex.logger != nil {
			ex.logger.Warn("executor: commission price lookup failed, using floor", zap.String("mint", mint), zap.Error(err))
		}
		return floor
	}

	amountOutUnits := amountOut.ToLegacyDec().MustFloat64() / 1e9
	notionalSOL := amountOutUnits * sample.PriceInSOL
	notionalUSD := notionalSOL * ex.cfg.SOLUSDPrice

	commission := notionalUSD * float64(ex.cfg.CommissionBps) / 10_000
	if commission < floor {
		return floor
	}
	return commission
}

func determineSide(inputMint, outputMint string) types.OrderSide {
	switch {
	case isSOL(inputMint):
		return types.OrderSideBuy
	case isSOL(outputMint):
		return types.OrderSideSell
	default:
		return types.OrderSideSwap
	}
}

func tokenMintFor(side types.OrderSide, inputMint, outputMint string) string {
	if side == types.OrderSideSell {
		return inputMint
	}
	return outputMint
}

func isSOL(mint string) bool { return mint == sol.WSOL.String() }

// applySlippage returns the minimum acceptable output for quoted at the
// given basis-point tolerance.
func applySlippage(quoted math.Int, slippageBps int) math.Int {
	if slippageBps <= 0 {
		return quoted
	}
	num := math.NewInt(int64(10_000 - slippageBps))
	return quoted.Mul(num).Quo(math.NewInt(10_000))
}

func signerPtr(kp *vault.Keypair) *solana.PrivateKey {
	pk := kp.PrivateKey()
	return &pk
}
