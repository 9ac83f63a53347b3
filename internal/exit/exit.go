// Package exit implements the Exit Executor (C9): a reverse-swap
// orchestrator that sells a position's held token back to SOL, retrying
// with escalating priority fee and a per-user circuit breaker (§4.9).
package exit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vortexsol/sniperbot/internal/bus"
	"github.com/vortexsol/sniperbot/internal/position"
	"github.com/vortexsol/sniperbot/internal/router"
	"github.com/vortexsol/sniperbot/internal/store"
	"github.com/vortexsol/sniperbot/internal/types"
	"github.com/vortexsol/sniperbot/internal/vault"
	"github.com/vortexsol/sniperbot/pkg/sol"
)

var _ position.Exiter = (*Executor)(nil)

// Config governs retry, fee escalation, and the per-user breaker (§4.9).
type Config struct {
	MaxAttempts      int
	SlippageBps      int
	InitialFeeTier   types.PriorityFeeTier
	UseJitoBundle    bool
	JitoTipLamports  uint64
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
	BreakerSuccesses uint32
}

// BreakerOpenError is returned when a user's per-user breaker is OPEN
// (§4.9: "halts further exits for that user while OPEN").
type BreakerOpenError struct {
	UserID string
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("exit: circuit open for user %s", e.UserID)
}

// TerminalFailureError is returned when the reverse swap cannot succeed no
// matter how many attempts remain, leaving the position OPEN for a human
// (§4.9: "On terminal failure... the position is left OPEN").
type TerminalFailureError struct {
	Reason string
	Err    error
}

func (e *TerminalFailureError) Error() string { return fmt.Sprintf("exit: terminal failure: %s", e.Reason) }
func (e *TerminalFailureError) Unwrap() error { return e.Err }

// Executor is the process-wide Exit Executor service.
type Executor struct {
	vault  *vault.Vault
	repo   store.Repository
	router router.Router
	bus    *bus.Bus
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New constructs an Executor.
func New(v *vault.Vault, repo store.Repository, r router.Router, b *bus.Bus, cfg Config, logger *zap.Logger) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialFeeTier == "" {
		cfg.InitialFeeTier = types.PriorityFeeLow
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}
	if cfg.BreakerSuccesses == 0 {
		cfg.BreakerSuccesses = 1
	}
	return &Executor{
		vault:    v,
		repo:     repo,
		router:   r,
		bus:      b,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breakerFor returns the per-user breaker, creating it on first use.
func (ex *Executor) breakerFor(userID string) *gobreaker.CircuitBreaker {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if b, ok := ex.breakers[userID]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exit:" + userID,
		MaxRequests: ex.cfg.BreakerSuccesses,
		Timeout:     ex.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= ex.cfg.BreakerThreshold
		},
	})
	ex.breakers[userID] = b
	return b
}

// Exit implements position.Exiter. It constructs and retries a sell of
// position's held token back to SOL (§4.9).
func (ex *Executor) Exit(ctx context.Context, position *types.Position) error {
	breaker := ex.breakerFor(position.UserID)
	if breaker.State() == gobreaker.StateOpen {
		return &BreakerOpenError{UserID: position.UserID}
	}

	kp, err := ex.vault.KeypairForSigning(ctx, position.ExitSessionToken)
	if err != nil {
		return &TerminalFailureError{Reason: "acquire signing key", Err: err}
	}
	cleared := false
	defer func() {
		if !cleared {
			vault.ClearKeypair(kp)
		}
	}()

	tier := ex.cfg.InitialFeeTier
	var lastErr error

	amountIn := math.NewInt(int64(position.EntryAmountOut))

	for attempt := 1; attempt <= ex.cfg.MaxAttempts; attempt++ {
		minOut := math.ZeroInt()
		if quote, quoteErr := ex.router.GetQuote(ctx, position.TokenMint, sol.WSOL.String(), amountIn); quoteErr == nil {
			minOut = applySlippage(quote.AmountOut, ex.cfg.SlippageBps)
		}

		req := router.SwapRequest{
			Signer:          signerPtr(kp),
			InputMint:       position.TokenMint,
			OutputMint:      sol.WSOL.String(),
			AmountIn:        amountIn,
			MinAmountOut:    minOut,
			UseJitoBundle:   ex.cfg.UseJitoBundle,
			JitoTipLamports: ex.cfg.JitoTipLamports,
		}
		// The router capability (§6) takes no priority-fee parameter of
		// its own, so escalating the fee tier on retry only widens the
		// Jito tip below; a non-Jito submission path has no lever to pull.
		if ex.cfg.UseJitoBundle {
			req.JitoTipLamports = escalateTip(ex.cfg.JitoTipLamports, tier)
		}

		result, swapErr := breaker.Execute(func() (interface{}, error) {
			return ex.router.Swap(ctx, req)
		})

		if swapErr == nil {
			vault.ClearKeypair(kp)
			cleared = true
			swapResult := result.(router.SwapResult)
			return ex.finalizeSuccess(ctx, position, swapResult)
		}

		lastErr = swapErr
		if errors.Is(swapErr, gobreaker.ErrOpenState) || errors.Is(swapErr, gobreaker.ErrTooManyRequests) {
			vault.ClearKeypair(kp)
			cleared = true
			ex.publishFailure(ctx, position, "breaker open")
			return &BreakerOpenError{UserID: position.UserID}
		}

		if !isTransient(swapErr) {
			break
		}
		tier = tier.Escalate()
		if ex.logger != nil {
			ex.logger.Warn("exit: transient swap failure, retrying",
				zap.String("position_id", position.ID), zap.Int("attempt", attempt),
				zap.String("next_tier", string(tier)), zap.Error(swapErr))
		}
	}

	vault.ClearKeypair(kp)
	cleared = true
	ex.publishFailure(ctx, position, lastErr.Error())
	return &TerminalFailureError{Reason: lastErr.Error(), Err: lastErr}
}

// isTransient classifies a router.JupiterError per §4.9's "classify as
// transient (retry) or terminal (abort)". SLIPPAGE_EXCEEDED is treated as
// terminal: escalating priority fee does not change a stale quote, so
// retrying burns attempts without addressing the cause.
func isTransient(err error) bool {
	var jerr *router.JupiterError
	if !errors.As(err, &jerr) {
		return false
	}
	switch jerr.Code {
	case router.CodeSubmissionFailed, router.CodeQuoteStale, router.CodeSimulationFailed:
		return true
	case router.CodeNoRoute, router.CodeInsufficientFunds, router.CodeSlippageExceeded:
		return false
	default:
		return false
	}
}

func (ex *Executor) finalizeSuccess(ctx context.Context, position *types.Position, result router.SwapResult) error {
	order := &types.Order{
		ID:        uuid.NewString(),
		UserID:    position.UserID,
		TokenMint: position.TokenMint,
		Side:      types.OrderSideSell,
		AmountIn:  position.EntryAmountOut,
		Status:    types.OrderStatusFilled,
		Signature: result.Signature,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := ex.repo.CreateOrder(ctx, order); err != nil && ex.logger != nil {
		ex.logger.Error("exit: persist sell order", zap.String("position_id", position.ID), zap.Error(err))
	}

	position.Status = types.PositionClosed
	if err := ex.repo.UpdatePosition(ctx, position); err != nil {
		return fmt.Errorf("exit: mark position closed: %w", err)
	}

	if ex.bus != nil {
		_ = ex.bus.Publish(ctx, bus.ChannelPositionEvents, "position.closed", "exit-executor", map[string]any{
			"position_id": position.ID,
			"signature":   result.Signature,
		})
	}
	return nil
}

func (ex *Executor) publishFailure(ctx context.Context, position *types.Position, reason string) {
	if ex.bus == nil {
		return
	}
	_ = ex.bus.Publish(ctx, bus.ChannelPositionEvents, "position.exit_failed", "exit-executor", map[string]any{
		"position_id": position.ID,
		"reason":      reason,
	})
}

// escalateTip grows the Jito tip with the fee tier so a retried bundle is
// more likely to land (§4.9: "submit... through a bundle relay with a tip
// lamports amount").
func escalateTip(base uint64, tier types.PriorityFeeTier) uint64 {
	switch tier {
	case types.PriorityFeeMedium:
		return base * 2
	case types.PriorityFeeHigh:
		return base * 4
	case types.PriorityFeeTurbo:
		return base * 8
	default:
		return base
	}
}

func signerPtr(kp *vault.Keypair) *solana.PrivateKey {
	pk := kp.PrivateKey()
	return &pk
}

// applySlippage returns the minimum acceptable output for quoted at the
// given basis-point tolerance.
func applySlippage(quoted math.Int, slippageBps int) math.Int {
	if slippageBps <= 0 {
		return quoted
	}
	num := math.NewInt(int64(10_000 - slippageBps))
	return quoted.Mul(num).Quo(math.NewInt(10_000))
}
