// Package router defines the swap/quote capability the execution core
// depends on, keeping Trade Executor (C7) and Exit Executor (C9) ignorant
// of which concrete DEX integration serves a given trade (§9 design note:
// "does not implement a DEX router... consumes a routing capability").
package router

import (
	"context"
	"errors"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// ErrNoRoute names the condition where no pool quotes a usable price for a
// pair. Nothing in this module returns it: SolRouteAdapter reports a missing
// route as a *JupiterError with CodeNoRoute.
var ErrNoRoute = errors.New("router: no route found")

// Quote is the best price discovered for a prospective swap.
type Quote struct {
	PoolID     string
	AmountOut  math.Int
	ProtocolID string
}

// SwapRequest describes a single on-chain swap to build and submit.
type SwapRequest struct {
	Signer            *solana.PrivateKey
	InputMint         string
	OutputMint        string
	AmountIn          math.Int
	MinAmountOut      math.Int
	UserInputAccount  solana.PublicKey
	UserOutputAccount solana.PublicKey
	PlatformFeeBps    int
	FeeAccount        solana.PublicKey
	UseJitoBundle     bool
	JitoTipLamports   uint64
	Simulate          bool
}

// SwapResult carries the outcome of a submitted swap.
type SwapResult struct {
	Signature string
	AmountOut math.Int
}

// Router is the capability Trade Executor and Exit Executor depend on.
// JupiterError (§7) is returned for any failure surfaced from the
// underlying aggregation/routing layer so callers can branch on Code
// without knowing which DEX adapter produced it.
type Router interface {
	// GetQuote returns the best available quote across every wired
	// protocol for swapping amountIn of inputMint into outputMint.
	GetQuote(ctx context.Context, inputMint, outputMint string, amountIn math.Int) (Quote, error)

	// GetTokenPrice returns tokenMint's price denominated in SOL, derived
	// from the best available pool quote for a small reference amount.
	GetTokenPrice(ctx context.Context, tokenMint string) (float64, error)

	// Swap builds, signs, and submits the instructions for req, optionally
	// routing through a Jito bundle for MEV protection.
	Swap(ctx context.Context, req SwapRequest) (SwapResult, error)
}

// ErrorCode enumerates the typed router/aggregation error taxonomy (§7).
type ErrorCode string

const (
	CodeNoRoute           ErrorCode = "NO_ROUTE"
	CodeQuoteStale        ErrorCode = "QUOTE_STALE"
	CodeSlippageExceeded  ErrorCode = "SLIPPAGE_EXCEEDED"
	CodeSimulationFailed  ErrorCode = "SIMULATION_FAILED"
	CodeSubmissionFailed  ErrorCode = "SUBMISSION_FAILED"
	CodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
)

// JupiterError is the typed error every Router implementation returns on
// failure, named for the aggregation layer this capability generalizes.
type JupiterError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *JupiterError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Code)
}

func (e *JupiterError) Unwrap() error { return e.Err }

func (e *JupiterError) Is(target error) bool {
	var other *JupiterError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

func newJupiterError(code ErrorCode, msg string, cause error) *JupiterError {
	return &JupiterError{Code: code, Msg: msg, Err: cause}
}
