// Package types holds the shared data model (§3 of the core spec): the
// records that flow between the pool-detection pipeline, the execution core,
// and the credential vault. Nothing in this package performs I/O.
package types

import "time"

// Source identifies the DEX program a detection was observed on.
type Source string

const (
	SourceRaydiumV4     Source = "raydium_v4"
	SourceRaydiumCLMM   Source = "raydium_clmm"
	SourceOrcaWhirlpool Source = "orca_whirlpool"
	SourceMeteora       Source = "meteora"
	SourcePumpFun       Source = "pump_fun"
	SourcePumpSwap      Source = "pumpswap"
)

// KnownSources is the full enumeration used by invariant checks (testable
// property 4: every scored detection's source belongs to this set).
var KnownSources = map[Source]bool{
	SourceRaydiumV4:     true,
	SourceRaydiumCLMM:   true,
	SourceOrcaWhirlpool: true,
	SourceMeteora:       true,
	SourcePumpFun:       true,
	SourcePumpSwap:      true,
}

// FeeSchedulerConfig mirrors Meteora's cliff-fee decay schedule.
type FeeSchedulerConfig struct {
	CliffFeeBps     uint64
	NumPeriods      uint64
	PeriodSec       uint64
	ReductionFactor uint64
	LaunchTimeSec   int64
}

// RateLimiterConfig mirrors Meteora's anti-sniper rate limiter.
type RateLimiterConfig struct {
	MaxFeeBps        uint64
	FeeIncrementBps  uint64
	ReferenceAmount  uint64
	WindowDurationMs uint64
}

// AlphaVaultConfig mirrors Meteora's whitelist/alpha-vault gate.
type AlphaVaultConfig struct {
	IsActive bool
	EndsAtSec int64
}

// MeteoraAntiSniperConfig is attached to raw detections from the Meteora
// parser whenever the pool carries at least one anti-sniper mechanism.
type MeteoraAntiSniperConfig struct {
	HasFeeScheduler bool
	HasRateLimiter  bool
	HasAlphaVault   bool
	FeeScheduler    *FeeSchedulerConfig
	RateLimiter     *RateLimiterConfig
	AlphaVault      *AlphaVaultConfig
}

// RawPoolDetection is the immutable record a DEX parser emits (§3).
type RawPoolDetection struct {
	PoolAddress      string
	TokenMintA       string
	TokenMintB       string
	Source           Source
	Signature        string
	Slot             uint64
	BlockTime        int64
	MeteoraAntiSniper *MeteoraAntiSniperConfig
	DetectedAt       time.Time
}

// MeteoraEffectiveFees is the fee snapshot computed at a hypothetical snipe
// amount and instant, used for the safety filter in C4.
type MeteoraEffectiveFees struct {
	BaseFeeBps      uint64
	DynamicFeeBps   uint64
	TotalFeeBps     uint64
	ComputedAtUnix  int64
	SnipeAmountSol  float64
}

// ScoredPoolDetection is a RawPoolDetection plus the Source Manager's
// scoring, dedup, and safety-filter decisions (§3).
type ScoredPoolDetection struct {
	RawPoolDetection
	PriorityScore       int
	IsFirstDetection    bool
	AlsoDetectedOn      []Source
	MeteoraEffectiveFees *MeteoraEffectiveFees
	IsSafeToSnipe       bool
	UnsafeReason        string
}

// OrderSide enumerates the direction of a trade intent.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
	OrderSideSwap OrderSide = "swap"
)

// OrderStatus is the lifecycle state of a persisted Order.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusFilled  OrderStatus = "filled"
	OrderStatusFailed  OrderStatus = "failed"
)

// Order is the persistent record of a trade intent (§3).
type Order struct {
	ID            string
	UserID        string
	TokenMint     string
	Side          OrderSide
	AmountIn      uint64
	Status        OrderStatus
	Signature     string
	CommissionUSD float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionExiting PositionStatus = "EXITING"
	PositionClosed  PositionStatus = "CLOSED"
)

// Position is an open (or recently closed) token holding with optional
// TP/SL/trailing-stop rules (§3).
type Position struct {
	ID                   string
	UserID               string
	TokenMint            string
	EntryAmountIn        uint64
	EntryAmountOut       uint64
	EntryPrice           float64
	TakeProfitPct        *float64
	StopLossPct          *float64
	TrailingStopEnabled  bool
	TrailingStopPct      *float64
	HighestObservedPrice float64
	Status               PositionStatus
	// ExitSessionToken is the reuse-mode vault session token captured when
	// the position was opened, so the Exit Executor can sign a reverse swap
	// autonomously when a rule triggers, without a human supplying a
	// password at exit time (§4.9 has no credential input of its own; this
	// is the resolution recorded in the design ledger).
	ExitSessionToken string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasRule reports whether at least one exit rule is configured, the
// precondition for a monitor to exist (§3 invariant).
func (p *Position) HasRule() bool {
	return p.TakeProfitPct != nil || p.StopLossPct != nil || p.TrailingStopEnabled
}

// MonitorStatus is the lifecycle state of a PositionMonitor's evaluator.
type MonitorStatus string

const (
	MonitorActive    MonitorStatus = "ACTIVE"
	MonitorExiting   MonitorStatus = "EXITING"
	MonitorCompleted MonitorStatus = "COMPLETED"
	MonitorFailed    MonitorStatus = "FAILED"
)

// MonitorState is the mutable evaluation state of one position's monitor.
type MonitorState struct {
	PositionID    string
	Status        MonitorStatus
	AttemptCount  int
	LastPrice     float64
	LastEvaluated time.Time
}

// PriceSourceKind enumerates where a PriceSample came from.
type PriceSourceKind string

const (
	PriceSourceMemoryCache PriceSourceKind = "memory_cache"
	PriceSourceCache       PriceSourceKind = "cache"
	PriceSourceDexscreener PriceSourceKind = "dexscreener"
	PriceSourceJupiter     PriceSourceKind = "jupiter"
)

// PriceSample is a single token price observation (§3).
type PriceSample struct {
	TokenMint  string
	PriceInSOL float64
	Timestamp  time.Time
	Source     PriceSourceKind
	Confidence float64
}

// BreakerStatus enumerates the three circuit-breaker states (§3).
type BreakerStatus string

const (
	BreakerClosed   BreakerStatus = "CLOSED"
	BreakerHalfOpen BreakerStatus = "HALF_OPEN"
	BreakerOpen     BreakerStatus = "OPEN"
)

// PriorityFeeTier enumerates the escalation ladder the Exit Executor uses on
// retries (§4.9).
type PriorityFeeTier string

const (
	PriorityFeeLow    PriorityFeeTier = "LOW"
	PriorityFeeMedium PriorityFeeTier = "MEDIUM"
	PriorityFeeHigh   PriorityFeeTier = "HIGH"
	PriorityFeeTurbo  PriorityFeeTier = "TURBO"
)

// Escalate returns the next tier in the ladder, saturating at TURBO.
func (t PriorityFeeTier) Escalate() PriorityFeeTier {
	switch t {
	case PriorityFeeLow:
		return PriorityFeeMedium
	case PriorityFeeMedium:
		return PriorityFeeHigh
	case PriorityFeeHigh, PriorityFeeTurbo:
		return PriorityFeeTurbo
	default:
		return PriorityFeeLow
	}
}

// User is the minimal identity record the core needs (§3); ownership of
// wallets/orders/positions is expressed by UserID foreign keys elsewhere.
type User struct {
	ID        string
	ChatID    string
	CreatedAt time.Time
}

// Wallet holds the single active signing wallet for a user (§3). PrivateKey
// plaintext is never a field on this struct — only the encrypted blob is.
type Wallet struct {
	ID            string
	UserID        string
	PublicAddress string
	EncryptedKey  string // colon-joined base64 blob, see vault.Blob
	Chain         string
	Active        bool
}
