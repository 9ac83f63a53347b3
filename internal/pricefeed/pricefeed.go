// Package pricefeed implements the Price Feed (C6): a two-tier cached token
// price lookup in front of a primary and fallback source, guarded by a
// circuit breaker and a token-bucket rate limiter (golang.org/x/time/rate)
// (§4.6).
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/vortexsol/sniperbot/internal/kv"
	"github.com/vortexsol/sniperbot/internal/types"
)

// Source fetches a mint's price in SOL from one upstream provider.
type Source interface {
	Name() types.PriceSourceKind
	FetchPrice(ctx context.Context, mint string) (float64, error)
}

// Config governs cache tiers, the rate limiter, retry policy, and circuit
// breaker (§4.6, §6 circuit_breaker.*).
type Config struct {
	Tier1Size      int
	Tier1TTL       time.Duration
	Tier2TTL       time.Duration
	RateLimit      rate.Limit
	RateBurst      int
	RetryAttempts  int
	BaseRetryDelay time.Duration
	BreakerName    string
	FailureThreshold uint32
	SuccessThreshold uint32
	BreakerTimeout   time.Duration
}

// CircuitOpenError is returned when the breaker is OPEN and the timeout has
// not yet elapsed (§4.6, §7: "CIRCUIT_OPEN{resetAt}").
type CircuitOpenError struct {
	ResetAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("pricefeed: circuit open, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// ErrRateLimitExceeded is returned when the rate limiter rejects a request
// (§4.6, §7: "RATE_LIMIT_EXCEEDED").
var ErrRateLimitExceeded = errors.New("pricefeed: rate limit exceeded")

// FetchFailedError wraps a source failure after retries are exhausted on
// both primary and fallback (§7: "PRICE_FETCH_FAILED{reason}").
type FetchFailedError struct {
	Reason string
	Err    error
}

func (e *FetchFailedError) Error() string { return fmt.Sprintf("pricefeed: fetch failed: %s", e.Reason) }
func (e *FetchFailedError) Unwrap() error { return e.Err }

type cacheEntry struct {
	sample    types.PriceSample
	expiresAt time.Time
}

// Feed is the process-wide Price Feed singleton.
type Feed struct {
	tier1 *lru.Cache
	tier2 kv.Store

	tier1TTL time.Duration
	tier2TTL time.Duration

	limiter *rate.Limiter

	breaker        *gobreaker.CircuitBreaker
	breakerOpen    atomic.Value // time.Time, last OPEN transition
	breakerTimeout time.Duration

	primary  Source
	fallback Source

	retryAttempts  int
	baseRetryDelay time.Duration

	mu sync.Mutex
}

// New constructs a Feed. tier2 is the shared K/V store (§6: price:{mint},
// TTL 60s); primary/fallback are the two price sources in priority order.
func New(cfg Config, tier2 kv.Store, primary, fallback Source) (*Feed, error) {
	tier1, err := lru.New(orDefault(cfg.Tier1Size, 1000))
	if err != nil {
		return nil, fmt.Errorf("pricefeed: build tier1 cache: %w", err)
	}

	f := &Feed{
		tier1:          tier1,
		tier2:          tier2,
		tier1TTL:       orDefaultDuration(cfg.Tier1TTL, time.Second),
		tier2TTL:       orDefaultDuration(cfg.Tier2TTL, 60*time.Second),
		limiter:        rate.NewLimiter(orDefaultRate(cfg.RateLimit, rate.Limit(300.0/60.0)), orDefault(cfg.RateBurst, 300)),
		primary:        primary,
		fallback:       fallback,
		retryAttempts:  orDefault(cfg.RetryAttempts, 3),
		baseRetryDelay: orDefaultDuration(cfg.BaseRetryDelay, 100*time.Millisecond),
		breakerTimeout: orDefaultDuration(cfg.BreakerTimeout, 60*time.Second),
	}
	f.breakerOpen.Store(time.Time{})

	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        orDefaultString(cfg.BreakerName, "pricefeed"),
		MaxRequests: orDefaultUint32(cfg.SuccessThreshold, 2),
		Timeout:     f.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= orDefaultUint32(cfg.FailureThreshold, 5)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				f.breakerOpen.Store(time.Now())
			}
		},
	})

	return f, nil
}

// GetPrice returns mint's current price, consulting the two cache tiers
// unless forceRefresh is set, otherwise going through the rate limiter and
// circuit breaker to the upstream sources (§4.6).
func (f *Feed) GetPrice(ctx context.Context, mint string, forceRefresh bool) (*types.PriceSample, error) {
	if !forceRefresh {
		if sample, ok := f.tier1Get(mint); ok {
			return &sample, nil
		}
		if sample, ok := f.tier2Get(ctx, mint); ok {
			f.tier1Put(mint, sample)
			return &sample, nil
		}
	}

	if f.breaker.State() == gobreaker.StateOpen {
		openedAt, _ := f.breakerOpen.Load().(time.Time)
		return nil, &CircuitOpenError{ResetAt: openedAt.Add(f.breakerTimeout)}
	}

	if !f.limiter.Allow() {
		return nil, ErrRateLimitExceeded
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetchFromSources(ctx, mint)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			openedAt, _ := f.breakerOpen.Load().(time.Time)
			return nil, &CircuitOpenError{ResetAt: openedAt.Add(f.breakerTimeout)}
		}
		return nil, err
	}
	sample := result.(types.PriceSample)

	f.tier1Put(mint, sample)
	f.tier2Put(ctx, mint, sample)
	return &sample, nil
}

func (f *Feed) fetchFromSources(ctx context.Context, mint string) (types.PriceSample, error) {
	if f.primary != nil {
		if price, err := f.fetchWithRetry(ctx, f.primary, mint); err == nil {
			return types.PriceSample{TokenMint: mint, PriceInSOL: price, Timestamp: time.Now().UTC(), Source: f.primary.Name(), Confidence: 1.0}, nil
		}
	}
	if f.fallback != nil {
		if price, err := f.fetchWithRetry(ctx, f.fallback, mint); err == nil {
			return types.PriceSample{TokenMint: mint, PriceInSOL: price, Timestamp: time.Now().UTC(), Source: f.fallback.Name(), Confidence: 0.7}, nil
		}
	}
	return types.PriceSample{}, &FetchFailedError{Reason: "all sources exhausted"}
}

// fetchWithRetry calls src up to f.retryAttempts times in total, doubling the
// wait between attempts from f.baseRetryDelay with +-10% jitter (§4.6); with
// 3 attempts and a 100ms base the waits are 100ms then 200ms.
func (f *Feed) fetchWithRetry(ctx context.Context, src Source, mint string) (float64, error) {
	delay := f.baseRetryDelay
	var lastErr error
	for attempt := 0; attempt < f.retryAttempts; attempt++ {
		price, err := src.FetchPrice(ctx, mint)
		if err == nil {
			return price, nil
		}
		lastErr = err

		if attempt == f.retryAttempts-1 {
			break
		}
		jittered := jitter(delay)
		timer := time.NewTimer(jittered)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return 0, lastErr
}

// InvalidateCache wipes both cache tiers for mint (§4.6).
func (f *Feed) InvalidateCache(ctx context.Context, mint string) error {
	f.tier1.Remove(mint)
	return f.tier2.Del(ctx, tier2Key(mint))
}

func (f *Feed) tier1Get(mint string) (types.PriceSample, bool) {
	v, ok := f.tier1.Get(mint)
	if !ok {
		return types.PriceSample{}, false
	}
	entry := v.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		f.tier1.Remove(mint)
		return types.PriceSample{}, false
	}
	sample := entry.sample
	sample.Source = types.PriceSourceMemoryCache
	return sample, true
}

func (f *Feed) tier1Put(mint string, sample types.PriceSample) {
	f.tier1.Add(mint, cacheEntry{sample: sample, expiresAt: time.Now().Add(f.tier1TTL)})
}

func (f *Feed) tier2Get(ctx context.Context, mint string) (types.PriceSample, bool) {
	raw, err := f.tier2.Get(ctx, tier2Key(mint))
	if err != nil {
		return types.PriceSample{}, false
	}
	sample, err := decodeSample(raw)
	if err != nil {
		return types.PriceSample{}, false
	}
	sample.Source = types.PriceSourceCache
	return sample, true
}

func (f *Feed) tier2Put(ctx context.Context, mint string, sample types.PriceSample) {
	raw, err := encodeSample(sample)
	if err != nil {
		return
	}
	_ = f.tier2.Set(ctx, tier2Key(mint), raw, f.tier2TTL)
}

func tier2Key(mint string) string { return "price:" + mint }
