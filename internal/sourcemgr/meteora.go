package sourcemgr

import (
	"time"

	"github.com/vortexsol/sniperbot/internal/types"
)

// admitMeteora applies the Meteora anti-sniper admission filter (§4.4 step
// 3) to scored, mutating its MeteoraEffectiveFees/IsSafeToSnipe/UnsafeReason
// fields in place. It returns false when the detection must not be emitted
// at all (no config and unknown configs disallowed, a mechanism present whose
// Skip* option is set, or unsafe with filter_unsafe_meteora enabled).
func (m *Manager) admitMeteora(scored *types.ScoredPoolDetection) bool {
	cfg := scored.MeteoraAntiSniper
	if cfg == nil {
		return m.meteora.AllowUnknownConfig
	}

	if m.meteora.SkipFeeScheduler && cfg.HasFeeScheduler {
		return false
	}
	if m.meteora.SkipRateLimiter && cfg.HasRateLimiter {
		return false
	}
	if m.meteora.SkipAlphaVault && cfg.HasAlphaVault {
		return false
	}

	now := time.Now().UTC()
	fees := effectiveFees(cfg, m.meteora.TypicalSnipeAmount, now)
	scored.MeteoraEffectiveFees = fees

	if fees.TotalFeeBps > m.meteora.MaxTotalFeeBps {
		scored.IsSafeToSnipe = false
		scored.UnsafeReason = "meteora_total_fee_exceeds_max"
		if m.meteora.FilterUnsafe {
			return false
		}
	}

	return true
}

// effectiveFees models the fee a snipe of snipeAmountSol would pay right
// now: the fee scheduler's cliff fee decayed by elapsed periods, plus the
// rate limiter's increment at the configured reference amount. Meteora's
// exact on-chain formula is not available to this codebase (the PoolConfig
// account layout itself is a hypothesis — see detect/meteora.go); this is a
// deliberately conservative approximation adequate for a threshold check.
func effectiveFees(cfg *types.MeteoraAntiSniperConfig, snipeAmountSol float64, now time.Time) *types.MeteoraEffectiveFees {
	var baseFeeBps, dynamicFeeBps uint64

	if cfg.FeeScheduler != nil {
		fs := cfg.FeeScheduler
		baseFeeBps = fs.CliffFeeBps
		if fs.PeriodSec > 0 {
			elapsed := now.Unix() - fs.LaunchTimeSec
			if elapsed > 0 {
				periods := uint64(elapsed) / fs.PeriodSec
				if periods > fs.NumPeriods {
					periods = fs.NumPeriods
				}
				decay := periods * fs.ReductionFactor
				if decay < baseFeeBps {
					baseFeeBps -= decay
				} else {
					baseFeeBps = 0
				}
			}
		}
	}

	if cfg.RateLimiter != nil {
		rl := cfg.RateLimiter
		if rl.ReferenceAmount > 0 {
			snipeLamports := uint64(snipeAmountSol * 1e9)
			increments := snipeLamports / rl.ReferenceAmount
			dynamicFeeBps = increments * rl.FeeIncrementBps
			if dynamicFeeBps > rl.MaxFeeBps {
				dynamicFeeBps = rl.MaxFeeBps
			}
		}
	}

	return &types.MeteoraEffectiveFees{
		BaseFeeBps:     baseFeeBps,
		DynamicFeeBps:  dynamicFeeBps,
		TotalFeeBps:    baseFeeBps + dynamicFeeBps,
		ComputedAtUnix: now.Unix(),
		SnipeAmountSol: snipeAmountSol,
	}
}
