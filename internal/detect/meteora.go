package detect

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/vortexsol/sniperbot/internal/types"
	"github.com/vortexsol/sniperbot/pkg/pool/meteora"
)

// MeteoraParser decodes Meteora DLMM LbPair accounts, grounded on
// meteora.MeteoraDlmmPool's manual offset layout (§4.2).
type MeteoraParser struct{}

func (MeteoraParser) Source() types.Source { return types.SourceMeteora }

func (MeteoraParser) OwnerProgram() solana.PublicKey { return meteora.MeteoraProgramID }

func (MeteoraParser) Parse(update AccountUpdate) (*types.RawPoolDetection, error) {
	pool := &meteora.MeteoraDlmmPool{}
	if err := pool.Decode(update.Data); err != nil {
		return nil, fmt.Errorf("decode meteora lb pair %s: %w", update.PoolAddress, err)
	}
	tokenX, tokenY := pool.GetTokens()

	return &types.RawPoolDetection{
		PoolAddress:       update.PoolAddress.String(),
		TokenMintA:        tokenX,
		TokenMintB:        tokenY,
		Source:            types.SourceMeteora,
		Signature:         update.Signature,
		Slot:              update.Slot,
		BlockTime:         update.BlockTime,
		MeteoraAntiSniper: antiSniperFromConfigAccount(update.Data),
		DetectedAt:        now(),
	}, nil
}

// The constants below name the byte layout of a Meteora dynamic-bonding-
// curve PoolConfig account, the companion account to an LbPair that carries
// the anti-sniper fee scheduler, rate limiter, and alpha-vault gate (§4.2,
// §4.4 safety filter). A config account is distinguished by length; pools
// without one simply have no anti-sniper mechanism attached.
const (
	antiSniperMinLen = 8 + 8*5 + 8*4 + 8 + 8 // discriminator + fee scheduler (5 u64) + rate limiter (4 u64) + alpha vault flag + alpha vault end

	offCliffFeeBps     = 8
	offNumPeriods      = 16
	offPeriodSec       = 24
	offReductionFactor = 32
	offLaunchTimeSec   = 40

	offRateMaxFeeBps    = 48
	offRateIncrementBps = 56
	offRateReference    = 64
	offRateWindowMs     = 72

	offAlphaVaultActive = 80
	offAlphaVaultEndsAt = 88
)

// antiSniperFromConfigAccount extracts Meteora's anti-sniper mechanisms when
// data looks like a PoolConfig account. It never errors — an absent or
// unrecognized config simply yields no anti-sniper record, matching the
// "pools may carry zero or more of these mechanisms" invariant (§3).
func antiSniperFromConfigAccount(data []byte) *types.MeteoraAntiSniperConfig {
	if len(data) < antiSniperMinLen {
		return nil
	}

	cfg := &types.MeteoraAntiSniperConfig{}

	if cliff := binary.LittleEndian.Uint64(data[offCliffFeeBps:]); cliff > 0 {
		cfg.HasFeeScheduler = true
		cfg.FeeScheduler = &types.FeeSchedulerConfig{
			CliffFeeBps:     cliff,
			NumPeriods:      binary.LittleEndian.Uint64(data[offNumPeriods:]),
			PeriodSec:       binary.LittleEndian.Uint64(data[offPeriodSec:]),
			ReductionFactor: binary.LittleEndian.Uint64(data[offReductionFactor:]),
			LaunchTimeSec:   int64(binary.LittleEndian.Uint64(data[offLaunchTimeSec:])),
		}
	}

	if maxFee := binary.LittleEndian.Uint64(data[offRateMaxFeeBps:]); maxFee > 0 {
		cfg.HasRateLimiter = true
		cfg.RateLimiter = &types.RateLimiterConfig{
			MaxFeeBps:        maxFee,
			FeeIncrementBps:  binary.LittleEndian.Uint64(data[offRateIncrementBps:]),
			ReferenceAmount:  binary.LittleEndian.Uint64(data[offRateReference:]),
			WindowDurationMs: binary.LittleEndian.Uint64(data[offRateWindowMs:]),
		}
	}

	if data[offAlphaVaultActive] != 0 {
		cfg.HasAlphaVault = true
		cfg.AlphaVault = &types.AlphaVaultConfig{
			IsActive:  true,
			EndsAtSec: int64(binary.LittleEndian.Uint64(data[offAlphaVaultEndsAt:])),
		}
	}

	if !cfg.HasFeeScheduler && !cfg.HasRateLimiter && !cfg.HasAlphaVault {
		return nil
	}
	return cfg
}
