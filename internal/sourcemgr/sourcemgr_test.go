package sourcemgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexsol/sniperbot/internal/config"
	"github.com/vortexsol/sniperbot/internal/types"
)

func det(mint string, source types.Source, t time.Time) *types.RawPoolDetection {
	return &types.RawPoolDetection{TokenMintA: mint, Source: source, DetectedAt: t, PoolAddress: "pool-" + mint}
}

func TestDuplicateSuppressionScenario(t *testing.T) {
	mgr := New(5*time.Second, config.MeteoraConfig{}, nil)
	base := time.Now().UTC()

	d1 := mgr.Handle(det("X", types.SourceRaydiumV4, base))
	require.NotNil(t, d1)
	assert.True(t, d1.IsFirstDetection)
	assert.Empty(t, d1.AlsoDetectedOn)

	d2 := mgr.Handle(det("X", types.SourceOrcaWhirlpool, base.Add(time.Second)))
	require.NotNil(t, d2)
	assert.False(t, d2.IsFirstDetection)
	assert.Equal(t, []types.Source{types.SourceRaydiumV4}, d2.AlsoDetectedOn)

	d3 := mgr.Handle(det("X", types.SourceMeteora, base.Add(6*time.Second)))
	require.NotNil(t, d3)
	assert.True(t, d3.IsFirstDetection, "entries older than the 5s window must not count")
}

func TestPriorityScoreFormula(t *testing.T) {
	assert.Equal(t, 98, priorityScore(types.SourceRaydiumV4, true))
	assert.Equal(t, 59, priorityScore(types.SourcePumpFun, false))
}

func TestScoredDetectionInvariants(t *testing.T) {
	mgr := New(5*time.Second, config.MeteoraConfig{}, nil)
	d := mgr.Handle(det("X", types.SourceRaydiumCLMM, time.Now().UTC()))
	require.NotNil(t, d)
	assert.GreaterOrEqual(t, d.PriorityScore, 0)
	assert.LessOrEqual(t, d.PriorityScore, 100)
	assert.True(t, types.KnownSources[d.Source])
	assert.NotContains(t, d.AlsoDetectedOn, d.Source)
}

func TestMeteoraRejectsUnknownConfigByDefault(t *testing.T) {
	mgr := New(5*time.Second, config.MeteoraConfig{AllowUnknownConfig: false}, nil)
	raw := det("X", types.SourceMeteora, time.Now().UTC())
	assert.Nil(t, mgr.Handle(raw))
}

func TestMeteoraAllowsUnknownConfigWhenConfigured(t *testing.T) {
	mgr := New(5*time.Second, config.MeteoraConfig{AllowUnknownConfig: true}, nil)
	raw := det("X", types.SourceMeteora, time.Now().UTC())
	assert.NotNil(t, mgr.Handle(raw))
}

func TestMeteoraFeeRejectionScenario(t *testing.T) {
	now := time.Now().UTC()
	mgr := New(5*time.Second, config.MeteoraConfig{
		AllowUnknownConfig: true,
		MaxTotalFeeBps:     500,
		FilterUnsafe:       true,
		TypicalSnipeAmount: 0.5,
	}, nil)

	raw := det("X", types.SourceMeteora, now)
	raw.MeteoraAntiSniper = &types.MeteoraAntiSniperConfig{
		HasFeeScheduler: true,
		FeeScheduler: &types.FeeSchedulerConfig{
			CliffFeeBps:   9900,
			NumPeriods:    10,
			PeriodSec:     60,
			LaunchTimeSec: now.Unix(),
		},
	}

	assert.Nil(t, mgr.Handle(raw), "9900bps cliff fee exceeds 500bps max and must be dropped")
}

func TestMeteoraMarksUnsafeWithoutDroppingWhenFilterDisabled(t *testing.T) {
	now := time.Now().UTC()
	mgr := New(5*time.Second, config.MeteoraConfig{
		AllowUnknownConfig: true,
		MaxTotalFeeBps:     500,
		FilterUnsafe:       false,
		TypicalSnipeAmount: 0.5,
	}, nil)

	raw := det("X", types.SourceMeteora, now)
	raw.MeteoraAntiSniper = &types.MeteoraAntiSniperConfig{
		HasFeeScheduler: true,
		FeeScheduler: &types.FeeSchedulerConfig{
			CliffFeeBps:   9900,
			NumPeriods:    10,
			PeriodSec:     60,
			LaunchTimeSec: now.Unix(),
		},
	}

	scored := mgr.Handle(raw)
	require.NotNil(t, scored)
	assert.False(t, scored.IsSafeToSnipe)
	assert.Equal(t, "meteora_total_fee_exceeds_max", scored.UnsafeReason)
}

func TestMeteoraGranularSkipsRejectBeforeFeeCalculation(t *testing.T) {
	mgr := New(5*time.Second, config.MeteoraConfig{
		AllowUnknownConfig: true,
		SkipRateLimiter:    true,
	}, nil)

	raw := det("X", types.SourceMeteora, time.Now().UTC())
	raw.MeteoraAntiSniper = &types.MeteoraAntiSniperConfig{HasRateLimiter: true}

	assert.Nil(t, mgr.Handle(raw))
}
