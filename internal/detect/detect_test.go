package detect

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexsol/sniperbot/internal/types"
)

type fakeParser struct {
	source types.Source
	owner  solana.PublicKey
}

func (f fakeParser) Source() types.Source          { return f.source }
func (f fakeParser) OwnerProgram() solana.PublicKey { return f.owner }
func (f fakeParser) Parse(update AccountUpdate) (*types.RawPoolDetection, error) {
	return &types.RawPoolDetection{PoolAddress: update.PoolAddress.String(), Source: f.source}, nil
}

func TestRegistryDispatchRoutesByOwner(t *testing.T) {
	ownerA := solana.NewWallet().PublicKey()
	ownerB := solana.NewWallet().PublicKey()
	reg := NewRegistry(
		fakeParser{source: types.SourceRaydiumV4, owner: ownerA},
		fakeParser{source: types.SourceMeteora, owner: ownerB},
	)

	got, err := reg.Dispatch(AccountUpdate{PoolAddress: solana.NewWallet().PublicKey(), Owner: ownerA})
	require.NoError(t, err)
	assert.Equal(t, types.SourceRaydiumV4, got.Source)

	_, err = reg.Dispatch(AccountUpdate{Owner: solana.NewWallet().PublicKey()})
	assert.Error(t, err)
}

func TestRegistryEnabledGroupsMultipleParsersPerSource(t *testing.T) {
	ownerA := solana.NewWallet().PublicKey()
	ownerB := solana.NewWallet().PublicKey()
	reg := NewRegistry(
		fakeParser{source: types.SourceRaydiumV4, owner: ownerA},
		fakeParser{source: types.SourceRaydiumV4, owner: ownerB}, // e.g. classic AMM + CP-Swap
	)

	enabled := reg.Enabled([]types.Source{types.SourceRaydiumV4})
	assert.Len(t, enabled, 2)
}

func TestOrcaWhirlpoolParserDecodesMints(t *testing.T) {
	data := make([]byte, whirlpoolMintBOff+32)
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()
	copy(data[whirlpoolMintAOff:], mintA[:])
	copy(data[whirlpoolMintBOff:], mintB[:])

	p := OrcaWhirlpoolParser{}
	det, err := p.Parse(AccountUpdate{PoolAddress: solana.NewWallet().PublicKey(), Data: data, Slot: 42})
	require.NoError(t, err)
	assert.Equal(t, mintA.String(), det.TokenMintA)
	assert.Equal(t, mintB.String(), det.TokenMintB)
	assert.Equal(t, types.SourceOrcaWhirlpool, det.Source)
}

func TestOrcaWhirlpoolParserRejectsShortData(t *testing.T) {
	p := OrcaWhirlpoolParser{}
	_, err := p.Parse(AccountUpdate{Data: make([]byte, 4)})
	assert.Error(t, err)
}

func TestPumpFunParserSkipsCompletedBondingCurve(t *testing.T) {
	data := make([]byte, bondingCurveMintOff+32)
	copy(data, bondingCurveDiscriminator)
	data[8+8*5] = 1 // complete = true

	p := PumpFunParser{}
	det, err := p.Parse(AccountUpdate{Data: data})
	require.NoError(t, err)
	assert.Nil(t, det)
}

func TestPumpFunParserExtractsMintWhenPresent(t *testing.T) {
	data := make([]byte, bondingCurveMintOff+32)
	copy(data, bondingCurveDiscriminator)
	mint := solana.NewWallet().PublicKey()
	copy(data[bondingCurveMintOff:], mint[:])

	p := PumpFunParser{}
	det, err := p.Parse(AccountUpdate{Data: data})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, mint.String(), det.TokenMintA)
	assert.Equal(t, types.SourcePumpFun, det.Source)
}

func TestAntiSniperFromConfigAccountNoneWhenAllZero(t *testing.T) {
	data := make([]byte, antiSniperMinLen)
	assert.Nil(t, antiSniperFromConfigAccount(data))
}

func TestAntiSniperFromConfigAccountFeeScheduler(t *testing.T) {
	data := make([]byte, antiSniperMinLen)
	binary.LittleEndian.PutUint64(data[offCliffFeeBps:], 500)
	binary.LittleEndian.PutUint64(data[offNumPeriods:], 10)

	cfg := antiSniperFromConfigAccount(data)
	require.NotNil(t, cfg)
	assert.True(t, cfg.HasFeeScheduler)
	assert.False(t, cfg.HasRateLimiter)
	assert.Equal(t, uint64(500), cfg.FeeScheduler.CliffFeeBps)
}
