package detect

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/vortexsol/sniperbot/internal/types"
	"github.com/vortexsol/sniperbot/pkg/anchor"
	"github.com/vortexsol/sniperbot/pkg/pool/pump"
)

// bondingCurveDiscriminator is the Anchor account discriminator for
// Pump.fun's BondingCurve account, computed the same way the program
// derives it at compile time (§4.2: "discriminator-first" parsing).
var bondingCurveDiscriminator = anchor.GetDiscriminator("account", "BondingCurve")

// PumpSwapParser decodes Pump.fun's post-migration AMM pool accounts,
// grounded on pump.PumpAMMPool's layout (§4.2).
type PumpSwapParser struct{}

func (PumpSwapParser) Source() types.Source { return types.SourcePumpSwap }

func (PumpSwapParser) OwnerProgram() solana.PublicKey { return pump.PumpSwapProgramID }

func (PumpSwapParser) Parse(update AccountUpdate) (*types.RawPoolDetection, error) {
	pool, err := pump.ParsePoolData(update.Data)
	if err != nil {
		return nil, fmt.Errorf("decode pumpswap pool %s: %w", update.PoolAddress, err)
	}
	baseMint, quoteMint := pool.GetTokens()

	return &types.RawPoolDetection{
		PoolAddress: update.PoolAddress.String(),
		TokenMintA:  baseMint,
		TokenMintB:  quoteMint,
		Source:      types.SourcePumpSwap,
		Signature:   update.Signature,
		Slot:        update.Slot,
		BlockTime:   update.BlockTime,
		DetectedAt:  now(),
	}, nil
}

// pumpFunProgramID is Pump.fun's bonding-curve program, distinct from the
// PumpSwap AMM program this package's pool/pump package targets — a new
// token's bonding curve is the very first detection surface for a snipe.
var pumpFunProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

// Bonding curve account layout (Pump.fun IDL): 8-byte discriminator,
// virtualTokenReserves u64, virtualSolReserves u64, realTokenReserves u64,
// realSolReserves u64, tokenTotalSupply u64, complete bool, then (in the
// post-creator-fee account revision) a 32-byte mint and creator pubkey.
const (
	bondingCurveMinLen  = 8 + 8*5 + 1
	bondingCurveMintOff = 8 + 8*5 + 1
)

// PumpFunParser decodes Pump.fun bonding-curve accounts — the pre-migration
// launch surface every Pump.fun token passes through before it ever reaches
// PumpSwap (§4.2). The mint is not embedded in every revision of this
// account; when absent, the caller is expected to resolve it from the
// creating transaction's token-mint instruction instead.
type PumpFunParser struct{}

func (PumpFunParser) Source() types.Source { return types.SourcePumpFun }

func (PumpFunParser) OwnerProgram() solana.PublicKey { return pumpFunProgramID }

func (PumpFunParser) Parse(update AccountUpdate) (*types.RawPoolDetection, error) {
	if len(update.Data) < bondingCurveMinLen {
		return nil, fmt.Errorf("decode pump.fun bonding curve %s: too short", update.PoolAddress)
	}
	if !bytes.Equal(update.Data[:8], bondingCurveDiscriminator) {
		return nil, fmt.Errorf("decode pump.fun bonding curve %s: discriminator mismatch", update.PoolAddress)
	}

	complete := update.Data[8+8*5] != 0
	if complete {
		// Already migrated to PumpSwap; the PumpSwap parser owns this pool
		// going forward.
		return nil, nil
	}

	tokenMint := ""
	if len(update.Data) >= bondingCurveMintOff+32 {
		mint := solana.PublicKeyFromBytes(update.Data[bondingCurveMintOff : bondingCurveMintOff+32])
		tokenMint = mint.String()
	}

	return &types.RawPoolDetection{
		PoolAddress: update.PoolAddress.String(),
		TokenMintA:  tokenMint,
		TokenMintB:  "So11111111111111111111111111111111111111112", // WSOL, Pump.fun's fixed quote
		Source:      types.SourcePumpFun,
		Signature:   update.Signature,
		Slot:        update.Slot,
		BlockTime:   update.BlockTime,
		DetectedAt:  now(),
	}, nil
}
