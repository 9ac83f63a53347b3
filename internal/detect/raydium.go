package detect

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/vortexsol/sniperbot/internal/types"
	"github.com/vortexsol/sniperbot/pkg/pool/raydium"
)

// RaydiumV4Parser decodes classic Raydium AMM (OpenBook market) pool
// accounts, grounded on raydium.AMMPool's layout (§4.2).
type RaydiumV4Parser struct{}

func (RaydiumV4Parser) Source() types.Source { return types.SourceRaydiumV4 }

func (RaydiumV4Parser) OwnerProgram() solana.PublicKey { return raydium.RAYDIUM_AMM_PROGRAM_ID }

func (RaydiumV4Parser) Parse(update AccountUpdate) (*types.RawPoolDetection, error) {
	pool := &raydium.AMMPool{}
	if err := pool.Decode(update.Data); err != nil {
		return nil, fmt.Errorf("decode raydium v4 pool %s: %w", update.PoolAddress, err)
	}
	if pool.BaseMint.IsZero() || pool.QuoteMint.IsZero() {
		return nil, fmt.Errorf("decode raydium v4 pool %s: empty mints", update.PoolAddress)
	}
	return &types.RawPoolDetection{
		PoolAddress: update.PoolAddress.String(),
		TokenMintA:  pool.BaseMint.String(),
		TokenMintB:  pool.QuoteMint.String(),
		Source:      types.SourceRaydiumV4,
		Signature:   update.Signature,
		Slot:        update.Slot,
		BlockTime:   update.BlockTime,
		DetectedAt:  now(),
	}, nil
}

// RaydiumCLMMParser decodes Raydium's concentrated-liquidity pool accounts.
type RaydiumCLMMParser struct{}

func (RaydiumCLMMParser) Source() types.Source { return types.SourceRaydiumCLMM }

func (RaydiumCLMMParser) OwnerProgram() solana.PublicKey { return raydium.RAYDIUM_CLMM_PROGRAM_ID }

func (RaydiumCLMMParser) Parse(update AccountUpdate) (*types.RawPoolDetection, error) {
	pool := &raydium.CLMMPool{}
	if err := pool.Decode(update.Data); err != nil {
		return nil, fmt.Errorf("decode raydium clmm pool %s: %w", update.PoolAddress, err)
	}
	if pool.TokenMint0.IsZero() || pool.TokenMint1.IsZero() {
		return nil, fmt.Errorf("decode raydium clmm pool %s: empty mints", update.PoolAddress)
	}
	return &types.RawPoolDetection{
		PoolAddress: update.PoolAddress.String(),
		TokenMintA:  pool.TokenMint0.String(),
		TokenMintB:  pool.TokenMint1.String(),
		Source:      types.SourceRaydiumCLMM,
		Signature:   update.Signature,
		Slot:        update.Slot,
		BlockTime:   update.BlockTime,
		DetectedAt:  now(),
	}, nil
}

// RaydiumCPMMParser decodes Raydium's constant-product ("CP-Swap") pool
// accounts — the successor program to the classic AMM for Token-2022 pairs.
type RaydiumCPMMParser struct{}

func (RaydiumCPMMParser) Source() types.Source { return types.SourceRaydiumV4 }

func (RaydiumCPMMParser) OwnerProgram() solana.PublicKey { return raydium.RAYDIUM_CPMM_PROGRAM_ID }

func (RaydiumCPMMParser) Parse(update AccountUpdate) (*types.RawPoolDetection, error) {
	pool := &raydium.CPMMPool{}
	if err := pool.Decode(update.Data); err != nil {
		return nil, fmt.Errorf("decode raydium cpmm pool %s: %w", update.PoolAddress, err)
	}
	return &types.RawPoolDetection{
		PoolAddress: update.PoolAddress.String(),
		TokenMintA:  pool.Token0Mint.String(),
		TokenMintB:  pool.Token1Mint.String(),
		Source:      types.SourceRaydiumV4,
		Signature:   update.Signature,
		Slot:        update.Slot,
		BlockTime:   update.BlockTime,
		DetectedAt:  now(),
	}, nil
}
