package detect

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/vortexsol/sniperbot/internal/types"
)

// orcaWhirlpoolProgramID is Orca's concentrated-liquidity program.
var orcaWhirlpoolProgramID = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")

// Whirlpool account field offsets (Orca's published IDL): the account has
// no variable-length sections before tokenMintA/tokenMintB, so a manual
// byte-offset decode needs no borsh library, matching the style the
// raydium/meteora parsers already use for fixed layouts.
const (
	whirlpoolMinLen    = 8 + 32 + 1 + 2 + 2 + 2 + 2 + 16 + 16 + 4 + 8 + 8 + 32
	whirlpoolMintAOff  = 8 + 32 + 1 + 2 + 2 + 2 + 2 + 16 + 16 + 4 + 8 + 8
	whirlpoolVaultAOff = whirlpoolMintAOff + 32
	whirlpoolMintBOff  = whirlpoolVaultAOff + 32 + 16
)

// OrcaWhirlpoolParser decodes Orca Whirlpool pool accounts.
type OrcaWhirlpoolParser struct{}

func (OrcaWhirlpoolParser) Source() types.Source { return types.SourceOrcaWhirlpool }

func (OrcaWhirlpoolParser) OwnerProgram() solana.PublicKey { return orcaWhirlpoolProgramID }

func (OrcaWhirlpoolParser) Parse(update AccountUpdate) (*types.RawPoolDetection, error) {
	data := update.Data
	if len(data) < whirlpoolMintBOff+32 {
		return nil, fmt.Errorf("decode orca whirlpool %s: too short", update.PoolAddress)
	}

	mintA := solana.PublicKeyFromBytes(data[whirlpoolMintAOff : whirlpoolMintAOff+32])
	mintB := solana.PublicKeyFromBytes(data[whirlpoolMintBOff : whirlpoolMintBOff+32])

	return &types.RawPoolDetection{
		PoolAddress: update.PoolAddress.String(),
		TokenMintA:  mintA.String(),
		TokenMintB:  mintB.String(),
		Source:      types.SourceOrcaWhirlpool,
		Signature:   update.Signature,
		Slot:        update.Slot,
		BlockTime:   update.BlockTime,
		DetectedAt:  now(),
	}, nil
}
