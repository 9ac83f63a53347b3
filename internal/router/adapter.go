package router

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"github.com/vortexsol/sniperbot/pkg/protocol"
	pkgrouter "github.com/vortexsol/sniperbot/pkg/router"
	"github.com/vortexsol/sniperbot/pkg/sol"
)

// SolRouteAdapter is the default Router implementation: it fans a quote or
// swap request out across every wired DEX protocol using the teacher's
// pool-quoting and instruction-building code, and is a concrete, swappable
// provider of the Router capability rather than the capability itself.
type SolRouteAdapter struct {
	client *sol.Client
	simple *pkgrouter.SimpleRouter
}

// NewSolRouteAdapter wires the Raydium (v4/CLMM/CPMM), Meteora DLMM, and
// Pump.fun AMM protocols behind a single Router.
func NewSolRouteAdapter(client *sol.Client) *SolRouteAdapter {
	return &SolRouteAdapter{
		client: client,
		simple: pkgrouter.NewSimpleRouter(
			protocol.NewPumpAmm(client),
			protocol.NewRaydiumAmm(client),
			protocol.NewRaydiumClmm(client),
			protocol.NewRaydiumCpmm(client),
			protocol.NewMeteoraDlmm(client),
		),
	}
}

func (a *SolRouteAdapter) GetQuote(ctx context.Context, inputMint, outputMint string, amountIn math.Int) (Quote, error) {
	if err := a.simple.QueryAllPools(ctx, inputMint, outputMint); err != nil {
		return Quote{}, newJupiterError(CodeNoRoute, "query pools", err)
	}
	pool, amountOut, err := a.simple.GetBestPool(ctx, a.client, inputMint, amountIn)
	if err != nil {
		return Quote{}, newJupiterError(CodeNoRoute, "no quoting pool found", err)
	}
	return Quote{PoolID: pool.GetID(), AmountOut: amountOut, ProtocolID: string(pool.ProtocolName())}, nil
}

// GetTokenPrice quotes 1 SOL (as WSOL lamports) into tokenMint and returns
// the implied per-token SOL price from that quote. Used as the Router-backed
// fallback source in the Price Feed's two-source design (§4.6).
func (a *SolRouteAdapter) GetTokenPrice(ctx context.Context, tokenMint string) (float64, error) {
	const referenceLamports = 1_000_000_000 // 1 SOL
	quote, err := a.GetQuote(ctx, sol.WSOL.String(), tokenMint, math.NewInt(referenceLamports))
	if err != nil {
		return 0, err
	}
	if quote.AmountOut.IsZero() {
		return 0, newJupiterError(CodeNoRoute, "quoted zero output", nil)
	}
	tokensPerSol := quote.AmountOut.ToLegacyDec()
	return 1.0 / tokensPerSol.MustFloat64(), nil
}

func (a *SolRouteAdapter) Swap(ctx context.Context, req SwapRequest) (SwapResult, error) {
	if req.Signer == nil {
		return SwapResult{}, newJupiterError(CodeSubmissionFailed, "missing signer", nil)
	}

	if err := a.simple.QueryAllPools(ctx, req.InputMint, req.OutputMint); err != nil {
		return SwapResult{}, newJupiterError(CodeNoRoute, "query pools", err)
	}
	bestPool, amountOut, err := a.simple.GetBestPool(ctx, a.client, req.InputMint, req.AmountIn)
	if err != nil {
		return SwapResult{}, newJupiterError(CodeNoRoute, "no quoting pool found", err)
	}
	if amountOut.LT(req.MinAmountOut) {
		return SwapResult{}, newJupiterError(CodeSlippageExceeded,
			fmt.Sprintf("quoted %s below minimum %s", amountOut, req.MinAmountOut), nil)
	}

	instrs, err := bestPool.BuildSwapInstructions(ctx, a.client, req.Signer.PublicKey(),
		req.InputMint, req.AmountIn, req.MinAmountOut, req.UserInputAccount, req.UserOutputAccount)
	if err != nil {
		return SwapResult{}, newJupiterError(CodeSubmissionFailed, "build swap instructions", err)
	}

	signers := []solana.PrivateKey{*req.Signer}
	tx, err := a.client.SignTransaction(ctx, signers, instrs...)
	if err != nil {
		return SwapResult{}, newJupiterError(CodeSubmissionFailed, "sign transaction", err)
	}

	if req.Simulate {
		if _, err := a.client.SimulateTransaction(ctx, tx); err != nil {
			return SwapResult{}, newJupiterError(CodeSimulationFailed, "simulate transaction", err)
		}
	}

	if req.UseJitoBundle {
		sig, err := a.client.SendTxWithJito(ctx, req.JitoTipLamports, signers, tx)
		if err != nil {
			return SwapResult{}, newJupiterError(CodeSubmissionFailed, "send via jito", err)
		}
		return SwapResult{Signature: sig, AmountOut: amountOut}, nil
	}

	sig, err := a.client.SendTx(ctx, tx)
	if err != nil {
		return SwapResult{}, newJupiterError(CodeSubmissionFailed, "send transaction", err)
	}
	return SwapResult{Signature: sig.String(), AmountOut: amountOut}, nil
}

var _ Router = (*SolRouteAdapter)(nil)
