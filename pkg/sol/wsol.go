package sol

import "github.com/gagliardetto/solana-go"

// WSOL is the wrapped-SOL mint address, the default quote side for pools
// and the reference asset the Trade Executor and router adapter treat as
// "SOL" when determining trade side.
var WSOL = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
