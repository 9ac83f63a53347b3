package meteora

import "github.com/gagliardetto/solana-go"

// MeteoraProgramID is the mainnet DLMM program address this package decodes
// pool accounts against and builds swap instructions for.
var MeteoraProgramID = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
