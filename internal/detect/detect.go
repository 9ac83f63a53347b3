// Package detect implements the DEX Parsers (C2): per-program decoders that
// turn a raw account-update or transaction message from a stream source
// into a types.RawPoolDetection. Parsers are discriminator-first — they
// check a program ID and, where the layout has one, an 8-byte Anchor
// discriminator — before attempting a layout decode, so a malformed or
// unrelated account update is rejected cheaply (§4.2).
package detect

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/vortexsol/sniperbot/internal/types"
)

// AccountUpdate is the normalized shape every stream source (WSSource,
// GeyserSource) produces for a single account change, regardless of
// transport (§4.3).
type AccountUpdate struct {
	PoolAddress solana.PublicKey
	Owner       solana.PublicKey
	Data        []byte
	Slot        uint64
	BlockTime   int64
	Signature   string
}

// Parser decodes account updates owned by one DEX program into
// RawPoolDetection records. Returning (nil, nil) means the update was
// recognized but does not represent a new pool worth emitting (e.g. a
// liquidity-change update on an already-known pool, once a parser tracks
// that).
type Parser interface {
	Source() types.Source
	OwnerProgram() solana.PublicKey
	Parse(update AccountUpdate) (*types.RawPoolDetection, error)
}

// Registry dispatches an AccountUpdate to the parser registered for its
// owner program, mirroring the Source Manager's single entry point (§4.4).
// More than one parser may share a Source (e.g. Raydium's classic AMM and
// CP-Swap programs both report raydium_v4) — Dispatch disambiguates by the
// unambiguous owner program ID, while Enabled groups by Source for config
// filtering.
type Registry struct {
	bySource map[types.Source][]Parser
	byOwner  map[solana.PublicKey]Parser
}

// NewRegistry builds a Registry over the given parsers, keyed by both the
// Source they report and the program ID they claim to decode.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{
		bySource: make(map[types.Source][]Parser, len(parsers)),
		byOwner:  make(map[solana.PublicKey]Parser, len(parsers)),
	}
	for _, p := range parsers {
		r.bySource[p.Source()] = append(r.bySource[p.Source()], p)
		r.byOwner[p.OwnerProgram()] = p
	}
	return r
}

// Dispatch routes update to the parser registered for its owner program.
func (r *Registry) Dispatch(update AccountUpdate) (*types.RawPoolDetection, error) {
	p, ok := r.byOwner[update.Owner]
	if !ok {
		return nil, fmt.Errorf("detect: no parser registered for owner %s", update.Owner)
	}
	return p.Parse(update)
}

// Enabled returns the parsers whose Source is present in enabled.
func (r *Registry) Enabled(enabled []types.Source) []Parser {
	out := make([]Parser, 0, len(enabled))
	for _, s := range enabled {
		out = append(out, r.bySource[s]...)
	}
	return out
}

func now() time.Time { return time.Now().UTC() }
