package vault

import (
	"crypto/ed25519"

	"github.com/awnumar/memguard"
	"github.com/gagliardetto/solana-go"
)

// Keypair is a scoped resource wrapping decrypted signing key material in
// locked, non-swappable memory (§9 design note: "wrap every decrypted
// keypair in a scoped resource that guarantees zeroization on all exit
// paths"). Callers MUST defer Clear() immediately after acquiring one.
type Keypair struct {
	buf *memguard.LockedBuffer
	pub solana.PublicKey
}

// newKeypair takes ownership of raw (a 32 or 64 byte Solana private key) and
// seals it into locked memory. A 32-byte raw is an ed25519 seed, not a full
// private key, so it is expanded to the 64-byte seed||pubkey form ed25519
// signing requires (§4.1 permits either length on input; only the expanded
// form can sign). raw is wiped as part of sealing.
func newKeypair(raw []byte) (*Keypair, error) {
	full := raw
	if len(raw) == keyLen32 {
		full = ed25519.NewKeyFromSeed(raw)
		for i := range raw {
			raw[i] = 0
		}
	}
	buf := memguard.NewBufferFromBytes(full) // wipes full (and raw, if distinct)
	pub := solana.PrivateKey(buf.Bytes()).PublicKey()
	return &Keypair{buf: buf, pub: pub}, nil
}

// PublicKey returns the signer's public address. Safe to call after Clear.
func (k *Keypair) PublicKey() solana.PublicKey { return k.pub }

// PrivateKey reconstructs a solana.PrivateKey view over the locked buffer
// for signing. The returned value aliases locked memory; callers must not
// retain it past Clear().
func (k *Keypair) PrivateKey() solana.PrivateKey {
	return solana.PrivateKey(k.buf.Bytes())
}

// Clear deterministically zeroes the key material. Idempotent — safe to
// call from multiple defers on every exit path (success, routing error,
// panic).
func (k *Keypair) Clear() {
	if k.buf != nil {
		k.buf.Destroy()
	}
}
