// Package vault implements the Credential Vault (C1): password-derived,
// authenticated encryption of signing keys, and bounded-lifetime sessions
// that decouple long-lived user interaction from short-lived in-memory key
// material (§4.1).
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vortexsol/sniperbot/internal/kv"
	"github.com/vortexsol/sniperbot/internal/types"
)

// Mode selects a session's password-lifetime policy (§3).
type Mode string

const (
	ModeStrict Mode = "strict" // password consumed on first use
	ModeReuse  Mode = "reuse"  // password persists until TTL/destroy
)

// WalletLookup is the narrow slice of the (out-of-scope) persistent store
// the vault needs: the single active wallet for a user.
type WalletLookup interface {
	GetActiveWallet(ctx context.Context, userID string) (*types.Wallet, error)
}

// Config pins the argon2id cost parameters and session TTLs (§4.1, §6).
type Config struct {
	ArgonMemoryKiB      uint32
	ArgonIterations     uint32
	ArgonParallelism    uint8
	StrictTTL           time.Duration
	ReuseTTL            time.Duration
	PasswordReuseTTLSec int
}

// Vault is the process-wide Credential Vault service.
type Vault struct {
	store   kv.Store
	wallets WalletLookup
	params  kdfParams
	cfg     Config
}

// New constructs a Vault. store is the shared K/V collaborator (§6);
// wallets resolves a user's active wallet for session creation.
func New(store kv.Store, wallets WalletLookup, cfg Config) *Vault {
	return &Vault{
		store:   store,
		wallets: wallets,
		params: kdfParams{
			MemoryKiB:   cfg.ArgonMemoryKiB,
			Iterations:  cfg.ArgonIterations,
			Parallelism: cfg.ArgonParallelism,
		},
		cfg: cfg,
	}
}

// Encrypt authenticated-encrypts privateKey under password, returning the
// serialized blob (§4.1). Fails with CodeEncryptionError on key-length or
// password-policy violations.
func (v *Vault) Encrypt(privateKey []byte, password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	blob, err := encryptKey(privateKey, password, v.params)
	if err != nil {
		return "", err
	}
	return blob.String(), nil
}

// Decrypt authenticated-decrypts blob under password (§4.1). A tag mismatch
// and a malformed blob are both reported as CodeInvalidPassword.
func (v *Vault) Decrypt(blobStr, password string) ([]byte, error) {
	blob, err := ParseBlob(blobStr)
	if err != nil {
		return nil, newErr(CodeInvalidPassword, "invalid password or tampered data", err)
	}
	return decryptKey(blob, password, v.params)
}

const (
	kvPrefixPassword = "wallet:pw:"
	kvPrefixSession  = "session:"
)

// sessionRecord is the JSON payload stored under session:{token}.
type sessionRecord struct {
	UserID    string    `json:"user_id"`
	Mode      Mode      `json:"mode"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoreSessionPassword writes password under the vault key for token with
// the given TTL (§4.1).
func (v *Vault) StoreSessionPassword(ctx context.Context, token, password string, ttl time.Duration) error {
	return v.store.Set(ctx, kvPrefixPassword+token, password, ttl)
}

// FetchSessionPassword reads the password for token. If consume is true the
// read is a delete-on-read (strict mode); otherwise the entry is left in
// place until its TTL or an explicit DestroySessionPassword (reuse mode).
// Returns ("", nil) — no error — when nothing is stored, matching "password
// | none" in §4.1.
func (v *Vault) FetchSessionPassword(ctx context.Context, token string, consume bool) (string, error) {
	key := kvPrefixPassword + token
	var (
		val string
		err error
	)
	if consume {
		val, err = v.store.GetDel(ctx, key)
	} else {
		val, err = v.store.Get(ctx, key)
	}
	if err == kv.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch session password: %w", err)
	}
	return val, nil
}

// DestroySessionPassword unconditionally deletes the password entry.
func (v *Vault) DestroySessionPassword(ctx context.Context, token string) error {
	return v.store.Del(ctx, kvPrefixPassword+token)
}

// CreateSession validates password against the user's active wallet by
// trial-decrypting it, then mints an opaque session token and stores both
// session metadata and the password entry (§4.1). mode selects strict vs
// reuse TTL and consume semantics; default is strict.
func (v *Vault) CreateSession(ctx context.Context, userID, password string, mode Mode) (token string, expiresAt time.Time, err error) {
	if mode == "" {
		mode = ModeStrict
	}

	wallet, err := v.wallets.GetActiveWallet(ctx, userID)
	if err != nil {
		return "", time.Time{}, newErr(CodeWalletNotFound, "no active wallet for user", err)
	}

	raw, err := v.Decrypt(wallet.EncryptedKey, password)
	if err != nil {
		// Deliberately do not distinguish "wallet missing" from "bad
		// password" beyond the code already returned by Decrypt.
		return "", time.Time{}, err
	}
	// Trial decrypt succeeded; we don't need the plaintext key here — only
	// a signing call needs it, and it will re-derive it from the vault.
	zero(raw)

	token, err = newSessionToken()
	if err != nil {
		return "", time.Time{}, newErr(CodeEncryptionError, "generate session token", err)
	}

	ttl := v.cfg.StrictTTL
	if mode == ModeReuse {
		ttl = v.cfg.ReuseTTL
	}
	expiresAt = time.Now().Add(ttl)

	rec := sessionRecord{UserID: userID, Mode: mode, ExpiresAt: expiresAt}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("marshal session record: %w", err)
	}
	if err := v.store.Set(ctx, kvPrefixSession+token, string(payload), ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}

	pwTTL := ttl
	if mode == ModeReuse {
		pwTTL = time.Duration(v.cfg.PasswordReuseTTLSec) * time.Second
	}
	if err := v.StoreSessionPassword(ctx, token, password, pwTTL); err != nil {
		return "", time.Time{}, fmt.Errorf("store session password: %w", err)
	}

	return token, expiresAt, nil
}

// Session returns the metadata for token, or CodeSessionExpired if absent.
func (v *Vault) Session(ctx context.Context, token string) (userID string, mode Mode, expiresAt time.Time, err error) {
	val, err := v.store.Get(ctx, kvPrefixSession+token)
	if err == kv.ErrNotFound {
		return "", "", time.Time{}, ErrSessionExpired
	}
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("load session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return "", "", time.Time{}, fmt.Errorf("unmarshal session record: %w", err)
	}
	if time.Now().After(rec.ExpiresAt) {
		return "", "", time.Time{}, ErrSessionExpired
	}
	return rec.UserID, rec.Mode, rec.ExpiresAt, nil
}

// RevokeSession destroys a session and its cached password together (§3
// invariant: destroying or expiring a session also destroys the associated
// cached password entry).
func (v *Vault) RevokeSession(ctx context.Context, token string) error {
	if err := v.store.Del(ctx, kvPrefixSession+token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return v.DestroySessionPassword(ctx, token)
}

// KeypairForSigning fetches the password for token from the vault (honoring
// the session's strict/reuse consume semantics) and decrypts the user's
// active wallet.
func (v *Vault) KeypairForSigning(ctx context.Context, token string) (*Keypair, error) {
	userID, mode, _, err := v.Session(ctx, token)
	if err != nil {
		return nil, err
	}
	consume := mode != ModeReuse

	password, err := v.FetchSessionPassword(ctx, token, consume)
	if err != nil {
		return nil, err
	}
	if password == "" {
		// The session row still exists but its cached password entry has
		// already been consumed or has expired independently — §4.7/§8
		// classify this as an invalid credential, not a missing session.
		return nil, ErrInvalidPassword
	}
	return v.keypairWithPassword(ctx, userID, password)
}

// KeypairForSigningWithPassword decrypts the user's active wallet using a
// password the caller already possesses (the no-session path of §4.7).
func (v *Vault) KeypairForSigningWithPassword(ctx context.Context, userID, password string) (*Keypair, error) {
	return v.keypairWithPassword(ctx, userID, password)
}

func (v *Vault) keypairWithPassword(ctx context.Context, userID, password string) (*Keypair, error) {
	wallet, err := v.wallets.GetActiveWallet(ctx, userID)
	if err != nil {
		return nil, newErr(CodeWalletNotFound, "no active wallet for user", err)
	}
	raw, err := v.Decrypt(wallet.EncryptedKey, password)
	if err != nil {
		return nil, err
	}
	return newKeypair(raw) // takes ownership, wipes raw
}

// ClearKeypair deterministically zeroes the key material. Exposed as a
// package-level function too so callers can defer vault.ClearKeypair(kp)
// even when kp might be nil on an early-return path.
func ClearKeypair(kp *Keypair) {
	if kp != nil {
		kp.Clear()
	}
}

func newSessionToken() (string, error) {
	buf := make([]byte, 18) // >= 128 bits
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
