package vault

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexsol/sniperbot/internal/kv"
	"github.com/vortexsol/sniperbot/internal/types"
)

func testConfig() Config {
	return Config{
		ArgonMemoryKiB:      65536,
		ArgonIterations:     3,
		ArgonParallelism:    4,
		StrictTTL:           2 * time.Minute,
		ReuseTTL:            15 * time.Minute,
		PasswordReuseTTLSec: 900,
	}
}

type fakeWallets struct {
	byUser map[string]*types.Wallet
}

func (f *fakeWallets) GetActiveWallet(ctx context.Context, userID string) (*types.Wallet, error) {
	w, ok := f.byUser[userID]
	if !ok {
		return nil, errors.New("no wallet")
	}
	return w, nil
}

const testPassword = "Correct-Horse9!"

func newTestVault(t *testing.T) (*Vault, *fakeWallets) {
	t.Helper()
	v := New(kv.NewMemoryStore(), &fakeWallets{byUser: map[string]*types.Wallet{}}, testConfig())
	return v, v.wallets.(*fakeWallets)
}

func seedWallet(t *testing.T, v *Vault, wallets *fakeWallets, userID string, key []byte) {
	t.Helper()
	blob, err := v.Encrypt(key, testPassword)
	require.NoError(t, err)
	wallets.byUser[userID] = &types.Wallet{UserID: userID, EncryptedKey: blob, Active: true}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, _ := newTestVault(t)
	key := make([]byte, 64)
	for i := range key {
		key[i] = byte(i)
	}

	blob, err := v.Encrypt(key, testPassword)
	require.NoError(t, err)

	plain, err := v.Decrypt(blob, testPassword)
	require.NoError(t, err)
	assert.Equal(t, key, plain)
}

func TestDecryptTamperedCiphertextIsInvalidPassword(t *testing.T) {
	v, _ := newTestVault(t)
	key := make([]byte, 32)
	blob, err := v.Encrypt(key, testPassword)
	require.NoError(t, err)

	parts := strings.Split(blob, ":")
	require.Len(t, parts, 4)
	// Flip the first character of the ciphertext component.
	tampered := make([]byte, len(parts[3]))
	copy(tampered, parts[3])
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}
	parts[3] = string(tampered)
	tamperedBlob := strings.Join(parts, ":")

	_, err = v.Decrypt(tamperedBlob, testPassword)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPassword))
}

func TestDecryptWrongPasswordIsInvalidPassword(t *testing.T) {
	v, _ := newTestVault(t)
	key := make([]byte, 32)
	blob, err := v.Encrypt(key, testPassword)
	require.NoError(t, err)

	_, err = v.Decrypt(blob, "Totally-Wrong9!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPassword))
}

func TestValidatePasswordRejectsPolicy(t *testing.T) {
	cases := map[string]string{
		"too short":  "Sh0rt!",
		"no upper":   "lowercase123!",
		"no symbol":  "NoSymbolHere123",
		"common":     "Password123!",
		"repeat run": "Aaaaaaaa1234!",
	}
	for name, pw := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidatePassword(pw)
			assert.Error(t, err, name)
		})
	}
	assert.NoError(t, ValidatePassword(testPassword))
}

func TestSessionStrictModeConsumesPasswordOnce(t *testing.T) {
	ctx := context.Background()
	v, wallets := newTestVault(t)
	seedWallet(t, v, wallets, "user-1", make([]byte, 32))

	token, _, err := v.CreateSession(ctx, "user-1", testPassword, ModeStrict)
	require.NoError(t, err)

	kp, err := v.KeypairForSigning(ctx, token)
	require.NoError(t, err)
	ClearKeypair(kp)

	// The session row itself is still alive (strict TTL, not yet elapsed);
	// only its password entry was consumed on the first fetch. §4.7/§8
	// classify "session present, password entry absent" as INVALID_PASSWORD.
	_, err = v.KeypairForSigning(ctx, token)
	assert.True(t, errors.Is(err, ErrInvalidPassword))
}

func TestSessionReuseModeAllowsRepeatedFetch(t *testing.T) {
	ctx := context.Background()
	v, wallets := newTestVault(t)
	seedWallet(t, v, wallets, "user-1", make([]byte, 32))

	token, _, err := v.CreateSession(ctx, "user-1", testPassword, ModeReuse)
	require.NoError(t, err)

	kp1, err := v.KeypairForSigning(ctx, token)
	require.NoError(t, err)
	ClearKeypair(kp1)

	kp2, err := v.KeypairForSigning(ctx, token)
	require.NoError(t, err)
	ClearKeypair(kp2)
}

func TestRevokeSessionDestroysPassword(t *testing.T) {
	ctx := context.Background()
	v, wallets := newTestVault(t)
	seedWallet(t, v, wallets, "user-1", make([]byte, 32))

	token, _, err := v.CreateSession(ctx, "user-1", testPassword, ModeReuse)
	require.NoError(t, err)

	require.NoError(t, v.RevokeSession(ctx, token))

	_, err = v.KeypairForSigning(ctx, token)
	assert.True(t, errors.Is(err, ErrSessionExpired))
}

func TestKeypairPublicKeyStableAfterClear(t *testing.T) {
	ctx := context.Background()
	v, wallets := newTestVault(t)
	key := make([]byte, 32)
	key[0] = 0x01
	seedWallet(t, v, wallets, "user-1", key)

	kp, err := v.KeypairForSigningWithPassword(ctx, "user-1", testPassword)
	require.NoError(t, err)
	pub := kp.PublicKey()
	ClearKeypair(kp)
	assert.Equal(t, pub, kp.PublicKey())
}
