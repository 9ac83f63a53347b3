package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 32
	ivLen   = 16
	tagLen  = 16

	// keyLen32 and keyLen64 are the only valid plaintext private-key lengths
	// (§4.1: "keys must be 32 or 64 bytes").
	keyLen32 = 32
	keyLen64 = 64
)

// kdfParams pins the argon2id cost parameters (§4.1: memory ≥64 MiB,
// ≥3 iterations, ≥4 lanes); keys are 32 bytes, matching AES-256-GCM.
type kdfParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

func (p kdfParams) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, 32)
}

// Blob is the deserialized form of the colon-joined base64 tuple
// {salt, iv, tag, ciphertext} (§3).
type Blob struct {
	Salt       []byte
	IV         []byte
	Tag        []byte
	Ciphertext []byte
}

// String serializes the blob as base64(salt):base64(iv):base64(tag):base64(ciphertext).
func (b Blob) String() string {
	enc := base64.StdEncoding
	return strings.Join([]string{
		enc.EncodeToString(b.Salt),
		enc.EncodeToString(b.IV),
		enc.EncodeToString(b.Tag),
		enc.EncodeToString(b.Ciphertext),
	}, ":")
}

// ParseBlob deserializes the colon-joined base64 form, failing loudly on any
// malformed component so tamper detection happens before decryption even
// begins.
func ParseBlob(s string) (Blob, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Blob{}, fmt.Errorf("malformed blob: expected 4 parts, got %d", len(parts))
	}
	enc := base64.StdEncoding
	salt, err := enc.DecodeString(parts[0])
	if err != nil {
		return Blob{}, fmt.Errorf("decode salt: %w", err)
	}
	iv, err := enc.DecodeString(parts[1])
	if err != nil {
		return Blob{}, fmt.Errorf("decode iv: %w", err)
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil {
		return Blob{}, fmt.Errorf("decode tag: %w", err)
	}
	ciphertext, err := enc.DecodeString(parts[3])
	if err != nil {
		return Blob{}, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(salt) != saltLen || len(iv) != ivLen || len(tag) != tagLen {
		return Blob{}, fmt.Errorf("malformed blob: unexpected component length")
	}
	return Blob{Salt: salt, IV: iv, Tag: tag, Ciphertext: ciphertext}, nil
}

// encryptKey authenticated-encrypts plaintext (a 32 or 64 byte private key)
// under a key derived from password with a freshly generated salt and IV.
func encryptKey(plaintext []byte, password string, params kdfParams) (Blob, error) {
	if len(plaintext) != keyLen32 && len(plaintext) != keyLen64 {
		return Blob{}, newErr(CodeEncryptionError, "private key must be 32 or 64 bytes", nil)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return Blob{}, newErr(CodeEncryptionError, "generate salt", err)
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return Blob{}, newErr(CodeEncryptionError, "generate iv", err)
	}

	key := params.derive(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return Blob{}, newErr(CodeEncryptionError, "init cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return Blob{}, newErr(CodeEncryptionError, "init gcm", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	return Blob{Salt: salt, IV: iv, Tag: tag, Ciphertext: ciphertext}, nil
}

// decryptKey authenticated-decrypts blob under a key derived from password
// and the blob's own salt. A tag mismatch and a malformed blob are both
// reported as CodeInvalidPassword — see testable property 2.
func decryptKey(blob Blob, password string, params kdfParams) ([]byte, error) {
	key := params.derive(password, blob.Salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newErr(CodeDecryptionError, "init cipher", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, newErr(CodeDecryptionError, "init gcm", err)
	}

	sealed := append(append([]byte(nil), blob.Ciphertext...), blob.Tag...)
	plaintext, err := gcm.Open(nil, blob.IV, sealed, nil)
	if err != nil {
		return nil, newErr(CodeInvalidPassword, "invalid password or tampered data", err)
	}
	return plaintext, nil
}
