package vault

import "errors"

// Code enumerates the typed credential/vault error taxonomy (§7).
type Code string

const (
	CodeWalletNotFound  Code = "WALLET_NOT_FOUND"
	CodeInvalidPassword Code = "INVALID_PASSWORD"
	CodeEncryptionError Code = "ENCRYPTION_ERROR"
	CodeDecryptionError Code = "DECRYPTION_ERROR"
	CodeSessionExpired  Code = "SESSION_EXPIRED"
)

// Error is the typed error every Vault operation returns on failure. It
// wraps an underlying cause without leaking it into the message the caller
// surfaces to a user (tag mismatch and tampered ciphertext are both reported
// as CodeInvalidPassword — see Decrypt).
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Err: cause}
}

// Is allows errors.Is(err, vault.ErrInvalidPassword) style checks by
// comparing codes rather than identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// Sentinel values usable with errors.Is for callers that don't want to pull
// in *Error.
var (
	ErrWalletNotFound  = &Error{Code: CodeWalletNotFound}
	ErrInvalidPassword = &Error{Code: CodeInvalidPassword}
	ErrEncryptionError = &Error{Code: CodeEncryptionError}
	ErrDecryptionError = &Error{Code: CodeDecryptionError}
	ErrSessionExpired  = &Error{Code: CodeSessionExpired}
)
