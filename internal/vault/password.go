package vault

import "strings"

// commonPasswords is the curated small set of denylisted passwords (§4.1).
// Checked case-insensitively.
var commonPasswords = map[string]bool{
	"password123!": true,
	"password1234": true,
	"qwertyuiop12": true,
	"letmein12345": true,
	"admin1234567": true,
	"welcome12345": true,
	"iloveyou1234": true,
	"trustno11234": true,
}

// ValidatePassword enforces the §4.1 password policy: length 12–128,
// at least one lowercase, uppercase, digit, and non-alphanumeric byte;
// rejects denylisted passwords and any run of ≥6 identical characters.
func ValidatePassword(password string) error {
	if len(password) < 12 || len(password) > 128 {
		return newErr(CodeEncryptionError, "password must be between 12 and 128 characters", nil)
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasLower || !hasUpper || !hasDigit || !hasSymbol {
		return newErr(CodeEncryptionError, "password must contain lowercase, uppercase, digit, and symbol characters", nil)
	}

	if commonPasswords[strings.ToLower(password)] {
		return newErr(CodeEncryptionError, "password is too common", nil)
	}

	if hasRepeatRun(password, 6) {
		return newErr(CodeEncryptionError, "password must not contain a run of 6 or more identical characters", nil)
	}

	return nil
}

func hasRepeatRun(s string, run int) bool {
	count := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			count++
			if count >= run {
				return true
			}
		} else {
			count = 1
		}
	}
	return false
}
