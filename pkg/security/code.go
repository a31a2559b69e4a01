package security

import (
	"encoding/base64"
	"fmt"
)

// MinVerificationCodeBytes keeps generated verification codes at 128 bits of
// entropy or more.
const MinVerificationCodeBytes = 16

// GenerateVerificationCode returns a URL-safe random token of at least
// MinVerificationCodeBytes of entropy. The result is case-sensitive.
func GenerateVerificationCode(numBytes int) (string, error) {
	if numBytes < MinVerificationCodeBytes {
		numBytes = MinVerificationCodeBytes
	}
	raw, err := RandomBytes(numBytes)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
