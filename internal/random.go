package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	refreshValueSize = 48
	backupCodeBytes  = 5
)

// NewRefreshValue returns an opaque refresh token value: 48 random bytes,
// base64url without padding. The raw value is what clients hold; storage
// only ever sees its hash.
func NewRefreshValue() (string, error) {
	var raw [refreshValueSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashRefreshValue maps a client-held refresh value to its storage key.
func HashRefreshValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// NewBackupCode returns a short one-time recovery code in the form
// "xxxxx-xxxxx" (lowercase hex). Codes are shown to the user once and
// persisted only as sha256 digests.
func NewBackupCode() (string, error) {
	var raw [backupCodeBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	enc := hex.EncodeToString(raw[:])
	return enc[:backupCodeBytes] + "-" + enc[backupCodeBytes:], nil
}

// HashBackupCode canonicalizes and digests a recovery code. Comparison
// happens on digests only, so a leaked store never yields usable codes.
func HashBackupCode(code string) [32]byte {
	return sha256.Sum256([]byte(CanonicalBackupCode(code)))
}

// CanonicalBackupCode strips separators and whitespace and lowercases,
// so user re-entry with or without the dash verifies the same.
func CanonicalBackupCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "-", "")
}

