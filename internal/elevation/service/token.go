package service

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const tokenBytes = 32

// mintToken generates an opaque, unguessable bearer token for a granted
// elevation. The raw token is returned to the caller exactly once and never
// written to logs or audit events.
func mintToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint elevation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// tokenFingerprint derives a stable, non-reversible identifier for a token,
// safe to log and to attach to security events for forensic correlation.
func tokenFingerprint(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
