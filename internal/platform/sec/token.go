// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// # Opaque Secrets

// GenerateSecureToken returns a URL-safe random secret with byteLength bytes
// of entropy (32 bytes = 256 bits, the minimum for any Velora credential).
//
// The returned string is base64url-encoded without padding so it can travel
// in JSON bodies, query strings, and emails unescaped.
func GenerateSecureToken(byteLength int) (string, error) {
	raw := make([]byte, byteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken returns the hex-encoded SHA-256 digest of an opaque token.
//
// # Why hash before storing?
//
// Persisted token tables store only this digest. A database leak then never
// yields a usable secret, and lookups stay a cheap exact match on an indexed
// column. SHA-256 (not bcrypt) is fine here because the input already carries
// 256 bits of entropy — there is nothing to brute-force.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
