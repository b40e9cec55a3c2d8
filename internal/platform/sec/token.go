// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateSecureToken returns an opaque secret of byteLength random bytes,
// base64url-encoded without padding.
//
// # Usage
//
// This is the generator for refresh-token secrets and for the volatile
// password-reset / email-verification tokens. The raw value is handed to the
// client exactly once; only its [HashToken] digest is ever persisted.
func GenerateSecureToken(byteLength int) (string, error) {
	randomBytes := make([]byte, byteLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("sec: failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashToken computes the hex-encoded SHA-256 digest of an opaque secret.
//
// Lookups always compare digests, never raw secrets, so a database leak
// does not expose usable tokens.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
