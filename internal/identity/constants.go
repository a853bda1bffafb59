// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import "time"

// # Authentication Constraints

const (
	// AccessTokenTTL is the duration a JWT access token remains valid.
	// We keep it short (15m) to minimize the impact of a leaked token:
	// access tokens are never persisted, so early revocation is impossible.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the duration a refresh token remains valid.
	// A week balances user experience against the rotation window.
	RefreshTokenTTL = 7 * 24 * time.Hour

	// RefreshTokenLength is the byte length of the random refresh secret.
	RefreshTokenLength = 32

	// ResetTokenTTL is the duration a password reset token remains valid.
	// Short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the byte length of the random password reset secret.
	ResetTokenLength = 32

	// VerificationTokenTTL is the duration an email verification token remains
	// valid. Long-lived (24 hours) as users might not check email immediately.
	VerificationTokenTTL = 24 * time.Hour

	// VerificationTokenLength is the byte length of the random verification secret.
	VerificationTokenLength = 32

	// TokenSweepInterval is how often the background janitor purges expired
	// token rows. Purging is hygiene only — validity never depends on it.
	TokenSweepInterval = 1 * time.Hour
)
