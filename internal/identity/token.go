// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import (
	"context"
	"time"
)

// # Token Registry

// TokenKind discriminates the three single-use credentials that share the
// identity.token table. Access tokens are never persisted and therefore
// have no kind.
type TokenKind string

const (
	// KindRefresh is the long-lived opaque secret exchanged for a new
	// access/refresh pair. Rotated on every exchange.
	KindRefresh TokenKind = "refresh"

	// KindPasswordReset is the short-lived secret mailed during the
	// forgot-password flow.
	KindPasswordReset TokenKind = "password_reset"

	// KindEmailVerification is the secret mailed at registration to prove
	// mailbox ownership.
	KindEmailVerification TokenKind = "email_verification"
)

// secretLength returns the random-secret byte length for issuing a token of
// the given kind.
func (kind TokenKind) secretLength() int {
	switch kind {
	case KindPasswordReset:
		return ResetTokenLength
	case KindEmailVerification:
		return VerificationTokenLength
	default:
		return RefreshTokenLength
	}
}

// TokenRecord is one persisted single-use credential.
//
// The raw secret is never stored: SecretHash holds its SHA-256 digest, and
// the plaintext exists only in the issuance response and in whatever channel
// (JSON body, email link) delivered it to the holder.
type TokenRecord struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	Kind       TokenKind `json:"kind"`
	SecretHash string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
	Used       bool      `json:"used"`
	CreatedAt  time.Time `json:"created_at"`
}

// Consumable reports whether the record may still be exchanged: consumed
// records and expired records are both permanently dead. Expired rows may
// also have been physically purged, so callers must never rely on presence —
// only on this predicate.
func (record *TokenRecord) Consumable(now time.Time) bool {
	return !record.Used && record.ExpiresAt.After(now)
}

// TokenRegistry is the append-only store of issued single-use tokens.
//
// # Concurrency
//
// Consume must be a single conditional update: when two callers race on the
// same record, exactly one wins and the other observes [ErrTokenAlreadyUsed].
// The registry serializes only the flag flip — callers grant the effect of
// consumption (issuing a session, changing a password) strictly after their
// Consume call returns nil.
type TokenRegistry interface {

	/*
		Issue creates a fresh token record with a cryptographically random
		secret (256 bits of entropy) and used = false.

		Parameters:
		  - context: context.Context
		  - subjectID: string (owning account)
		  - kind: TokenKind
		  - ttl: time.Duration (expiresAt = now + ttl; supplied by the caller, never hardcoded per kind)

		Returns:
		  - *TokenRecord: The persisted record (hash only)
		  - string: The plaintext secret, returned exactly once
		  - error: Persistence failures
	*/
	Issue(context context.Context, subjectID string, kind TokenKind, ttl time.Duration) (*TokenRecord, string, error)

	/*
		Find resolves a plaintext secret to its record by exact hash match.

		It does NOT filter by used or expiry — callers apply [TokenRecord.Consumable]
		so that not-found, expired, and already-used can be told apart internally.

		Parameters:
		  - context: context.Context
		  - secret: string
		  - kind: TokenKind

		Returns:
		  - *TokenRecord: Hydrated record
		  - error: ErrTokenNotFound or storage failures
	*/
	Find(context context.Context, secret string, kind TokenKind) (*TokenRecord, error)

	/*
		Consume atomically flips used to true.

		Implemented as a compare-and-set (UPDATE ... WHERE used = FALSE): the
		loser of a concurrent double-consume receives ErrTokenAlreadyUsed.

		Parameters:
		  - context: context.Context
		  - recordID: string

		Returns:
		  - error: ErrTokenAlreadyUsed, ErrTokenNotFound, or storage failures
	*/
	Consume(context context.Context, recordID string) error

	/*
		RevokeAllOfKind bulk-marks every live record of one kind for a subject
		as used. Called on password change to force re-login everywhere.

		Parameters:
		  - context: context.Context
		  - subjectID: string
		  - kind: TokenKind

		Returns:
		  - error: Persistence failures
	*/
	RevokeAllOfKind(context context.Context, subjectID string, kind TokenKind) error

	/*
		DeleteExpired physically removes records whose ExpiresAt is in the past.
		Run periodically by the background janitor; validity never depends on it.

		Parameters:
		  - context: context.Context

		Returns:
		  - int64: Rows removed
		  - error: Cleanup failures
	*/
	DeleteExpired(context context.Context) (int64, error)
}
