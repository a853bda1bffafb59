// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

/*
Package identity implements credential and session lifecycle management for
the Velora platform.

It owns the issuing, rotating, verifying, and revoking of authentication
artifacts: signed access tokens, opaque refresh tokens, password-reset tokens,
and email-verification tokens. Single-use tokens carry an exactly-once
consumption contract enforced by a conditional update at the storage layer.

# Architecture

  - Service: Orchestrates login, rotation, recovery, and federated flows.
  - Repository / TokenRegistry: Abstracted storage contracts (PostgreSQL).
  - Security: Leverages bcrypt hashing and RSA-signed JWTs via [sec].

This layer is the "Truth" of the system for who a request belongs to.
*/
package identity

import (
	"time"

	"github.com/veloragems/velora/internal/platform/sec"
)

// # Domain Entities

// Account represents a registered member of the Velora platform.
//
// The password hash never crosses this package's boundary: it is excluded
// from JSON serialization and no method returns it.
type Account struct {
	ID                string       `json:"id"`
	Email             string       `json:"email"`
	PasswordHash      string       `json:"-"` // Explicitly omitted from JSON for security.
	FirstName         string       `json:"first_name"`
	LastName          string       `json:"last_name"`
	Role              sec.UserRole `json:"role"`
	IsActive          bool         `json:"is_active"`
	IsEmailVerified   bool         `json:"is_email_verified"`
	ExternalSubjectID string       `json:"-"` // Federated provider subject link. Omitted for privacy.
	LastLoginAt       *time.Time   `json:"last_login_at,omitempty"`
	PasswordChangedAt *time.Time   `json:"-"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Session represents a successfully established authentication session:
// a short-lived signed access token plus a long-lived opaque refresh secret.
type Session struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	Account               *Account
}

// # Field Identifiers

// Global field names for validation and identity mapping in the identity domain.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldFirstName       = "first_name"
	FieldLastName        = "last_name"
	FieldToken           = "token"
	FieldRefreshToken    = "refresh_token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldProvider        = "provider"
	FieldAssertion       = "assertion"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldAccount         = "account"
	FieldMessage         = "message"
)
