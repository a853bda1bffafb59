// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veloragems/velora/internal/platform/apperr"
	"github.com/veloragems/velora/internal/platform/ctxutil"
	"github.com/veloragems/velora/internal/platform/sec"
	"github.com/veloragems/velora/pkg/uuidv7"
)

// # Federated Identity Bridge

// FederatedLoginInput carries the provider label plus the raw assertion
// obtained from the provider by the client-side OAuth handshake.
type FederatedLoginInput struct {
	Provider  string
	Assertion string
}

/*
FederatedLogin authenticates a user through an external identity provider.

Description: Verifies the provider assertion, then resolves it to a local
account in three tiers — previously linked subject, existing account with the
same email (linked on the spot), or just-in-time provisioning with an
unusable random password. All tiers converge on the same session issuance as
a plain login.

Parameters:
  - context: context.Context
  - input: FederatedLoginInput

Returns:
  - *Session: Transport-ready session credentials
  - error: ExternalVerificationFailure, AccountDisabled, or storage failures
*/
func (service *Service) FederatedLogin(context context.Context, input FederatedLoginInput) (*Session, error) {
	if service.claimVerifier == nil {
		return nil, apperr.ServiceUnavailable("Federated login is not configured")
	}

	claims, err := service.claimVerifier.Verify(context, input.Provider, input.Assertion)
	if err != nil {
		// Assertion failures are a client problem, not ours: log the cause
		// and return the collapsed external-verification error.
		ctxutil.GetLogger(context).WarnContext(context, "federated_assertion_rejected",
			slog.String("provider", input.Provider), slog.Any("error", err))
		return nil, apperr.ExternalVerificationFailure()
	}

	account, err := service.resolveFederatedAccount(context, claims)
	if err != nil {
		return nil, err
	}

	if !account.IsActive {
		return nil, apperr.AccountDisabled()
	}

	return service.issueSession(context, account)
}

// resolveFederatedAccount maps a verified claim to a local account,
// linking or provisioning as needed.
func (service *Service) resolveFederatedAccount(context context.Context, claims *sec.FederatedClaims) (*Account, error) {
	// Tier 1: subject already linked from a previous federated login.
	// Only a genuine miss moves to the next tier: a storage failure must
	// surface rather than trigger a spurious link or provision attempt.
	account, err := service.accounts.FindByExternalSubject(context, claims.SubjectID)
	if err == nil {
		return account, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	// Tier 2: an account with the same email exists. Link it to the subject
	// so future logins hit tier 1. The provider already verified the mailbox,
	// so the link also settles our own verification flag.
	account, err = service.accounts.FindByEmail(context, claims.Email)
	if err == nil {
		account.ExternalSubjectID = claims.SubjectID
		account.IsEmailVerified = true
		if err := service.accounts.Save(context, account); err != nil {
			return nil, fmt.Errorf("identity_service_federated_link_failed: %w", err)
		}
		return account, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	// Tier 3: no account at all. Provision one just in time.
	return service.provisionFederatedAccount(context, claims)
}

// provisionFederatedAccount creates a customer account for a first-time
// federated login. The password hash is derived from a random secret that is
// discarded immediately, so the password path stays unusable until the user
// runs the recovery flow to set one.
func (service *Service) provisionFederatedAccount(context context.Context, claims *sec.FederatedClaims) (*Account, error) {
	randomSecret, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("identity_service_provision_secret_failed: %w", err)
	}

	unusableHash, err := sec.HashPassword(randomSecret)
	if err != nil {
		return nil, fmt.Errorf("identity_service_hash_failed: %w", err)
	}

	account := &Account{
		ID:                uuidv7.New(),
		Email:             claims.Email,
		PasswordHash:      unusableHash,
		FirstName:         claims.GivenName,
		LastName:          claims.FamilyName,
		Role:              sec.RoleCustomer,
		IsActive:          true,
		IsEmailVerified:   true, // The provider vouches for the mailbox.
		ExternalSubjectID: claims.SubjectID,
	}

	if err := service.accounts.Create(context, account); err != nil {
		return nil, fmt.Errorf("identity_service_provision_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "federated_account_provisioned",
		slog.String("account_id", account.ID), slog.String("provider", claims.Provider))

	return account, nil
}
