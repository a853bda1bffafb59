// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veloragems/velora/internal/platform/apperr"
	"github.com/veloragems/velora/internal/platform/constants"
	"github.com/veloragems/velora/internal/platform/ctxutil"
	"github.com/veloragems/velora/internal/platform/mailer"
	"github.com/veloragems/velora/internal/platform/sec"
	"github.com/veloragems/velora/pkg/uuidv7"
)

// # Contracts & Types

// TokenProvider defines the contract for generating signed access tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT string for the given account.
	//
	// # Parameters
	//   - userID: The ID of the account.
	//   - email: The email of the account.
	//   - role: The role of the account.
	//   - timeToLive: The duration before the token expires.
	//
	// # Returns
	//   - A signed JWT string, or an error if signing fails.
	GenerateAccessToken(userID, email, role string, timeToLive time.Duration) (string, error)
}

// ClaimVerifier validates a federated provider assertion and returns the
// verified identity claim. The OAuth handshake itself happens upstream;
// this subsystem only consumes its result.
type ClaimVerifier interface {
	Verify(context context.Context, provider, assertion string) (*sec.FederatedClaims, error)
}

// dummyPasswordHash is a valid bcrypt digest compared against when the email
// lookup misses, so the unknown-account path costs a hash check too and the
// response shape stays constant.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service implements the credential and session lifecycle use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, token
// rotation, or recovery logic must be reviewed by the security team.
type Service struct {
	accounts      Repository
	tokens        TokenRegistry
	tokenProvider TokenProvider
	mail          mailer.Mailer
	claimVerifier ClaimVerifier // nil when federated login is not configured
	throttle      LoginThrottle // nil when Redis throttling is disabled
}

// NewService constructs a new identity [Service] with necessary dependencies.
// claimVerifier and throttle are optional; pass nil to disable those features.
func NewService(
	accounts Repository,
	tokens TokenRegistry,
	tokenProv TokenProvider,
	mail mailer.Mailer,
	claimVerifier ClaimVerifier,
	throttle LoginThrottle,
) *Service {
	return &Service{
		accounts:      accounts,
		tokens:        tokens,
		tokenProvider: tokenProv,
		mail:          mail,
		claimVerifier: claimVerifier,
		throttle:      throttle,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new customer.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

/*
Register validates, hashes, and persists a brand new customer account.

Description: Enrolls a new shopper, handling password hashing and the
initial email-verification token issuance.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *Account: Created entity
  - error: Conflict (if the email is taken) or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*Account, error) {
	email := foldEmail(input.Email)

	// Verify email uniqueness. Return a client-safe Conflict error.
	_, err := service.accounts.FindByEmail(context, email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("identity_service_hash_failed: %w", err)
	}

	account := &Account{
		ID:           uuidv7.New(),
		Email:        email,
		PasswordHash: hashedPassword,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         sec.RoleCustomer, // Rule: new enrollments are always customers
		IsActive:     true,
	}

	// Persist the account to the database
	if err := service.accounts.Create(context, account); err != nil {
		return nil, fmt.Errorf("identity_service_register_failed: %w", err)
	}

	// Issue the email-verification token and hand it to the mail collaborator.
	// Registration still succeeds if dispatch fails — the user can re-request.
	_, secret, err := service.tokens.Issue(context, account.ID, KindEmailVerification, VerificationTokenTTL)
	if err == nil {
		if mailErr := service.mail.SendEmailVerification(context, account.Email, secret); mailErr != nil {
			ctxutil.GetLogger(context).WarnContext(context, "verification_mail_failed",
				slog.String("account_id", account.ID), slog.Any("error", mailErr))
		}
	}

	return account, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
}

/*
Login validates credentials and issues a session token pair.

Description: Verifies identity with a constant-shape failure for unknown
email vs. wrong password, rejects disabled accounts, and issues a signed
access token plus a persisted refresh token.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *Session: Transport-ready session credentials
  - error: Unauthorized, AccountDisabled, RateLimited, or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*Session, error) {
	email := foldEmail(input.Email)

	// Brute-force guard: advisory only, a throttle outage never blocks logins.
	if blocked := service.throttled(context, email, input.IPAddress); blocked {
		return nil, apperr.RateLimited(int(constants.LoginThrottleWindow.Seconds()))
	}

	account, err := service.accounts.FindByEmail(context, email)
	if err != nil {
		// A storage failure is not an authentication verdict: it keeps its
		// 5xx shape and does not count against the throttle.
		if !apperr.IsNotFound(err) {
			return nil, err
		}

		// Unknown email: burn a bcrypt comparison anyway so this path is not
		// measurably cheaper, then fail with the same generic message.
		sec.CheckPasswordHash(input.Password, dummyPasswordHash)
		service.recordFailure(context, email, input.IPAddress)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Verify password hash. bcrypt comparison is constant-time in the password bytes.
	if !sec.CheckPasswordHash(input.Password, account.PasswordHash) {
		service.recordFailure(context, email, input.IPAddress)
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// Disabled accounts fail AFTER the password check so the error itself
	// never becomes an account-probing oracle for unauthenticated callers.
	if !account.IsActive {
		return nil, apperr.AccountDisabled()
	}

	service.resetThrottle(context, email, input.IPAddress)

	session, err := service.issueSession(context, account)
	if err != nil {
		return nil, err
	}

	// Stamp last login. Best-effort: the session is already valid.
	now := time.Now()
	account.LastLoginAt = &now
	if err := service.accounts.Save(context, account); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "last_login_stamp_failed",
			slog.String("account_id", account.ID), slog.Any("error", err))
	}

	return session, nil
}

/*
Logout revokes every live refresh token belonging to the subject.

Description: Best-effort and idempotent. Access tokens are not persisted and
therefore cannot be revoked; logout only prevents further refresh exchanges.

Parameters:
  - context: context.Context
  - subjectID: string

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(context context.Context, subjectID string) error {
	if err := service.tokens.RevokeAllOfKind(context, subjectID, KindRefresh); err != nil {
		return fmt.Errorf("identity_service_logout_failed: %w", err)
	}
	return nil
}

// # Session Rotation

/*
Refresh implements the refresh token rotation mechanism.

Description: Resolves the presented secret, consumes the old record with a
single conditional update (the loser of a concurrent race fails here, which
closes the replay window before any new credential exists), then issues a
fresh access/refresh pair.

Parameters:
  - context: context.Context
  - refreshSecret: string

Returns:
  - *Session: New session credentials
  - error: Unauthorized (collapsed token failures), NotFound, or storage failures
*/
func (service *Service) Refresh(context context.Context, refreshSecret string) (*Session, error) {
	record, err := service.tokens.Find(context, refreshSecret, KindRefresh)
	if err != nil {
		return nil, collapseTokenError(context, KindRefresh, err)
	}

	if err := checkConsumable(record, time.Now()); err != nil {
		return nil, collapseTokenError(context, KindRefresh, err)
	}

	// Rotation: consume BEFORE issuing. Two concurrent exchanges of the same
	// secret race on this conditional update and at most one proceeds, so old
	// and new tokens are never simultaneously valid beyond this call.
	if err := service.tokens.Consume(context, record.ID); err != nil {
		return nil, collapseTokenError(context, KindRefresh, err)
	}

	// The repository already shapes a missing row as NotFound; anything
	// else is a storage failure and surfaces unchanged.
	account, err := service.accounts.FindByID(context, record.SubjectID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, apperr.AccountDisabled()
	}

	return service.issueSession(context, account)
}

// # Password Recovery

/*
RequestPasswordReset initiates the forgot-password flow.

Description: Issues a reset token and hands it to the mail collaborator.
Unknown emails are reported as NotFound — unlike login, this flow is
deliberately enumerable because the next step is delivery to a concrete
mailbox (documented product trade-off).

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: NotFound, issuance, or delivery failures
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) error {
	account, err := service.accounts.FindByEmail(context, foldEmail(email))
	if err != nil {
		return err
	}

	_, secret, err := service.tokens.Issue(context, account.ID, KindPasswordReset, ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("identity_service_issue_reset_token_failed: %w", err)
	}

	if err := service.mail.SendPasswordReset(context, account.Email, secret); err != nil {
		return fmt.Errorf("identity_service_reset_mail_failed: %w", err)
	}

	return nil
}

/*
ResetPassword completes the forgot-password flow.

Description: Verifies and consumes the reset token, replaces the password
hash, revokes every outstanding refresh and reset token (forcing re-login on
all devices), and logs the caller in with a fresh session pair.

Parameters:
  - context: context.Context
  - secret: string
  - newPassword: string

Returns:
  - *Session: Post-reset session credentials
  - error: Unauthorized (collapsed token failures) or storage failures
*/
func (service *Service) ResetPassword(context context.Context, secret, newPassword string) (*Session, error) {
	record, err := service.tokens.Find(context, secret, KindPasswordReset)
	if err != nil {
		return nil, collapseTokenError(context, KindPasswordReset, err)
	}

	if err := checkConsumable(record, time.Now()); err != nil {
		return nil, collapseTokenError(context, KindPasswordReset, err)
	}

	// Consume first: the conditional update decides the winner of any race
	// before the password is touched.
	if err := service.tokens.Consume(context, record.ID); err != nil {
		return nil, collapseTokenError(context, KindPasswordReset, err)
	}

	account, err := service.accounts.FindByID(context, record.SubjectID)
	if err != nil {
		return nil, err
	}

	if err := service.replacePassword(context, account, newPassword); err != nil {
		return nil, err
	}

	return service.issueSession(context, account)
}

/*
ChangePassword allows an authenticated user to rotate their credentials.

Description: Re-verifies the current password with the same slow comparison
as login, replaces the hash, revokes all outstanding refresh and reset
tokens, and returns a fresh session pair for the current device.

Parameters:
  - context: context.Context
  - subjectID: string
  - currentPassword: string
  - newPassword: string

Returns:
  - *Session: Post-change session credentials
  - error: Unauthorized or storage failures
*/
func (service *Service) ChangePassword(context context.Context, subjectID, currentPassword, newPassword string) (*Session, error) {
	account, err := service.accounts.FindByID(context, subjectID)
	if err != nil {
		return nil, err
	}

	// Verify the current password before allowing the change.
	if !sec.CheckPasswordHash(currentPassword, account.PasswordHash) {
		return nil, apperr.Unauthorized("Current password is incorrect")
	}

	if err := service.replacePassword(context, account, newPassword); err != nil {
		return nil, err
	}

	return service.issueSession(context, account)
}

/*
VerifyEmail confirms mailbox ownership using a verification token.

Description: Verifies and consumes the token, then flips the account's
verified flag. Re-presenting the same secret fails: verification is not
replayable by design.

Parameters:
  - context: context.Context
  - secret: string

Returns:
  - error: Unauthorized (collapsed token failures) or storage failures
*/
func (service *Service) VerifyEmail(context context.Context, secret string) error {
	record, err := service.tokens.Find(context, secret, KindEmailVerification)
	if err != nil {
		return collapseTokenError(context, KindEmailVerification, err)
	}

	if err := checkConsumable(record, time.Now()); err != nil {
		return collapseTokenError(context, KindEmailVerification, err)
	}

	if err := service.tokens.Consume(context, record.ID); err != nil {
		return collapseTokenError(context, KindEmailVerification, err)
	}

	account, err := service.accounts.FindByID(context, record.SubjectID)
	if err != nil {
		return err
	}

	account.IsEmailVerified = true
	if err := service.accounts.Save(context, account); err != nil {
		return fmt.Errorf("identity_service_verify_email_failed: %w", err)
	}

	return nil
}

// # Account Administration

/*
SetAccountActive toggles an account's active flag on behalf of staff.

Description: Deactivation also revokes every live refresh token, so the
subject is locked out as soon as their current access token expires.
Reactivation restores the login path but issues nothing.

Parameters:
  - context: context.Context
  - accountID: string
  - active: bool

Returns:
  - *Account: The updated account
  - error: NotFound or storage failures
*/
func (service *Service) SetAccountActive(context context.Context, accountID string, active bool) (*Account, error) {
	account, err := service.accounts.FindByID(context, accountID)
	if err != nil {
		return nil, err
	}

	account.IsActive = active
	if err := service.accounts.Save(context, account); err != nil {
		return nil, fmt.Errorf("identity_service_set_active_failed: %w", err)
	}

	if !active {
		if err := service.tokens.RevokeAllOfKind(context, account.ID, KindRefresh); err != nil {
			return nil, fmt.Errorf("identity_service_deactivate_revoke_failed: %w", err)
		}
	}

	return account, nil
}

// # Shared Issuance

// issueSession mints the access/refresh pair returned after every successful
// authentication: login, rotation, post-reset, post-change, and federated
// login all converge here so token issuance logic exists exactly once.
func (service *Service) issueSession(context context.Context, account *Account) (*Session, error) {
	accessToken, err := service.tokenProvider.GenerateAccessToken(
		account.ID, account.Email, string(account.Role), AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("identity_service_access_token_failed: %w", err)
	}

	record, refreshSecret, err := service.tokens.Issue(context, account.ID, KindRefresh, RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("identity_service_refresh_token_failed: %w", err)
	}

	return &Session{
		AccessToken:           accessToken,
		RefreshToken:          refreshSecret,
		RefreshTokenExpiresAt: record.ExpiresAt,
		Account:               account,
	}, nil
}

// replacePassword hashes and persists a new password, stamps
// PasswordChangedAt, and revokes every outstanding refresh and reset token.
func (service *Service) replacePassword(context context.Context, account *Account, newPassword string) error {
	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("identity_service_hash_failed: %w", err)
	}

	now := time.Now()
	account.PasswordHash = hashedPassword
	account.PasswordChangedAt = &now

	if err := service.accounts.Save(context, account); err != nil {
		return fmt.Errorf("identity_service_password_update_failed: %w", err)
	}

	// Security cleanup: force re-login everywhere and kill any reset tokens
	// still in flight. Best-effort — the password change itself has landed.
	if err := service.tokens.RevokeAllOfKind(context, account.ID, KindRefresh); err != nil {
		ctxutil.GetLogger(context).ErrorContext(context, "refresh_revocation_failed",
			slog.String("account_id", account.ID), slog.Any("error", err))
	}
	if err := service.tokens.RevokeAllOfKind(context, account.ID, KindPasswordReset); err != nil {
		ctxutil.GetLogger(context).ErrorContext(context, "reset_revocation_failed",
			slog.String("account_id", account.ID), slog.Any("error", err))
	}

	return nil
}

// # Throttle Helpers

// throttled reports whether the email+IP pair is over its failure budget.
func (service *Service) throttled(context context.Context, email, ip string) bool {
	if service.throttle == nil {
		return false
	}
	blocked, err := service.throttle.TooManyAttempts(context, email, ip)
	if err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "login_throttle_unavailable", slog.Any("error", err))
		return false
	}
	return blocked
}

func (service *Service) recordFailure(context context.Context, email, ip string) {
	if service.throttle == nil {
		return
	}
	if err := service.throttle.RecordFailure(context, email, ip); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "login_throttle_unavailable", slog.Any("error", err))
	}
}

func (service *Service) resetThrottle(context context.Context, email, ip string) {
	if service.throttle == nil {
		return
	}
	if err := service.throttle.Reset(context, email, ip); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "login_throttle_unavailable", slog.Any("error", err))
	}
}

// foldEmail canonicalizes an email for lookup and storage.
func foldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
