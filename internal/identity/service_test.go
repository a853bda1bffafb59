// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloragems/velora/internal/identity"
	"github.com/veloragems/velora/internal/platform/apperr"
	"github.com/veloragems/velora/internal/platform/sec"
	"github.com/veloragems/velora/pkg/uuidv7"
)

// # In-Memory Fakes

// memoryAccounts implements identity.Repository backed by a map.
type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]*identity.Account

	// Injected lookup failures. When set, the matching lookup fails before
	// touching the map, simulating a backing-store outage.
	findByIDErr      error
	findByEmailErr   error
	findBySubjectErr error
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{accounts: make(map[string]*identity.Account)}
}

func (store *memoryAccounts) FindByID(_ context.Context, id string) (*identity.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.findByIDErr != nil {
		return nil, store.findByIDErr
	}

	account, ok := store.accounts[id]
	if !ok {
		return nil, apperr.NotFound("Account")
	}
	clone := *account
	return &clone, nil
}

func (store *memoryAccounts) FindByEmail(_ context.Context, email string) (*identity.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.findByEmailErr != nil {
		return nil, store.findByEmailErr
	}

	for _, account := range store.accounts {
		if account.Email == email {
			clone := *account
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Account")
}

func (store *memoryAccounts) FindByExternalSubject(_ context.Context, subjectID string) (*identity.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.findBySubjectErr != nil {
		return nil, store.findBySubjectErr
	}

	for _, account := range store.accounts {
		if account.ExternalSubjectID == subjectID && subjectID != "" {
			clone := *account
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Account")
}

// count reports how many accounts exist, for provisioning assertions.
func (store *memoryAccounts) count() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.accounts)
}

func (store *memoryAccounts) Create(_ context.Context, account *identity.Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, existing := range store.accounts {
		if existing.Email == account.Email {
			return apperr.Conflict("Email is already registered")
		}
	}
	clone := *account
	store.accounts[account.ID] = &clone
	return nil
}

func (store *memoryAccounts) Save(_ context.Context, account *identity.Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	clone := *account
	store.accounts[account.ID] = &clone
	return nil
}

// memoryTokens implements identity.TokenRegistry with the same
// compare-and-set consumption semantics as the SQL implementation.
type memoryTokens struct {
	mu      sync.Mutex
	records map[string]*identity.TokenRecord
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{records: make(map[string]*identity.TokenRecord)}
}

func (registry *memoryTokens) Issue(_ context.Context, subjectID string, kind identity.TokenKind, ttl time.Duration) (*identity.TokenRecord, string, error) {
	secret, err := sec.GenerateSecureToken(identity.RefreshTokenLength)
	if err != nil {
		return nil, "", err
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	now := time.Now()
	record := &identity.TokenRecord{
		ID:         uuidv7.New(),
		SubjectID:  subjectID,
		Kind:       kind,
		SecretHash: sec.HashToken(secret),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	registry.records[record.ID] = record

	clone := *record
	return &clone, secret, nil
}

func (registry *memoryTokens) Find(_ context.Context, secret string, kind identity.TokenKind) (*identity.TokenRecord, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	hash := sec.HashToken(secret)
	for _, record := range registry.records {
		if record.Kind == kind && record.SecretHash == hash {
			clone := *record
			return &clone, nil
		}
	}
	return nil, identity.ErrTokenNotFound
}

func (registry *memoryTokens) Consume(_ context.Context, recordID string) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	record, ok := registry.records[recordID]
	if !ok {
		return identity.ErrTokenNotFound
	}
	if record.Used {
		return identity.ErrTokenAlreadyUsed
	}
	record.Used = true
	return nil
}

func (registry *memoryTokens) RevokeAllOfKind(_ context.Context, subjectID string, kind identity.TokenKind) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	for _, record := range registry.records {
		if record.SubjectID == subjectID && record.Kind == kind {
			record.Used = true
		}
	}
	return nil
}

func (registry *memoryTokens) DeleteExpired(_ context.Context) (int64, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	var removed int64
	now := time.Now()
	for id, record := range registry.records {
		if !record.ExpiresAt.After(now) {
			delete(registry.records, id)
			removed++
		}
	}
	return removed, nil
}

// expire backdates a record so expiry paths can be tested without sleeping.
func (registry *memoryTokens) expire(recordID string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.records[recordID].ExpiresAt = time.Now().Add(-time.Minute)
}

// findBySecret resolves a secret to its record ID for test manipulation.
func (registry *memoryTokens) findBySecret(secret string) string {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	hash := sec.HashToken(secret)
	for id, record := range registry.records {
		if record.SecretHash == hash {
			return id
		}
	}
	return ""
}

// stubTokenProvider avoids RSA signing cost in flow tests.
type stubTokenProvider struct{}

func (stubTokenProvider) GenerateAccessToken(userID, _, _ string, _ time.Duration) (string, error) {
	return "access-" + userID, nil
}

// captureMailer records the last secret handed to each delivery channel.
type captureMailer struct {
	mu               sync.Mutex
	lastResetSecret  string
	lastVerifySecret string
	resetDeliveries  int
	verifyDeliveries int
}

func (mail *captureMailer) SendPasswordReset(_ context.Context, _, secret string) error {
	mail.mu.Lock()
	defer mail.mu.Unlock()
	mail.lastResetSecret = secret
	mail.resetDeliveries++
	return nil
}

func (mail *captureMailer) SendEmailVerification(_ context.Context, _, secret string) error {
	mail.mu.Lock()
	defer mail.mu.Unlock()
	mail.lastVerifySecret = secret
	mail.verifyDeliveries++
	return nil
}

// stubThrottle lets tests force the blocked state and observe counts.
type stubThrottle struct {
	mu       sync.Mutex
	blocked  bool
	failures int
	resets   int
}

func (throttle *stubThrottle) TooManyAttempts(_ context.Context, _, _ string) (bool, error) {
	throttle.mu.Lock()
	defer throttle.mu.Unlock()
	return throttle.blocked, nil
}

func (throttle *stubThrottle) RecordFailure(_ context.Context, _, _ string) error {
	throttle.mu.Lock()
	defer throttle.mu.Unlock()
	throttle.failures++
	return nil
}

func (throttle *stubThrottle) Reset(_ context.Context, _, _ string) error {
	throttle.mu.Lock()
	defer throttle.mu.Unlock()
	throttle.resets++
	return nil
}

// stubVerifier returns a canned federated claim or a canned error.
type stubVerifier struct {
	claims *sec.FederatedClaims
	err    error
}

func (verifier *stubVerifier) Verify(_ context.Context, _, _ string) (*sec.FederatedClaims, error) {
	if verifier.err != nil {
		return nil, verifier.err
	}
	return verifier.claims, nil
}

// # Fixture

type fixture struct {
	service  *identity.Service
	accounts *memoryAccounts
	tokens   *memoryTokens
	mail     *captureMailer
	throttle *stubThrottle
	verifier *stubVerifier

	// signer is set by the HTTP fixture so wire tests can mint tokens for
	// roles the public endpoints never hand out.
	signer *sec.TokenService
}

func newFixture() *fixture {
	f := &fixture{
		accounts: newMemoryAccounts(),
		tokens:   newMemoryTokens(),
		mail:     &captureMailer{},
		throttle: &stubThrottle{},
		verifier: &stubVerifier{},
	}
	f.service = identity.NewService(f.accounts, f.tokens, stubTokenProvider{}, f.mail, f.verifier, f.throttle)
	return f
}

func (f *fixture) register(t *testing.T, email, password string) *identity.Account {
	t.Helper()
	account, err := f.service.Register(context.Background(), identity.RegisterInput{
		Email:     email,
		Password:  password,
		FirstName: "Alice",
		LastName:  "Nguyen",
	})
	require.NoError(t, err)
	return account
}

// # Registration

func TestRegister_CreatesCustomerAndSendsVerification(t *testing.T) {
	f := newFixture()

	account := f.register(t, "Alice@Velora.SHOP", "correct horse battery")

	assert.Equal(t, "alice@velora.shop", account.Email, "email must be stored lower-cased")
	assert.Equal(t, sec.RoleCustomer, account.Role)
	assert.True(t, account.IsActive)
	assert.False(t, account.IsEmailVerified)
	assert.NotEqual(t, "correct horse battery", account.PasswordHash)
	assert.Equal(t, 1, f.mail.verifyDeliveries)
	assert.NotEmpty(t, f.mail.lastVerifySecret)
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")

	_, err := f.service.Register(context.Background(), identity.RegisterInput{
		Email:    "ALICE@velora.shop",
		Password: "another password",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "CONFLICT", appError.Code)
}

// # Login

func TestLogin_Succeeds(t *testing.T) {
	f := newFixture()
	account := f.register(t, "alice@velora.shop", "correct horse battery")

	session, err := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "ALICE@velora.shop",
		Password: "correct horse battery",
	})

	require.NoError(t, err)
	assert.Equal(t, "access-"+account.ID, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, account.ID, session.Account.ID)
	assert.Equal(t, 1, f.throttle.resets)

	stored, err := f.accounts.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt, "successful login must stamp LastLoginAt")
}

func TestLogin_WrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")

	_, wrongPassword := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "alice@velora.shop",
		Password: "wrong",
	})
	_, unknownEmail := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "nobody@velora.shop",
		Password: "wrong",
	})

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	// Both failures must be indistinguishable to the caller.
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, 2, f.throttle.failures)
}

func TestLogin_DisabledAccountRejected(t *testing.T) {
	f := newFixture()
	account := f.register(t, "alice@velora.shop", "correct horse battery")

	account.IsActive = false
	require.NoError(t, f.accounts.Save(context.Background(), account))

	_, err := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "alice@velora.shop",
		Password: "correct horse battery",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "ACCOUNT_DISABLED", appError.Code)
}

func TestLogin_ThrottledBeforePasswordCheck(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")
	f.throttle.blocked = true

	_, err := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "alice@velora.shop",
		Password: "correct horse battery",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "RATE_LIMITED", appError.Code)
}

// # Refresh Rotation

func TestRefresh_RotatesAndKillsOldToken(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")

	session, err := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "alice@velora.shop",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	rotated, err := f.service.Refresh(context.Background(), session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	// Replaying the consumed token must fail with the generic rejection.
	_, err = f.service.Refresh(context.Background(), session.RefreshToken)
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "UNAUTHORIZED", appError.Code)

	// The rotated token still works.
	_, err = f.service.Refresh(context.Background(), rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_ExpiredTokenNeverConsumable(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")

	session, err := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "alice@velora.shop",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	f.tokens.expire(f.tokens.findBySecret(session.RefreshToken))

	_, err = f.service.Refresh(context.Background(), session.RefreshToken)
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "UNAUTHORIZED", appError.Code)
}

func TestRefresh_ConcurrentExchangeHasOneWinner(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")

	session, err := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "alice@velora.shop",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	const attempts = 16
	results := make(chan error, attempts)

	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := f.service.Refresh(context.Background(), session.RefreshToken)
			results <- err
		}()
	}
	start.Done()

	winners := 0
	for i := 0; i < attempts; i++ {
		if <-results == nil {
			winners++
		}
	}

	assert.Equal(t, 1, winners, "exactly one concurrent exchange may succeed")
}

func TestRefresh_GarbageTokenRejected(t *testing.T) {
	f := newFixture()

	_, err := f.service.Refresh(context.Background(), "not-a-real-secret")
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "UNAUTHORIZED", appError.Code)
}

// # Logout

func TestLogout_RevokesAllRefreshTokens(t *testing.T) {
	f := newFixture()
	account := f.register(t, "alice@velora.shop", "correct horse battery")

	first, err := f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "correct horse battery",
	})
	require.NoError(t, err)
	second, err := f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "correct horse battery",
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), account.ID))

	_, err = f.service.Refresh(context.Background(), first.RefreshToken)
	assert.Error(t, err)
	_, err = f.service.Refresh(context.Background(), second.RefreshToken)
	assert.Error(t, err)

	// Idempotent: a second logout is not an error.
	assert.NoError(t, f.service.Logout(context.Background(), account.ID))
}

// # Password Recovery

func TestPasswordReset_EndToEnd(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "old password 123")

	preReset, err := f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "old password 123",
	})
	require.NoError(t, err)

	require.NoError(t, f.service.RequestPasswordReset(context.Background(), "alice@velora.shop"))
	require.Equal(t, 1, f.mail.resetDeliveries)

	session, err := f.service.ResetPassword(context.Background(), f.mail.lastResetSecret, "new password 456")
	require.NoError(t, err)
	assert.NotEmpty(t, session.RefreshToken, "reset must log the user in")

	// Old password dead, new password works.
	_, err = f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "old password 123",
	})
	assert.Error(t, err)
	_, err = f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "new password 456",
	})
	assert.NoError(t, err)

	// Pre-reset refresh tokens are revoked.
	_, err = f.service.Refresh(context.Background(), preReset.RefreshToken)
	assert.Error(t, err)

	// The reset token is single-use.
	_, err = f.service.ResetPassword(context.Background(), f.mail.lastResetSecret, "third password 789")
	assert.Error(t, err)
}

func TestRequestPasswordReset_UnknownEmailIsNotFound(t *testing.T) {
	f := newFixture()

	err := f.service.RequestPasswordReset(context.Background(), "nobody@velora.shop")
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "NOT_FOUND", appError.Code)
	assert.Equal(t, 0, f.mail.resetDeliveries)
}

func TestResetPassword_ExpiredTokenRejected(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "old password 123")

	require.NoError(t, f.service.RequestPasswordReset(context.Background(), "alice@velora.shop"))
	f.tokens.expire(f.tokens.findBySecret(f.mail.lastResetSecret))

	_, err := f.service.ResetPassword(context.Background(), f.mail.lastResetSecret, "new password 456")
	require.Error(t, err)

	// The old password must still work after a failed reset.
	_, err = f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "old password 123",
	})
	assert.NoError(t, err)
}

func TestChangePassword_RevokesOtherSessions(t *testing.T) {
	f := newFixture()
	account := f.register(t, "alice@velora.shop", "old password 123")

	other, err := f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "old password 123",
	})
	require.NoError(t, err)

	session, err := f.service.ChangePassword(context.Background(), account.ID, "old password 123", "new password 456")
	require.NoError(t, err)
	assert.NotEmpty(t, session.RefreshToken)

	// The other device's refresh token no longer works; the fresh one does.
	_, err = f.service.Refresh(context.Background(), other.RefreshToken)
	assert.Error(t, err)
	_, err = f.service.Refresh(context.Background(), session.RefreshToken)
	assert.NoError(t, err)
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	f := newFixture()
	account := f.register(t, "alice@velora.shop", "old password 123")

	_, err := f.service.ChangePassword(context.Background(), account.ID, "not the password", "new password 456")
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "UNAUTHORIZED", appError.Code)

	// Nothing changed.
	_, err = f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "old password 123",
	})
	assert.NoError(t, err)
}

// # Email Verification

func TestVerifyEmail_SingleUse(t *testing.T) {
	f := newFixture()
	account := f.register(t, "alice@velora.shop", "correct horse battery")

	require.NoError(t, f.service.VerifyEmail(context.Background(), f.mail.lastVerifySecret))

	stored, err := f.accounts.FindByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified)

	// Replay fails.
	err = f.service.VerifyEmail(context.Background(), f.mail.lastVerifySecret)
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "UNAUTHORIZED", appError.Code)
}

// # Federated Login

func TestFederatedLogin_ProvisionsNewAccount(t *testing.T) {
	f := newFixture()
	f.verifier.claims = &sec.FederatedClaims{
		Provider:   "google",
		SubjectID:  "google-subject-1",
		Email:      "bob@velora.shop",
		GivenName:  "Bob",
		FamilyName: "Tran",
	}

	session, err := f.service.FederatedLogin(context.Background(), identity.FederatedLoginInput{
		Provider:  "google",
		Assertion: "assertion",
	})

	require.NoError(t, err)
	account := session.Account
	assert.Equal(t, "bob@velora.shop", account.Email)
	assert.Equal(t, "google-subject-1", account.ExternalSubjectID)
	assert.Equal(t, sec.RoleCustomer, account.Role)
	assert.True(t, account.IsEmailVerified, "provider-vouched email is verified")

	// Second login resolves the same account via the subject link.
	again, err := f.service.FederatedLogin(context.Background(), identity.FederatedLoginInput{
		Provider:  "google",
		Assertion: "assertion",
	})
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.Account.ID)
}

func TestFederatedLogin_LinksExistingAccountByEmail(t *testing.T) {
	f := newFixture()
	existing := f.register(t, "alice@velora.shop", "correct horse battery")
	f.verifier.claims = &sec.FederatedClaims{
		Provider:  "apple",
		SubjectID: "apple-subject-9",
		Email:     "alice@velora.shop",
	}

	session, err := f.service.FederatedLogin(context.Background(), identity.FederatedLoginInput{
		Provider:  "apple",
		Assertion: "assertion",
	})

	require.NoError(t, err)
	assert.Equal(t, existing.ID, session.Account.ID)

	stored, err := f.accounts.FindByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "apple-subject-9", stored.ExternalSubjectID)
	assert.True(t, stored.IsEmailVerified)

	// Her password login keeps working after the link.
	_, err = f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "correct horse battery",
	})
	assert.NoError(t, err)
}

func TestFederatedLogin_RejectedAssertion(t *testing.T) {
	f := newFixture()
	f.verifier.err = errors.New("signature mismatch")

	_, err := f.service.FederatedLogin(context.Background(), identity.FederatedLoginInput{
		Provider:  "google",
		Assertion: "tampered",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "EXTERNAL_VERIFICATION_FAILED", appError.Code)
}

func TestFederatedLogin_NotConfigured(t *testing.T) {
	f := newFixture()
	service := identity.NewService(f.accounts, f.tokens, stubTokenProvider{}, f.mail, nil, f.throttle)

	_, err := service.FederatedLogin(context.Background(), identity.FederatedLoginInput{
		Provider:  "google",
		Assertion: "assertion",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "SERVICE_UNAVAILABLE", appError.Code)
}

// # Storage Failures

// An unreachable backing store must keep its server-error shape. Rewriting
// an outage into a 4xx verdict would tell callers their credentials or
// tokens are bad when nothing was actually checked.

func TestLogin_StorageFailureIsNotAnAuthVerdict(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")
	f.accounts.findByEmailErr = apperr.Internal(errors.New("connection refused"))

	_, err := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "alice@velora.shop",
		Password: "correct horse battery",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "INTERNAL_ERROR", appError.Code)
	assert.Equal(t, http.StatusInternalServerError, appError.HTTPStatus)
	assert.Zero(t, f.throttle.failures, "an outage must not count against the throttle")
}

func TestRefresh_StorageFailureIsNotNotFound(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")

	session, err := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "alice@velora.shop",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	f.accounts.findByIDErr = apperr.Internal(errors.New("connection refused"))

	_, err = f.service.Refresh(context.Background(), session.RefreshToken)
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "INTERNAL_ERROR", appError.Code)
	assert.Equal(t, http.StatusInternalServerError, appError.HTTPStatus)
}

func TestRequestPasswordReset_StorageFailureSurfaces(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")
	f.accounts.findByEmailErr = apperr.Internal(errors.New("connection refused"))

	err := f.service.RequestPasswordReset(context.Background(), "alice@velora.shop")

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "INTERNAL_ERROR", appError.Code)
	assert.Zero(t, f.mail.resetDeliveries)
}

func TestFederatedLogin_StorageFailureDoesNotProvision(t *testing.T) {
	f := newFixture()
	f.verifier.claims = &sec.FederatedClaims{
		Provider:  "google",
		SubjectID: "google-subject-1",
		Email:     "alice@velora.shop",
	}
	f.accounts.findBySubjectErr = apperr.Internal(errors.New("connection refused"))

	_, err := f.service.FederatedLogin(context.Background(), identity.FederatedLoginInput{
		Provider:  "google",
		Assertion: "assertion",
	})

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "INTERNAL_ERROR", appError.Code)
	assert.Zero(t, f.accounts.count(), "an outage must never trigger provisioning")
}

// # Account Administration

func TestSetAccountActive_DeactivateRevokesSessions(t *testing.T) {
	f := newFixture()
	account := f.register(t, "alice@velora.shop", "correct horse battery")

	session, err := f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "correct horse battery",
	})
	require.NoError(t, err)

	updated, err := f.service.SetAccountActive(context.Background(), account.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	// The live refresh token died with the deactivation.
	_, err = f.service.Refresh(context.Background(), session.RefreshToken)
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "UNAUTHORIZED", appError.Code)

	// Password login is rejected while inactive.
	_, err = f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "correct horse battery",
	})
	require.Error(t, err)
	appError = apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "ACCOUNT_DISABLED", appError.Code)

	// Reactivation restores the login path.
	_, err = f.service.SetAccountActive(context.Background(), account.ID, true)
	require.NoError(t, err)

	_, err = f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "correct horse battery",
	})
	assert.NoError(t, err)
}

func TestSetAccountActive_UnknownAccount(t *testing.T) {
	f := newFixture()

	_, err := f.service.SetAccountActive(context.Background(), uuidv7.New(), false)

	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "NOT_FOUND", appError.Code)
}

// # Janitor

func TestDeleteExpired_PurgesOnlyExpiredRows(t *testing.T) {
	f := newFixture()
	f.register(t, "alice@velora.shop", "correct horse battery")

	session, err := f.service.Login(context.Background(), identity.LoginInput{
		Email: "alice@velora.shop", Password: "correct horse battery",
	})
	require.NoError(t, err)

	require.NoError(t, f.service.RequestPasswordReset(context.Background(), "alice@velora.shop"))
	f.tokens.expire(f.tokens.findBySecret(f.mail.lastResetSecret))

	removed, err := f.tokens.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// The live refresh token survived the sweep.
	_, err = f.service.Refresh(context.Background(), session.RefreshToken)
	assert.NoError(t, err)
}
