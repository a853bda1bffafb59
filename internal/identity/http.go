// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veloragems/velora/internal/platform/apperr"
	"github.com/veloragems/velora/internal/platform/constants"
	"github.com/veloragems/velora/internal/platform/middleware"
	requestutil "github.com/veloragems/velora/internal/platform/request"
	"github.com/veloragems/velora/internal/platform/respond"
	"github.com/veloragems/velora/internal/platform/sec"
	"github.com/veloragems/velora/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the identity HTTP endpoints.
//
// # Scope
//
// This handler manages everything related to the credential lifecycle entry
// points (Registration, Login, Rotation, Recovery, Federated bridge).
//
// # Transport
//
// Refresh tokens travel in JSON bodies, not cookies: the callers are the
// storefront SPA and native apps, and the mobile clients have no cookie jar.
type Handler struct {
	identityService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{identityService: service}
}

// Routes returns a [chi.Router] configured with identity-specific routes.
//
// # Endpoints
//   - POST /register        : Creates a new account.
//   - POST /login           : Authenticates and returns a session pair.
//   - POST /refresh         : Rotates a refresh token.
//   - POST /federated-login : Exchanges a provider assertion for a session.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)
	router.Post("/federated-login", handler.federatedLogin)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Post("/change-password", handler.changePassword)
	})

	// Staff-only account administration
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(sec.RoleStaff))
		r.Post("/accounts/{accountID}/deactivate", handler.deactivateAccount)
		r.Post("/accounts/{accountID}/reactivate", handler.reactivateAccount)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type federatedLoginRequest struct {
	Provider  string `json:"provider"`
	Assertion string `json:"assertion"`
}

// sessionPayload shapes a [Session] for the wire. Every flow that ends in a
// live session (login, refresh, reset, change, federated) responds with it.
func sessionPayload(session *Session) map[string]any {
	return map[string]any{
		FieldAccessToken:  session.AccessToken,
		FieldRefreshToken: session.RefreshToken,
		FieldTokenType:    "Bearer",
		FieldExpiresIn:    int64(AccessTokenTTL / time.Second),
		FieldAccount:      session.Account,
	}
}

/*
Register handles the creation of a new customer account.

POST /api/v1/auth/register

Description: Validates input, checks for identity conflicts, persists a new
account, and kicks off email verification.

Request:
  - Body: registerRequest (Email, Password, FirstName, LastName)

Response:
  - 201: Account: Created account profile
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Email already registered
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8).
		MaxLen(FieldFirstName, input.FirstName, 100).
		MaxLen(FieldLastName, input.LastName, 100)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.identityService.Register(request.Context(), RegisterInput{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, account)
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials and returns a signed access token plus an
opaque refresh token.

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: Session payload: Access/refresh tokens and account profile
  - 401: ErrUnauthorized: Invalid credentials
  - 403: AccountDisabled: Account deactivated
  - 429: RateLimited: Too many failed attempts
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.identityService.Login(request.Context(), LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		IPAddress: getClientIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessionPayload(session))
}

/*
Refresh rotates a refresh token into a new session pair.

POST /api/v1/auth/refresh

Description: Consumes the presented refresh token and issues a fresh
access/refresh pair. The old refresh token is dead after this call, whether
or not the response reaches the client.

Request:
  - Body: refreshRequest (RefreshToken)

Response:
  - 200: Session payload: New credentials
  - 401: ErrUnauthorized: Missing, invalid, expired, or already-used token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.RefreshToken == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token"))
		return
	}

	session, err := handler.identityService.Refresh(request.Context(), input.RefreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessionPayload(session))
}

/*
Logout terminates every session belonging to the authenticated user.

POST /api/v1/auth/logout

Description: Revokes all of the caller's live refresh tokens. Idempotent:
logging out twice is not an error.

Response:
  - 200: Empty envelope: Sessions terminated
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.identityService.Logout(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, struct{}{})
}

/*
VerifyEmail confirms a user's email ownership.

POST /api/v1/auth/verify-email

Description: Consumes an email verification token and marks the account as
verified. Tokens are single-use.

Request:
  - Body: verifyEmailRequest (Token)

Response:
  - 200: Success: Email verified
  - 401: ErrUnauthorized: Invalid, expired, or already-used token
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Token == "" {
		respond.Error(writer, request, validate.RequiredError(FieldToken, "is required"))
		return
	}

	if err := handler.identityService.VerifyEmail(request.Context(), input.Token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Email verified successfully",
	})
}

/*
ForgotPassword initiates the password recovery flow.

POST /api/v1/auth/forgot-password

Description: Issues a reset token and mails it to the account. Unknown
emails return 404 — recovery requires a concrete mailbox, so this endpoint
trades enumeration resistance for usable feedback.

Request:
  - Body: forgotPasswordRequest (Email)

Response:
  - 200: Success: Reset link sent
  - 404: ErrNotFound: No account with this email
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.identityService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "A reset link has been sent to this email.",
	})
}

/*
ResetPassword completes the password recovery flow.

POST /api/v1/auth/reset-password

Description: Consumes the reset token, updates the password, revokes all
existing sessions, and logs the user in with a fresh session pair.

Request:
  - Body: resetPasswordRequest (Token, NewPassword)

Response:
  - 200: Session payload: Post-reset credentials
  - 401: ErrUnauthorized: Invalid, expired, or already-used token
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldToken, input.Token).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, 8)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.identityService.ResetPassword(request.Context(), input.Token, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessionPayload(session))
}

/*
ChangePassword updates the authenticated user's password.

POST /api/v1/auth/change-password

Description: Verifies the current password before applying the new one,
revokes every other session, and returns fresh credentials for this device.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Session payload: Post-change credentials
  - 401: ErrUnauthorized: Session invalid or current password incorrect
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, 8)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.identityService.ChangePassword(
		request.Context(),
		userID,
		input.CurrentPassword,
		input.NewPassword,
	)

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessionPayload(session))
}

/*
FederatedLogin exchanges an external provider assertion for a session.

POST /api/v1/auth/federated-login

Description: Verifies the provider's ID token, then links or provisions a
local account and issues a session pair.

Request:
  - Body: federatedLoginRequest (Provider, Assertion)

Response:
  - 200: Session payload: Credentials for the resolved account
  - 401: ExternalVerificationFailure: Assertion rejected
  - 403: AccountDisabled: Linked account deactivated
  - 503: ServiceUnavailable: Federated login not configured
*/
func (handler *Handler) federatedLogin(writer http.ResponseWriter, request *http.Request) {
	var input federatedLoginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldProvider, input.Provider).
		OneOf(FieldProvider, input.Provider, "google", "apple").
		Required(FieldAssertion, input.Assertion)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.identityService.FederatedLogin(request.Context(), FederatedLoginInput{
		Provider:  input.Provider,
		Assertion: input.Assertion,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessionPayload(session))
}

/*
DeactivateAccount disables an account on behalf of staff.

POST /api/v1/auth/accounts/{accountID}/deactivate

Description: Flips the account inactive and revokes its live refresh tokens.
The subject is locked out once their current access token expires.

Response:
  - 200: Account payload: The deactivated account
  - 403: ErrForbidden: Caller lacks the staff role
  - 404: ErrNotFound: No such account
*/
func (handler *Handler) deactivateAccount(writer http.ResponseWriter, request *http.Request) {
	handler.setAccountActive(writer, request, false)
}

/*
ReactivateAccount restores a previously deactivated account.

POST /api/v1/auth/accounts/{accountID}/reactivate

Response:
  - 200: Account payload: The reactivated account
  - 403: ErrForbidden: Caller lacks the staff role
  - 404: ErrNotFound: No such account
*/
func (handler *Handler) reactivateAccount(writer http.ResponseWriter, request *http.Request) {
	handler.setAccountActive(writer, request, true)
}

// setAccountActive is the shared implementation of the two staff toggles.
func (handler *Handler) setAccountActive(writer http.ResponseWriter, request *http.Request, active bool) {
	accountID := chi.URLParam(request, "accountID")

	account, err := handler.identityService.SetAccountActive(request.Context(), accountID, active)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldAccount: account})
}

// getClientIP tries to extract the real IP address of a user over proxy environments.
func getClientIP(request *http.Request) string {
	ip := request.Header.Get(constants.HeaderXRealIP)
	if ip == "" {
		ip = request.Header.Get(constants.HeaderXForwardedFor)
	}

	if ip == "" {
		ip = request.RemoteAddr
	}
	return ip
}
