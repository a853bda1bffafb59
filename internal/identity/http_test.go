// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloragems/velora/internal/identity"
	"github.com/veloragems/velora/internal/platform/middleware"
	"github.com/veloragems/velora/internal/platform/sec"
	"github.com/veloragems/velora/pkg/uuidv7"
)

// newTestRouter wires the identity handler behind the real authentication
// middleware with a freshly generated RSA key, mirroring the production
// router composition.
func newTestRouter(t *testing.T) (*httptest.Server, *fixture) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokenService := sec.NewTokenServiceFromKeys(privateKey, "velora.shop")

	f := &fixture{
		accounts: newMemoryAccounts(),
		tokens:   newMemoryTokens(),
		mail:     &captureMailer{},
		throttle: &stubThrottle{},
		verifier: &stubVerifier{},
		signer:   tokenService,
	}
	f.service = identity.NewService(f.accounts, f.tokens, tokenService, f.mail, f.verifier, f.throttle)

	router := chi.NewRouter()
	router.Use(middleware.Authenticate(tokenService))
	router.Mount("/auth", identity.NewHandler(f.service).Routes())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, f
}

func postJSON(t *testing.T, url, bearer string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}

	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	return response
}

// decodeData unwraps the success envelope's data object.
func decodeData(t *testing.T, response *http.Response) map[string]any {
	t.Helper()
	defer response.Body.Close()

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(response.Body).Decode(&envelope))
	return envelope.Data
}

/*
TestHTTP_LoginRefreshLogout drives the full session lifecycle over the wire:
register, login, rotate the refresh token, replay the dead one, log out.
*/
func TestHTTP_LoginRefreshLogout(t *testing.T) {
	server, _ := newTestRouter(t)

	// Register
	response := postJSON(t, server.URL+"/auth/register", "", map[string]string{
		"email":      "alice@velora.shop",
		"password":   "correct horse battery",
		"first_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, response.StatusCode)
	response.Body.Close()

	// Login
	response = postJSON(t, server.URL+"/auth/login", "", map[string]string{
		"email":    "alice@velora.shop",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, response.StatusCode)
	session := decodeData(t, response)

	accessToken, _ := session["access_token"].(string)
	refreshToken, _ := session["refresh_token"].(string)
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)
	assert.Equal(t, "Bearer", session["token_type"])

	// Rotate
	response = postJSON(t, server.URL+"/auth/refresh", "", map[string]string{
		"refresh_token": refreshToken,
	})
	require.Equal(t, http.StatusOK, response.StatusCode)
	rotated := decodeData(t, response)
	assert.NotEqual(t, refreshToken, rotated["refresh_token"])

	// Replaying the consumed token fails.
	response = postJSON(t, server.URL+"/auth/refresh", "", map[string]string{
		"refresh_token": refreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	response.Body.Close()

	// Logout with the signed access token.
	response = postJSON(t, server.URL+"/auth/logout", accessToken, nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	response.Body.Close()

	// The rotated refresh token died with the logout.
	newRefresh, _ := rotated["refresh_token"].(string)
	response = postJSON(t, server.URL+"/auth/refresh", "", map[string]string{
		"refresh_token": newRefresh,
	})
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	response.Body.Close()
}

/*
TestHTTP_ProtectedRoutesRequireAuth confirms the protected group rejects
anonymous callers.
*/
func TestHTTP_ProtectedRoutesRequireAuth(t *testing.T) {
	server, _ := newTestRouter(t)

	response := postJSON(t, server.URL+"/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	response.Body.Close()

	response = postJSON(t, server.URL+"/auth/change-password", "", map[string]string{
		"current_password": "a",
		"new_password":     "something long",
	})
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	response.Body.Close()
}

/*
TestHTTP_ValidationErrors checks the 400 envelope for malformed input.
*/
func TestHTTP_ValidationErrors(t *testing.T) {
	server, _ := newTestRouter(t)

	tests := []struct {
		name    string
		path    string
		payload map[string]string
	}{
		{"register_bad_email", "/auth/register", map[string]string{
			"email": "not-an-email", "password": "long enough pass",
		}},
		{"register_short_password", "/auth/register", map[string]string{
			"email": "alice@velora.shop", "password": "short",
		}},
		{"forgot_missing_email", "/auth/forgot-password", map[string]string{}},
		{"federated_unknown_provider", "/auth/federated-login", map[string]string{
			"provider": "myspace", "assertion": "x",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := postJSON(t, server.URL+tt.path, "", tt.payload)
			assert.Equal(t, http.StatusBadRequest, response.StatusCode)
			response.Body.Close()
		})
	}
}

/*
TestHTTP_PasswordResetFlow exercises forgot-password and reset-password,
asserting the reset response carries a usable session.
*/
func TestHTTP_PasswordResetFlow(t *testing.T) {
	server, f := newTestRouter(t)

	response := postJSON(t, server.URL+"/auth/register", "", map[string]string{
		"email":    "alice@velora.shop",
		"password": "old password 123",
	})
	require.Equal(t, http.StatusCreated, response.StatusCode)
	response.Body.Close()

	response = postJSON(t, server.URL+"/auth/forgot-password", "", map[string]string{
		"email": "alice@velora.shop",
	})
	require.Equal(t, http.StatusOK, response.StatusCode)
	response.Body.Close()
	require.NotEmpty(t, f.mail.lastResetSecret)

	response = postJSON(t, server.URL+"/auth/reset-password", "", map[string]string{
		"token":        f.mail.lastResetSecret,
		"new_password": "new password 456",
	})
	require.Equal(t, http.StatusOK, response.StatusCode)
	session := decodeData(t, response)
	assert.NotEmpty(t, session["access_token"])
	assert.NotEmpty(t, session["refresh_token"])

	// Unknown email is a visible 404 on this endpoint.
	response = postJSON(t, server.URL+"/auth/forgot-password", "", map[string]string{
		"email": "nobody@velora.shop",
	})
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	response.Body.Close()
}

/*
TestHTTP_StaffAccountAdministration drives the staff-only deactivate and
reactivate toggles, including the role-gate rejections.
*/
func TestHTTP_StaffAccountAdministration(t *testing.T) {
	server, f := newTestRouter(t)

	// A customer signs up and logs in.
	response := postJSON(t, server.URL+"/auth/register", "", map[string]string{
		"email":    "alice@velora.shop",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, response.StatusCode)
	accountID, _ := decodeData(t, response)["id"].(string)
	require.NotEmpty(t, accountID)

	response = postJSON(t, server.URL+"/auth/login", "", map[string]string{
		"email":    "alice@velora.shop",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, response.StatusCode)
	customerToken, _ := decodeData(t, response)["access_token"].(string)
	require.NotEmpty(t, customerToken)

	deactivateURL := server.URL + "/auth/accounts/" + accountID + "/deactivate"

	// Anonymous and customer callers are both turned away.
	response = postJSON(t, deactivateURL, "", nil)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	response.Body.Close()

	response = postJSON(t, deactivateURL, customerToken, nil)
	assert.Equal(t, http.StatusForbidden, response.StatusCode)
	response.Body.Close()

	// A staff member flips the account off.
	staffToken, err := f.signer.GenerateAccessToken(
		uuidv7.New(), "staff@velora.shop", string(sec.RoleStaff), time.Minute)
	require.NoError(t, err)

	response = postJSON(t, deactivateURL, staffToken, nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	account, _ := decodeData(t, response)["account"].(map[string]any)
	require.NotNil(t, account)
	assert.Equal(t, false, account["is_active"])

	// The deactivated customer can no longer log in.
	response = postJSON(t, server.URL+"/auth/login", "", map[string]string{
		"email":    "alice@velora.shop",
		"password": "correct horse battery",
	})
	assert.Equal(t, http.StatusForbidden, response.StatusCode)
	response.Body.Close()

	// Reactivation restores the login path.
	response = postJSON(t, server.URL+"/auth/accounts/"+accountID+"/reactivate", staffToken, nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	response.Body.Close()

	response = postJSON(t, server.URL+"/auth/login", "", map[string]string{
		"email":    "alice@velora.shop",
		"password": "correct horse battery",
	})
	assert.Equal(t, http.StatusOK, response.StatusCode)
	response.Body.Close()

	// Unknown accounts are a 404 even for staff.
	response = postJSON(t, server.URL+"/auth/accounts/"+uuidv7.New()+"/deactivate", staffToken, nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	response.Body.Close()
}
