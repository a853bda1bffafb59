// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package sec_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloragems/velora/internal/platform/sec"
)

func newTestTokenService(t *testing.T) *sec.TokenService {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return sec.NewTokenServiceFromKeys(privateKey, "velora.shop")
}

/*
TestTokenService_RoundTrip signs an access token and verifies the claims survive.
*/
func TestTokenService_RoundTrip(t *testing.T) {
	service := newTestTokenService(t)

	signed, err := service.GenerateAccessToken("user-1", "alice@velora.shop", "customer", 15*time.Minute)
	require.NoError(t, err)

	claims, err := service.VerifyToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@velora.shop", claims.Email)
	assert.Equal(t, "customer", claims.Role)
	assert.Equal(t, "velora.shop", claims.Issuer)
}

/*
TestTokenService_ExpiredRejected confirms that an already-expired token
fails verification.
*/
func TestTokenService_ExpiredRejected(t *testing.T) {
	service := newTestTokenService(t)

	signed, err := service.GenerateAccessToken("user-1", "alice@velora.shop", "customer", -time.Minute)
	require.NoError(t, err)

	_, err = service.VerifyToken(signed)
	assert.Error(t, err)
}

/*
TestTokenService_ForeignKeyRejected confirms tokens signed by a different
key pair do not verify.
*/
func TestTokenService_ForeignKeyRejected(t *testing.T) {
	service := newTestTokenService(t)
	foreign := newTestTokenService(t)

	signed, err := foreign.GenerateAccessToken("user-1", "alice@velora.shop", "customer", 15*time.Minute)
	require.NoError(t, err)

	_, err = service.VerifyToken(signed)
	assert.Error(t, err)
}

/*
TestTokenService_GarbageRejected confirms arbitrary strings fail verification.
*/
func TestTokenService_GarbageRejected(t *testing.T) {
	service := newTestTokenService(t)

	_, err := service.VerifyToken("not.a.jwt")
	assert.Error(t, err)
}
