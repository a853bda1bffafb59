// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package sec_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloragems/velora/internal/platform/sec"
)

const (
	testIssuer   = "https://accounts.example.com"
	testAudience = "velora-storefront"
)

// signIDToken mints an OIDC-shaped ID token for the verifier under test.
func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":         testIssuer,
		"aud":         testAudience,
		"sub":         "provider-subject-42",
		"email":       "Alice@Velora.SHOP",
		"given_name":  "Alice",
		"family_name": "Nguyen",
		"exp":         time.Now().Add(time.Hour).Unix(),
		"iat":         time.Now().Unix(),
	}
}

/*
TestFederatedVerifier_Verify checks a well-formed assertion resolves to a claim.
*/
func TestFederatedVerifier_Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := sec.NewFederatedVerifierFromKey(testIssuer, testAudience, &key.PublicKey)

	assertion := signIDToken(t, key, baseClaims())

	claims, err := verifier.Verify(context.Background(), "google", assertion)
	require.NoError(t, err)
	assert.Equal(t, "google", claims.Provider)
	assert.Equal(t, "provider-subject-42", claims.SubjectID)
	assert.Equal(t, "alice@velora.shop", claims.Email, "email must be canonicalized")
	assert.Equal(t, "Alice", claims.GivenName)
	assert.Equal(t, "Nguyen", claims.FamilyName)
}

/*
TestFederatedVerifier_Rejections enumerates the assertion failure modes.
*/
func TestFederatedVerifier_Rejections(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier := sec.NewFederatedVerifierFromKey(testIssuer, testAudience, &key.PublicKey)

	tests := []struct {
		name      string
		assertion string
	}{
		{"garbage", "not.a.jwt"},
		{"wrong_key", signIDToken(t, otherKey, baseClaims())},
		{"wrong_issuer", signIDToken(t, key, func() jwt.MapClaims {
			c := baseClaims()
			c["iss"] = "https://evil.example.com"
			return c
		}())},
		{"wrong_audience", signIDToken(t, key, func() jwt.MapClaims {
			c := baseClaims()
			c["aud"] = "someone-else"
			return c
		}())},
		{"expired", signIDToken(t, key, func() jwt.MapClaims {
			c := baseClaims()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return c
		}())},
		{"missing_email", signIDToken(t, key, func() jwt.MapClaims {
			c := baseClaims()
			delete(c, "email")
			return c
		}())},
		{"missing_subject", signIDToken(t, key, func() jwt.MapClaims {
			c := baseClaims()
			delete(c, "sub")
			return c
		}())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), "google", tt.assertion)
			assert.Error(t, err)
		})
	}
}
