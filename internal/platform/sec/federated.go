// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package sec

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// FederatedClaims is the verified identity extracted from an external
// provider's ID token. Only the fields Velora actually consumes are kept.
type FederatedClaims struct {
	Provider   string
	SubjectID  string
	Email      string
	GivenName  string
	FamilyName string
}

// idTokenClaims mirrors the OIDC standard claim names on the wire.
type idTokenClaims struct {
	jwt.RegisteredClaims

	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// FederatedVerifier validates RS256-signed ID tokens from a single trusted
// external provider. The OAuth dance happens on the edge; this type only
// checks the resulting assertion's signature, issuer, and audience.
type FederatedVerifier struct {
	issuer    string
	audience  string
	publicKey *rsa.PublicKey
}

// NewFederatedVerifier creates a verifier pinned to one provider's issuer,
// audience, and PEM-encoded RSA public key on disk.
func NewFederatedVerifier(issuer, audience, publicKeyPath string) (*FederatedVerifier, error) {
	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read federated public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse federated public key: %w", err)
	}

	return &FederatedVerifier{issuer: issuer, audience: audience, publicKey: publicKey}, nil
}

// NewFederatedVerifierFromKey creates a verifier from an in-memory key.
// Used by tests and by deployments that inject keys via a secret manager.
func NewFederatedVerifierFromKey(issuer, audience string, publicKey *rsa.PublicKey) *FederatedVerifier {
	return &FederatedVerifier{issuer: issuer, audience: audience, publicKey: publicKey}
}

// Verify parses and validates the assertion, returning the identity claim.
// The provider label is carried through untouched so callers can attribute
// the link without re-deriving it from the issuer URL.
func (verifier *FederatedVerifier) Verify(_ context.Context, provider, assertion string) (*FederatedClaims, error) {
	token, err := jwt.ParseWithClaims(assertion, &idTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return verifier.publicKey, nil
	},
		jwt.WithIssuer(verifier.issuer),
		jwt.WithAudience(verifier.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("sec: invalid federated assertion: %w", err)
	}

	claims, ok := token.Claims.(*idTokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid federated claims")
	}

	// Subject and email are both mandatory: the subject anchors the account
	// link and the email drives first-time matching.
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("sec: federated assertion missing subject or email")
	}

	return &FederatedClaims{
		Provider:   provider,
		SubjectID:  claims.Subject,
		Email:      strings.ToLower(strings.TrimSpace(claims.Email)),
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
	}, nil
}
