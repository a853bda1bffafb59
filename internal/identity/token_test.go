// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenKindSecretLength(t *testing.T) {
	assert.Equal(t, RefreshTokenLength, KindRefresh.secretLength())
	assert.Equal(t, ResetTokenLength, KindPasswordReset.secretLength())
	assert.Equal(t, VerificationTokenLength, KindEmailVerification.secretLength())

	// Unknown kinds fall back to the refresh length rather than zero entropy.
	assert.Equal(t, RefreshTokenLength, TokenKind("unknown").secretLength())
}
