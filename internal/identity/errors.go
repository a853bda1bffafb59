// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/veloragems/velora/internal/platform/apperr"
	"github.com/veloragems/velora/internal/platform/ctxutil"
)

// # Token Failure Taxonomy

// Internal sentinels distinguishing why a presented secret was rejected.
// They exist for logging and metrics only: the HTTP boundary collapses all
// three into one generic Unauthorized so callers cannot tell a wrong token
// from an expired one (oracle resistance).
var (
	// ErrTokenNotFound means no record matches the presented secret and kind.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired means the record exists but its ExpiresAt has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenAlreadyUsed means the record was already consumed — including
	// losing a concurrent consume race by a single conditional update.
	ErrTokenAlreadyUsed = errors.New("token already used")
)

// checkConsumable maps a live record to the matching internal sentinel,
// or nil when the record may still be exchanged.
func checkConsumable(record *TokenRecord, now time.Time) error {
	if record.Used {
		return ErrTokenAlreadyUsed
	}
	if !record.ExpiresAt.After(now) {
		return ErrTokenExpired
	}
	return nil
}

// collapseTokenError logs the precise internal rejection reason and returns
// the single client-facing failure shared by every token flow.
func collapseTokenError(ctx context.Context, kind TokenKind, err error) error {
	switch {
	case errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenAlreadyUsed):
		ctxutil.GetLogger(ctx).WarnContext(ctx, "token_rejected",
			slog.String("kind", string(kind)),
			slog.String("reason", err.Error()),
		)
		return apperr.Unauthorized("Invalid or expired token")
	default:
		// Storage failures keep their cause for the 5xx log path.
		return err
	}
}
