// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import (
	"context"
)

// # Account Data Access

// Repository defines the data access contract for identity accounts
// (the Credential Store collaborator).
type Repository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Account: Hydrated entity
		  - error: apperr.NotFound or database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Account, error)

	/*
		FindByEmail returns the account with the given email.
		Lookup is case-insensitive: implementations compare against the
		lower-cased stored value.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *Account: Hydrated entity
		  - error: apperr.NotFound or database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*Account, error)

	/*
		FindByExternalSubject returns the account linked to the given
		federated provider subject ID.

		Parameters:
		  - context: context.Context
		  - externalSubjectID: string

		Returns:
		  - *Account: Hydrated entity
		  - error: apperr.NotFound or database retrieval failures
	*/
	FindByExternalSubject(context context.Context, externalSubjectID string) (*Account, error)

	/*
		Create persists a brand-new account to the storage.

		Parameters:
		  - context: context.Context
		  - account: *Account

		Returns:
		  - error: Persistence failures (Conflict on duplicate email)
	*/
	Create(context context.Context, account *Account) error

	/*
		Save persists the mutable credential fields of an existing account:
		password hash, active/verified flags, timestamps, external subject link.

		Parameters:
		  - context: context.Context
		  - account: *Account

		Returns:
		  - error: Persistence failures
	*/
	Save(context context.Context, account *Account) error
}

// # Login Throttling

// LoginThrottle tracks failed authentication attempts per (email, IP) in a
// volatile store so brute-force runs hit a wall long before bcrypt does.
//
// Throttle storage failures must never take logins down: the Service treats
// errors from these methods as advisory and logs them.
type LoginThrottle interface {

	// TooManyAttempts reports whether the pair has exhausted its window budget.
	TooManyAttempts(context context.Context, email, ip string) (bool, error)

	// RecordFailure increments the pair's counter, starting the window on first failure.
	RecordFailure(context context.Context, email, ip string) error

	// Reset clears the pair's counter after a successful login.
	Reset(context context.Context, email, ip string) error
}
