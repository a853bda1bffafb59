// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veloragems/velora/internal/platform/apperr"
	"github.com/veloragems/velora/internal/platform/dberr"
	"github.com/veloragems/velora/internal/platform/sec"
	"github.com/veloragems/velora/pkg/uuidv7"
)

// # Account Repository

const accountColumns = `
	id, email, passwordhash, firstname, lastname, role, isactive,
	isemailverified, externalsubjectid, lastloginat, passwordchangedat,
	createdat, updatedat`

// PostgresAccountRepository implements the [Repository] interface using pgx.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new PostgreSQL implementation of the [Repository].
func NewAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// scanAccount hydrates one account row. externalsubjectid is nullable in the
// schema but flat in the entity, so it goes through a pointer.
func scanAccount(row pgx.Row) (*Account, error) {
	account := &Account{}
	var externalSubject *string

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.Role,
		&account.IsActive,
		&account.IsEmailVerified,
		&externalSubject,
		&account.LastLoginAt,
		&account.PasswordChangedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if externalSubject != nil {
		account.ExternalSubjectID = *externalSubject
	}

	return account, nil
}

// nullable maps the entity's empty string back to SQL NULL so the partial
// unique index on externalsubjectid never collides on "".
func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

/*
Create persists a new account record into the identity.account table.

Description: Deep-persists account metadata, ensuring timestamps are
initialized if not provided. Duplicate emails surface as apperr.Conflict.

Parameters:
  - context: context.Context
  - account: *Account (Entity to persist)

Returns:
  - error: apperr.Conflict or connectivity errors
*/
func (repository *PostgresAccountRepository) Create(context context.Context, account *Account) error {
	const query = `
		INSERT INTO identity.account (
			id, email, passwordhash, firstname, lastname, role, isactive,
			isemailverified, externalsubjectid, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Role,
		account.IsActive,
		account.IsEmailVerified,
		nullable(account.ExternalSubjectID),
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("Email is already registered")
		}
		return fmt.Errorf("postgres_account_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves an account record by its unique ID.

Description: Primary key resolution for accounts.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Account: Hydrated account entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresAccountRepository) FindByID(context context.Context, id string) (*Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM identity.account
		WHERE id = $1`

	account, err := scanAccount(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_by_id_failed: %w", err)
	}

	return account, nil
}

/*
FindByEmail retrieves an account record by its unique email address.

Description: Case-insensitive lookup — emails are stored lower-cased and
compared against the lower-cased argument.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Account: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresAccountRepository) FindByEmail(context context.Context, email string) (*Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM identity.account
		WHERE email = lower($1)`

	account, err := scanAccount(repository.pool.QueryRow(context, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_by_email_failed: %w", err)
	}

	return account, nil
}

/*
FindByExternalSubject retrieves the account linked to a federated subject ID.

Parameters:
  - context: context.Context
  - externalSubjectID: string

Returns:
  - *Account: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresAccountRepository) FindByExternalSubject(context context.Context, externalSubjectID string) (*Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM identity.account
		WHERE externalsubjectid = $1`

	account, err := scanAccount(repository.pool.QueryRow(context, query, externalSubjectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Account")
		}
		return nil, fmt.Errorf("postgres_account_repo_find_by_subject_failed: %w", err)
	}

	return account, nil
}

/*
Save persists changes to an account's mutable credential fields.

Description: Synchronizes the in-memory account state with the database,
refreshing the updatedat timestamp.

Parameters:
  - context: context.Context
  - account: *Account

Returns:
  - error: Update failures
*/
func (repository *PostgresAccountRepository) Save(context context.Context, account *Account) error {
	const query = `
		UPDATE identity.account
		SET passwordhash = $2, firstname = $3, lastname = $4, isactive = $5,
			isemailverified = $6, externalsubjectid = $7, lastloginat = $8,
			passwordchangedat = $9, updatedat = $10
		WHERE id = $1`

	account.UpdatedAt = time.Now()
	_, err := repository.pool.Exec(context, query,
		account.ID,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.IsActive,
		account.IsEmailVerified,
		nullable(account.ExternalSubjectID),
		account.LastLoginAt,
		account.PasswordChangedAt,
		account.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_account_repo_save_failed: %w", err)
	}

	return nil
}

// # Token Registry

// PostgresTokenRegistry implements the [TokenRegistry] interface using pgx.
// All three token kinds share the identity.token table with a kind column.
type PostgresTokenRegistry struct {
	pool *pgxpool.Pool
}

// NewTokenRegistry creates a new PostgreSQL implementation of the [TokenRegistry].
func NewTokenRegistry(pool *pgxpool.Pool) *PostgresTokenRegistry {
	return &PostgresTokenRegistry{pool: pool}
}

/*
Issue creates and persists a fresh single-use token.

Description: Generates 256 bits of entropy, stores only the SHA-256 digest of
the secret, and returns the plaintext exactly once.

Parameters:
  - context: context.Context
  - subjectID: string
  - kind: TokenKind
  - ttl: time.Duration

Returns:
  - *TokenRecord: Persisted record (hash only)
  - string: Plaintext secret
  - error: Generation or persistence failures
*/
func (registry *PostgresTokenRegistry) Issue(context context.Context, subjectID string, kind TokenKind, ttl time.Duration) (*TokenRecord, string, error) {
	secret, err := sec.GenerateSecureToken(kind.secretLength())
	if err != nil {
		return nil, "", fmt.Errorf("postgres_token_registry_generate_failed: %w", err)
	}

	now := time.Now()
	record := &TokenRecord{
		ID:         uuidv7.New(),
		SubjectID:  subjectID,
		Kind:       kind,
		SecretHash: sec.HashToken(secret),
		ExpiresAt:  now.Add(ttl),
		Used:       false,
		CreatedAt:  now,
	}

	const query = `
		INSERT INTO identity.token (
			id, subjectid, kind, secrethash, expiresat, used, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = registry.pool.Exec(context, query,
		record.ID,
		record.SubjectID,
		record.Kind,
		record.SecretHash,
		record.ExpiresAt,
		record.Used,
		record.CreatedAt,
	)

	if err != nil {
		return nil, "", dberr.Wrap(err, "postgres_token_registry_issue")
	}

	return record, secret, nil
}

/*
Find resolves a plaintext secret to its stored record by hash.

Description: Matches on (kind, secrethash) without filtering by used or
expiry, so the service layer can distinguish rejection reasons internally.

Parameters:
  - context: context.Context
  - secret: string
  - kind: TokenKind

Returns:
  - *TokenRecord: Hydrated record
  - error: ErrTokenNotFound or execution errors
*/
func (registry *PostgresTokenRegistry) Find(context context.Context, secret string, kind TokenKind) (*TokenRecord, error) {
	const query = `
		SELECT id, subjectid, kind, secrethash, expiresat, used, createdat
		FROM identity.token
		WHERE kind = $1 AND secrethash = $2`

	record := &TokenRecord{}
	err := registry.pool.QueryRow(context, query, kind, sec.HashToken(secret)).Scan(
		&record.ID,
		&record.SubjectID,
		&record.Kind,
		&record.SecretHash,
		&record.ExpiresAt,
		&record.Used,
		&record.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("postgres_token_registry_find_failed: %w", err)
	}

	return record, nil
}

/*
Consume atomically marks a token as used.

Description: A single conditional update. When two callers race on the same
record, the row predicate admits exactly one — the other sees zero rows
affected and is told the token was already used.

Parameters:
  - context: context.Context
  - recordID: string

Returns:
  - error: ErrTokenAlreadyUsed, ErrTokenNotFound, or execution errors
*/
func (registry *PostgresTokenRegistry) Consume(context context.Context, recordID string) error {
	const query = `
		UPDATE identity.token
		SET used = TRUE
		WHERE id = $1 AND used = FALSE`

	tag, err := registry.pool.Exec(context, query, recordID)
	if err != nil {
		return fmt.Errorf("postgres_token_registry_consume_failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either the row never existed or somebody consumed it first.
		// Disambiguate so the caller's log carries the real reason.
		const existsQuery = "SELECT 1 FROM identity.token WHERE id = $1"
		var one int
		if err := registry.pool.QueryRow(context, existsQuery, recordID).Scan(&one); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTokenNotFound
			}
			return fmt.Errorf("postgres_token_registry_consume_check_failed: %w", err)
		}
		return ErrTokenAlreadyUsed
	}

	return nil
}

/*
RevokeAllOfKind bulk-marks every live token of one kind for a subject as used.

Description: Security nuking of all live refresh tokens on password change,
or of in-flight reset tokens once one of them is redeemed.

Parameters:
  - context: context.Context
  - subjectID: string
  - kind: TokenKind

Returns:
  - error: Batch revocation failures
*/
func (registry *PostgresTokenRegistry) RevokeAllOfKind(context context.Context, subjectID string, kind TokenKind) error {
	const query = `
		UPDATE identity.token
		SET used = TRUE
		WHERE subjectid = $1 AND kind = $2 AND used = FALSE`

	_, err := registry.pool.Exec(context, query, subjectID, kind)
	if err != nil {
		return dberr.Wrap(err, "postgres_token_registry_revoke_all")
	}

	return nil
}

/*
DeleteExpired permanently removes all tokens past their expiration.

Description: Cleanup task to reclaim storage from stale tokens. Validity is
decided by ExpiresAt, never by whether this has run.

Parameters:
  - context: context.Context

Returns:
  - int64: Rows removed
  - error: Cleanup failures
*/
func (registry *PostgresTokenRegistry) DeleteExpired(context context.Context) (int64, error) {
	const query = "DELETE FROM identity.token WHERE expiresat <= NOW()"

	tag, err := registry.pool.Exec(context, query)
	if err != nil {
		return 0, dberr.Wrap(err, "postgres_token_registry_delete_expired")
	}

	return tag.RowsAffected(), nil
}
