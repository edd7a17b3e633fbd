// Package store persists encrypted OAuth credentials in PostgreSQL.
//
// The store keeps exactly one row per user email (upsert-on-conflict) and
// never writes a token in plaintext: both tokens are sealed by the injected
// cipher before they touch the wire. The system operates on a single active
// session at a time, so reads return the most recently updated row.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mailpeek/mailpeek/internal/common"
	"github.com/mailpeek/mailpeek/internal/store/migrations"
	"github.com/mailpeek/mailpeek/internal/tokencipher"
)

// StoredCredential is one persisted credential row. Token fields hold
// ciphertext as written to the database; use CredentialStore.LoadLatest
// plus the resolver to obtain plaintext.
type StoredCredential struct {
	UserEmail             string
	EncryptedAccessToken  []byte
	EncryptedRefreshToken []byte // nil when the provider issued no refresh token
	Expiry                time.Time
	UpdatedAt             time.Time
}

// DBTX is the subset of database/sql used by the store, satisfied by
// *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CredentialStore reads and writes encrypted credentials.
type CredentialStore struct {
	db     DBTX
	cipher *tokencipher.Cipher
}

// New constructs a CredentialStore bound to the given DBTX.
func New(db DBTX, cipher *tokencipher.Cipher) *CredentialStore {
	return &CredentialStore{db: db, cipher: cipher}
}

// Open connects to PostgreSQL, runs the embedded migrations and returns the
// database handle. It is called once at startup; a failure here is fatal.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return db, nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

// Save encrypts both tokens and upserts the row for userEmail. A nil
// refreshToken stores NULL, preserving "provider issued no refresh token".
// The write is atomic: either the full row lands or nothing does.
func (s *CredentialStore) Save(ctx context.Context, userEmail, accessToken string, refreshToken *string, expiry time.Time) error {
	encAccess, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	var encRefresh []byte
	if refreshToken != nil {
		encRefresh, err = s.cipher.Encrypt(*refreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	query := `
		INSERT INTO user_tokens (user_email, access_token, refresh_token, expiry, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_email) DO UPDATE SET
		  access_token = EXCLUDED.access_token,
		  refresh_token = EXCLUDED.refresh_token,
		  expiry = EXCLUDED.expiry,
		  updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, userEmail, encAccess, encRefresh, expiry); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	return nil
}

// LoadLatest returns the most recently updated credential row, or
// common.ErrNoCredential when no session has been stored yet.
func (s *CredentialStore) LoadLatest(ctx context.Context) (*StoredCredential, error) {
	query := `
		SELECT user_email, access_token, refresh_token, expiry, updated_at
		FROM user_tokens
		ORDER BY updated_at DESC
		LIMIT 1
	`
	cred := &StoredCredential{}
	var expiry sql.NullTime
	err := s.db.QueryRowContext(ctx, query).Scan(
		&cred.UserEmail,
		&cred.EncryptedAccessToken,
		&cred.EncryptedRefreshToken,
		&expiry,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNoCredential
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if expiry.Valid {
		cred.Expiry = expiry.Time
	}

	return cred, nil
}

// DecryptAccessToken opens the stored access token ciphertext.
func (s *CredentialStore) DecryptAccessToken(cred *StoredCredential) (string, error) {
	return s.cipher.Decrypt(cred.EncryptedAccessToken)
}

// DecryptRefreshToken opens the stored refresh token ciphertext. Returns
// ("", nil) when no refresh token was stored.
func (s *CredentialStore) DecryptRefreshToken(cred *StoredCredential) (string, error) {
	if cred.EncryptedRefreshToken == nil {
		return "", nil
	}
	return s.cipher.Decrypt(cred.EncryptedRefreshToken)
}
