package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) InsertUser(ctx context.Context, user User, passwordHash string) (User, error) {
	const query = `
		INSERT INTO users (email, display_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, display_name, email_verified, created_at
	`
	var inserted User
	err := s.db.QueryRowContext(ctx, query, user.Email, user.DisplayName, passwordHash).
		Scan(&inserted.ID, &inserted.Email, &inserted.DisplayName, &inserted.EmailVerified, &inserted.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, email_verified, created_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.EmailVerified, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, string, error) {
	var user User
	var passwordHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, email_verified, password_hash, created_at
		FROM users WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.EmailVerified, &passwordHash, &user.CreatedAt)
	if err != nil {
		return User{}, "", err
	}
	return user, passwordHash, nil
}

func (s *PostgresStore) SetPasswordHash(ctx context.Context, userID, passwordHash string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, userID, passwordHash); err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkEmailVerified(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET email_verified=TRUE WHERE id=$1`, userID); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// One-time tokens for email verification and password reset. Stored
// hashed; consumed with a conditional delete so a token works once.

func (s *PostgresStore) SaveOneTimeToken(ctx context.Context, tokenHash, userID, purpose string, expiresAt time.Time) error {
	const query = `
		INSERT INTO one_time_tokens (token_hash, user_id, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.ExecContext(ctx, query, tokenHash, userID, purpose, expiresAt); err != nil {
		return fmt.Errorf("save one-time token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsumeOneTimeToken(ctx context.Context, tokenHash, purpose string) (string, error) {
	const query = `
		DELETE FROM one_time_tokens
		WHERE token_hash=$1 AND purpose=$2 AND expires_at > NOW()
		RETURNING user_id
	`
	var userID string
	if err := s.db.QueryRowContext(ctx, query, tokenHash, purpose).Scan(&userID); err != nil {
		return "", err
	}
	return userID, nil
}

// Refresh sessions and access-token revocation, the Postgres path.
// When Redis is configured these live in session.RedisStore instead.

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	const query = `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, tokenHash, user.ID, expiresAt); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name, u.email_verified, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash=$1 AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.EmailVerified, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash=$1`, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	const query = `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, jti, expiresAt); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
