// Package authpw provides email/password authentication with email
// verification and password reset flows.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"quill/api/internal/auth"
	"quill/api/internal/store"

	"github.com/google/uuid"
)

// One-time token purposes.
const (
	PurposeVerifyEmail   = "verify"
	PurposeResetPassword = "reset"
)

const (
	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = 1 * time.Hour
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// UserStore is the storage surface authpw depends on.
type UserStore interface {
	InsertUser(ctx context.Context, user store.User, passwordHash string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, string, error)
	SetPasswordHash(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	SaveOneTimeToken(ctx context.Context, tokenHash, userID, purpose string, expiresAt time.Time) error
	ConsumeOneTimeToken(ctx context.Context, tokenHash, purpose string) (string, error)
}

// Service implements signup, signin, and the token-based email flows.
type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUpResponse carries the created user and the verification token
// the caller is expected to email out.
type SignUpResponse struct {
	User              store.User
	VerificationToken string
}

// SignUp creates a new user account with an unverified email address.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" || strings.TrimSpace(req.DisplayName) == "" {
		return nil, errors.New("email, password, and display name are required")
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	if _, _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
	}
	created, err := s.store.InsertUser(ctx, user, string(hash))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}
	expiresAt := time.Now().Add(verifyTokenTTL)
	if err := s.store.SaveOneTimeToken(ctx, auth.HashToken(token), created.ID, PurposeVerifyEmail, expiresAt); err != nil {
		return nil, fmt.Errorf("save verification token: %w", err)
	}

	return &SignUpResponse{User: created, VerificationToken: token}, nil
}

// SignIn authenticates a user by email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, passwordHash, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return store.User{}, ErrEmailNotVerified
	}
	return user, nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	userID, err := s.store.ConsumeOneTimeToken(ctx, auth.HashToken(token), PurposeVerifyEmail)
	if err != nil {
		return ErrInvalidToken
	}
	if err := s.store.MarkEmailVerified(ctx, userID); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// RequestPasswordReset creates a reset token for the account. It returns
// an empty token when the email is unknown so callers never reveal
// whether an address is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (store.User, string, error) {
	user, _, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return store.User{}, "", nil
	}

	token, err := generateToken()
	if err != nil {
		return store.User{}, "", err
	}
	expiresAt := time.Now().Add(resetTokenTTL)
	if err := s.store.SaveOneTimeToken(ctx, auth.HashToken(token), user.ID, PurposeResetPassword, expiresAt); err != nil {
		return store.User{}, "", err
	}
	return user, token, nil
}

// ResetPassword consumes a reset token and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return ErrInvalidToken
	}
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	userID, err := s.store.ConsumeOneTimeToken(ctx, auth.HashToken(token), PurposeResetPassword)
	if err != nil {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.SetPasswordHash(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
