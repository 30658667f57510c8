package app

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"quill/api/internal/authpw"
	"quill/api/internal/store"
)

// memUserStore is an in-memory authpw.UserStore so the full signup,
// verify, signin flow can run over HTTP.
type memUserStore struct {
	mu      sync.Mutex
	users   map[string]store.User
	hashes  map[string]string
	byEmail map[string]string
	tokens  map[string]memToken
}

type memToken struct {
	userID    string
	purpose   string
	expiresAt time.Time
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:   make(map[string]store.User),
		hashes:  make(map[string]string),
		byEmail: make(map[string]string),
		tokens:  make(map[string]memToken),
	}
}

func (m *memUserStore) InsertUser(ctx context.Context, user store.User, passwordHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	m.hashes[user.ID] = passwordHash
	m.byEmail[user.Email] = user.ID
	return user, nil
}

func (m *memUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return store.User{}, "", sql.ErrNoRows
	}
	return m.users[id], m.hashes[id], nil
}

func (m *memUserStore) SetPasswordHash(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[userID] = passwordHash
	return nil
}

func (m *memUserStore) MarkEmailVerified(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[userID]
	user.EmailVerified = true
	m.users[userID] = user
	return nil
}

func (m *memUserStore) SaveOneTimeToken(ctx context.Context, tokenHash, userID, purpose string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = memToken{userID: userID, purpose: purpose, expiresAt: expiresAt}
	return nil
}

func (m *memUserStore) ConsumeOneTimeToken(ctx context.Context, tokenHash, purpose string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[tokenHash]
	if !ok || token.purpose != purpose || time.Now().After(token.expiresAt) {
		return "", sql.ErrNoRows
	}
	delete(m.tokens, tokenHash)
	return token.userID, nil
}

func (m *memUserStore) getByID(userID string) (store.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	return user, ok
}

func newAuthHarness(t *testing.T) (*harness, *memUserStore) {
	t.Helper()
	mem := newMemUserStore()
	fs := newFakeStore()
	fs.getUserByID = func(ctx context.Context, userID string) (store.User, error) {
		user, ok := mem.getByID(userID)
		if !ok {
			return store.User{}, sql.ErrNoRows
		}
		return user, nil
	}
	h := newHarness(t, fs)
	h.svc.passwords = authpw.NewService(mem)
	return h, mem
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestAuthFlow(t *testing.T) {
	h, _ := newAuthHarness(t)

	// Sign up. No mailer is wired, so the verification token comes back
	// in the response for local development.
	resp, env := h.do(http.MethodPost, "/api/v1/auth/signup", map[string]any{
		"email":       "Dana@Example.com",
		"password":    "hunter2hunter2",
		"displayName": "Dana",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d (%s)", resp.StatusCode, env.Message)
	}
	data := h.dataMap(env)
	verifyToken, _ := data["devVerificationToken"].(string)
	if verifyToken == "" {
		t.Fatal("expected devVerificationToken in signup response")
	}
	userID, _ := data["userId"].(string)
	if userID == "" {
		t.Fatal("expected userId in signup response")
	}

	// Signing in before verification is rejected.
	resp, _ = h.do(http.MethodPost, "/api/v1/auth/signin", map[string]any{
		"email":    "dana@example.com",
		"password": "hunter2hunter2",
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("pre-verify signin status = %d", resp.StatusCode)
	}

	resp, _ = h.do(http.MethodPost, "/api/v1/auth/verify-email", map[string]any{"token": verifyToken}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d", resp.StatusCode)
	}

	// Sign in. Email lookup is case-insensitive and the session cookie
	// is set.
	resp, env = h.do(http.MethodPost, "/api/v1/auth/signin", map[string]any{
		"email":    "DANA@example.com",
		"password": "hunter2hunter2",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin status = %d (%s)", resp.StatusCode, env.Message)
	}
	data = h.dataMap(env)
	accessToken, _ := data["accessToken"].(string)
	refreshToken, _ := data["refreshToken"].(string)
	if accessToken == "" || refreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	cookie := cookieNamed(resp, "auth_token")
	if cookie == nil {
		t.Fatal("expected auth_token cookie")
	}
	if cookie.Value != accessToken || !cookie.HttpOnly {
		t.Error("cookie must carry the access token and be HttpOnly")
	}

	// Session info via cookie.
	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/api/v1/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: accessToken})
	sessionResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer sessionResp.Body.Close()
	if sessionResp.StatusCode != http.StatusOK {
		t.Fatalf("session status = %d", sessionResp.StatusCode)
	}

	// Refresh rotates the pair; the old refresh token dies.
	resp, env = h.do(http.MethodPost, "/api/v1/auth/refresh", map[string]any{"refreshToken": refreshToken}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	if h.dataMap(env)["accessToken"] == accessToken {
		t.Error("refresh should issue a new access token")
	}
	resp, _ = h.do(http.MethodPost, "/api/v1/auth/refresh", map[string]any{"refreshToken": refreshToken}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stale refresh status = %d", resp.StatusCode)
	}

	// Sign out clears the cookie.
	signoutReq, _ := http.NewRequest(http.MethodPost, h.server.URL+"/api/v1/auth/signout", strings.NewReader("{}"))
	signoutReq.AddCookie(&http.Cookie{Name: "auth_token", Value: accessToken})
	signoutResp, err := http.DefaultClient.Do(signoutReq)
	if err != nil {
		t.Fatal(err)
	}
	defer signoutResp.Body.Close()
	cleared := cookieNamed(signoutResp, "auth_token")
	if cleared == nil || cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Error("signout should clear the session cookie")
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	h, _ := newAuthHarness(t)

	body := map[string]any{"email": "dana@example.com", "password": "hunter2hunter2", "displayName": "Dana"}
	if resp, _ := h.do(http.MethodPost, "/api/v1/auth/signup", body, nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first signup status = %d", resp.StatusCode)
	}
	resp, env := h.do(http.MethodPost, "/api/v1/auth/signup", body, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d", resp.StatusCode)
	}
	if env.Message != "Email already registered" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	h, mem := newAuthHarness(t)
	seedVerifiedUser(t, h, mem, "dana@example.com", "hunter2hunter2")

	resp, env := h.do(http.MethodPost, "/api/v1/auth/signin", map[string]any{
		"email":    "dana@example.com",
		"password": "wrong-password",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.Message != "Invalid email or password" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	h, mem := newAuthHarness(t)
	seedVerifiedUser(t, h, mem, "dana@example.com", "hunter2hunter2")

	// Unknown addresses get the same response, with no token.
	resp, env := h.do(http.MethodPost, "/api/v1/auth/reset-password/request", map[string]any{"email": "ghost@example.com"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, ok := h.dataMap(env)["devResetToken"]; ok {
		t.Error("unknown email must not yield a reset token")
	}

	resp, env = h.do(http.MethodPost, "/api/v1/auth/reset-password/request", map[string]any{"email": "dana@example.com"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resetToken, _ := h.dataMap(env)["devResetToken"].(string)
	if resetToken == "" {
		t.Fatal("expected devResetToken for a known account")
	}

	// Short replacement password is rejected and the token survives.
	resp, _ = h.do(http.MethodPost, "/api/v1/auth/reset-password", map[string]any{"token": resetToken, "newPassword": "short"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("weak password status = %d", resp.StatusCode)
	}

	resp, _ = h.do(http.MethodPost, "/api/v1/auth/reset-password", map[string]any{"token": resetToken, "newPassword": "a-new-password"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}

	// Old password is out, new one works.
	resp, _ = h.do(http.MethodPost, "/api/v1/auth/signin", map[string]any{"email": "dana@example.com", "password": "hunter2hunter2"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password status = %d", resp.StatusCode)
	}
	resp, _ = h.do(http.MethodPost, "/api/v1/auth/signin", map[string]any{"email": "dana@example.com", "password": "a-new-password"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("new password status = %d", resp.StatusCode)
	}
}

func seedVerifiedUser(t *testing.T, h *harness, mem *memUserStore, email, password string) {
	t.Helper()
	resp, env := h.do(http.MethodPost, "/api/v1/auth/signup", map[string]any{
		"email":       email,
		"password":    password,
		"displayName": "Test User",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed signup status = %d", resp.StatusCode)
	}
	token, _ := h.dataMap(env)["devVerificationToken"].(string)
	if resp, _ := h.do(http.MethodPost, "/api/v1/auth/verify-email", map[string]any{"token": token}, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("seed verify status = %d", resp.StatusCode)
	}
}
