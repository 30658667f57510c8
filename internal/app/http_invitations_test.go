package app

import (
	"context"
	"database/sql"
	"net/http"
	"regexp"
	"testing"
	"time"

	"quill/api/internal/store"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestCreateInvitation(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{"ws1/u1": "owner"})
	var inserted store.Invitation
	fs.insertInvitation = func(ctx context.Context, invitation store.Invitation) (store.Invitation, error) {
		inserted = invitation
		return invitation, nil
	}
	h := newHarness(t, fs)
	owner := h.signIn("u1", "Omar")

	resp, env := h.do(http.MethodPost, "/api/v1/workspaces/ws1/members/invitations", map[string]any{
		"email": "  Dana@Example.COM ",
		"role":  "admin",
	}, &owner)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d (%s)", resp.StatusCode, env.Message)
	}
	data := h.dataMap(env)
	if data["email"] != "dana@example.com" {
		t.Errorf("email = %v, want normalized", data["email"])
	}
	if data["status"] != store.InvitationPending {
		t.Errorf("status = %v", data["status"])
	}
	token, _ := data["token"].(string)
	if !hexToken.MatchString(token) {
		t.Errorf("token = %q, want 64 hex chars", token)
	}
	if inserted.Token != token {
		t.Error("stored token must match the returned one")
	}
	if remaining := time.Until(inserted.ExpiresAt); remaining < 6*24*time.Hour || remaining > 8*24*time.Hour {
		t.Errorf("expiry %v outside the configured window", remaining)
	}
}

func TestCreateInvitationValidation(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{
		"ws1/u1": "admin",
		"ws1/u2": "member",
	})
	h := newHarness(t, fs)
	admin := h.signIn("u1", "Ana")
	member := h.signIn("u2", "Dana")

	cases := []struct {
		name    string
		session *Session
		body    map[string]any
		status  int
	}{
		{"member cannot invite", &member, map[string]any{"email": "x@example.com", "role": "member"}, http.StatusForbidden},
		{"bad email", &admin, map[string]any{"email": "not-an-email", "role": "member"}, http.StatusBadRequest},
		{"blank email", &admin, map[string]any{"email": "  ", "role": "member"}, http.StatusBadRequest},
		{"owner role not invitable", &admin, map[string]any{"email": "x@example.com", "role": "owner"}, http.StatusBadRequest},
		{"unknown role", &admin, map[string]any{"email": "x@example.com", "role": "boss"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := h.do(http.MethodPost, "/api/v1/workspaces/ws1/members/invitations", tc.body, tc.session)
			if resp.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestInvitationPublicLookupMasksEmail(t *testing.T) {
	fs := newFakeStore()
	fs.getInvitationByToken = func(ctx context.Context, token string) (store.Invitation, error) {
		if token != "tok123" {
			return store.Invitation{}, sql.ErrNoRows
		}
		return store.Invitation{
			ID:          "inv1",
			WorkspaceID: "ws1",
			Email:       "dana@example.com",
			Role:        "admin",
			Status:      store.InvitationPending,
			InviterName: "Omar",
			ExpiresAt:   time.Now().Add(24 * time.Hour),
		}, nil
	}
	fs.getWorkspace = func(ctx context.Context, workspaceID string) (store.Workspace, error) {
		return store.Workspace{ID: workspaceID, Name: "Acme"}, nil
	}
	h := newHarness(t, fs)

	// No credentials: the invitee is not signed in yet.
	resp, env := h.do(http.MethodGet, "/api/v1/invitations/tok123", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, env.Message)
	}
	data := h.dataMap(env)
	if data["email"] != "d**a@example.com" {
		t.Errorf("email = %v, want masked", data["email"])
	}
	if data["role"] != "admin" || data["workspaceName"] != "Acme" || data["inviterName"] != "Omar" {
		t.Errorf("payload = %v", data)
	}
	if _, ok := data["token"]; ok {
		t.Error("public lookup must not echo the token")
	}

	resp, _ = h.do(http.MethodGet, "/api/v1/invitations/unknown", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown token status = %d", resp.StatusCode)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := []struct{ in, want string }{
		{"dana@example.com", "d**a@example.com"},
		{"al@example.com", "a***@example.com"},
		{"x@example.com", "x***@example.com"},
		{"longlocalpart@example.com", "l***********t@example.com"},
		{"no-at-sign", "***"},
	}
	for _, tc := range cases {
		if got := maskEmail(tc.in); got != tc.want {
			t.Errorf("maskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAcceptInvitation(t *testing.T) {
	fs := newFakeStore()
	pending := store.Invitation{
		ID:          "inv1",
		WorkspaceID: "ws1",
		Email:       "dana@example.com",
		Role:        "admin",
		Status:      store.InvitationPending,
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
	fs.getInvitationByToken = func(ctx context.Context, token string) (store.Invitation, error) {
		return pending, nil
	}
	fs.acceptInvitation = func(ctx context.Context, token, userID string) (store.Invitation, error) {
		accepted := pending
		accepted.Status = store.InvitationAccepted
		return accepted, nil
	}
	fs.getWorkspace = func(ctx context.Context, workspaceID string) (store.Workspace, error) {
		return store.Workspace{ID: workspaceID, Name: "Acme"}, nil
	}
	h := newHarness(t, fs)
	invitee := h.signIn("u2", "Dana")

	resp, env := h.do(http.MethodPost, "/api/v1/invitations/tok123/accept", nil, &invitee)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, env.Message)
	}
	data := h.dataMap(env)
	if data["id"] != "ws1" || data["role"] != "admin" {
		t.Errorf("payload = %v", data)
	}
}

func TestAcceptInvitationNotPending(t *testing.T) {
	fs := newFakeStore()
	fs.getInvitationByToken = func(ctx context.Context, token string) (store.Invitation, error) {
		return store.Invitation{ID: "inv1", WorkspaceID: "ws1", Status: store.InvitationCancelled}, nil
	}
	h := newHarness(t, fs)
	invitee := h.signIn("u2", "Dana")

	resp, env := h.do(http.MethodPost, "/api/v1/invitations/tok123/accept", nil, &invitee)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.Message != "invitation is cancelled" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestAcceptInvitationLosesRace(t *testing.T) {
	fs := newFakeStore()
	fs.getInvitationByToken = func(ctx context.Context, token string) (store.Invitation, error) {
		return store.Invitation{ID: "inv1", WorkspaceID: "ws1", Status: store.InvitationPending, ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	// The conditional update finds no pending row: someone else got
	// there first, or it expired between reads.
	fs.acceptInvitation = func(ctx context.Context, token, userID string) (store.Invitation, error) {
		return store.Invitation{}, sql.ErrNoRows
	}
	h := newHarness(t, fs)
	invitee := h.signIn("u2", "Dana")

	resp, env := h.do(http.MethodPost, "/api/v1/invitations/tok123/accept", nil, &invitee)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.Message != "invitation is no longer pending" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestCancelInvitation(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{"ws1/u1": "admin"})
	fs.getInvitation = func(ctx context.Context, workspaceID, invitationID string) (store.Invitation, error) {
		if invitationID != "inv1" {
			return store.Invitation{}, sql.ErrNoRows
		}
		return store.Invitation{ID: "inv1", WorkspaceID: workspaceID, Status: store.InvitationPending}, nil
	}
	cancelled := false
	fs.cancelInvitation = func(ctx context.Context, workspaceID, invitationID string) (bool, error) {
		if cancelled {
			return false, nil
		}
		cancelled = true
		return true, nil
	}
	h := newHarness(t, fs)
	admin := h.signIn("u1", "Ana")

	resp, _ := h.do(http.MethodDelete, "/api/v1/workspaces/ws1/members/invitations/inv1", nil, &admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}

	// Already terminal: cancelling again is a conflict.
	resp, env := h.do(http.MethodDelete, "/api/v1/workspaces/ws1/members/invitations/inv1", nil, &admin)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second cancel status = %d", resp.StatusCode)
	}
	if env.Message != "invitation is no longer pending" {
		t.Errorf("message = %q", env.Message)
	}

	resp, _ = h.do(http.MethodDelete, "/api/v1/workspaces/ws1/members/invitations/inv404", nil, &admin)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing invitation status = %d", resp.StatusCode)
	}
}
