package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"quill/api/internal/config"
	"quill/api/internal/rbac"
	"quill/api/internal/store"
	"quill/api/internal/task"
	"quill/api/internal/util"
	"quill/api/internal/webhook"
)

// fakeStore implements dataStore with overridable function fields and
// an in-memory refresh session map so it doubles as a RefreshStore.
type fakeStore struct {
	mu       sync.Mutex
	refresh  map[string]store.User
	activity []store.Activity

	getUserByID          func(ctx context.Context, userID string) (store.User, error)
	getMembership        func(ctx context.Context, workspaceID, userID string) (store.Membership, error)
	insertWorkspace      func(ctx context.Context, workspace store.Workspace) (store.Workspace, error)
	getWorkspace         func(ctx context.Context, workspaceID string) (store.Workspace, error)
	listWorkspaces       func(ctx context.Context, userID string) ([]store.Workspace, error)
	updateWorkspaceName  func(ctx context.Context, workspaceID, name string) (store.Workspace, error)
	deleteWorkspace      func(ctx context.Context, workspaceID string) error
	listMembers          func(ctx context.Context, workspaceID string) ([]store.Membership, error)
	deleteMembership     func(ctx context.Context, workspaceID, userID string) (bool, error)
	updateMembershipRole func(ctx context.Context, workspaceID, userID, role string) (bool, error)
	countOwners          func(ctx context.Context, workspaceID string) (int, error)

	insertInvitation       func(ctx context.Context, invitation store.Invitation) (store.Invitation, error)
	getInvitationByToken   func(ctx context.Context, token string) (store.Invitation, error)
	listPendingInvitations func(ctx context.Context, workspaceID string) ([]store.Invitation, error)
	acceptInvitation       func(ctx context.Context, token, userID string) (store.Invitation, error)
	getInvitation          func(ctx context.Context, workspaceID, invitationID string) (store.Invitation, error)
	cancelInvitation       func(ctx context.Context, workspaceID, invitationID string) (bool, error)

	insertWebhook  func(ctx context.Context, hook store.Webhook) (store.Webhook, error)
	getWebhook     func(ctx context.Context, workspaceID, webhookID string) (store.Webhook, error)
	listWebhooks   func(ctx context.Context, workspaceID string) ([]store.Webhook, error)
	updateWebhook  func(ctx context.Context, hook store.Webhook) (store.Webhook, error)
	deleteWebhook  func(ctx context.Context, workspaceID, webhookID string) (bool, error)
	listDeliveries func(ctx context.Context, webhookID string, limit, offset int) ([]store.WebhookDelivery, int, error)

	insertComment     func(ctx context.Context, comment store.Comment) (store.Comment, error)
	getComment        func(ctx context.Context, commentID string) (store.Comment, error)
	listComments      func(ctx context.Context, workspaceID, targetType, targetID string, limit, offset int) ([]store.Comment, int, error)
	updateCommentBody func(ctx context.Context, commentID, body string) (store.Comment, error)
	deleteComment     func(ctx context.Context, commentID string) error
	resolveComment    func(ctx context.Context, commentID string) (bool, error)
	listActivities    func(ctx context.Context, workspaceID, action, actorID string, limit, offset int) ([]store.Activity, int, error)

	insertDocument       func(ctx context.Context, document store.Document) (store.Document, error)
	getDocument          func(ctx context.Context, workspaceID, documentID string) (store.Document, error)
	listDocuments        func(ctx context.Context, workspaceID string, limit, offset int) ([]store.Document, int, error)
	updateDocument       func(ctx context.Context, workspaceID, documentID, title, summary string) (store.Document, error)
	updateDocumentStatus func(ctx context.Context, documentID, status string) error
	setDocumentSource    func(ctx context.Context, documentID, sourceKey, status string) error
	deleteDocument       func(ctx context.Context, workspaceID, documentID string) (bool, error)
	getAISettings        func(ctx context.Context, workspaceID string) (store.AISettings, error)
	upsertAISettings     func(ctx context.Context, settings store.AISettings) (store.AISettings, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{refresh: make(map[string]store.User)}
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByID != nil {
		return f.getUserByID(ctx, userID)
	}
	return store.User{ID: userID, DisplayName: "User " + userID, Email: userID + "@example.com"}, nil
}

func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }

func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) { return false, nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) InsertWorkspace(ctx context.Context, workspace store.Workspace) (store.Workspace, error) {
	if f.insertWorkspace != nil {
		return f.insertWorkspace(ctx, workspace)
	}
	// The database assigns ids; the default fake does the same.
	workspace.ID = util.NewID("ws")
	return workspace, nil
}

func (f *fakeStore) GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error) {
	if f.getWorkspace != nil {
		return f.getWorkspace(ctx, workspaceID)
	}
	return store.Workspace{}, sql.ErrNoRows
}

func (f *fakeStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]store.Workspace, error) {
	if f.listWorkspaces != nil {
		return f.listWorkspaces(ctx, userID)
	}
	return nil, nil
}

func (f *fakeStore) UpdateWorkspaceName(ctx context.Context, workspaceID, name string) (store.Workspace, error) {
	if f.updateWorkspaceName != nil {
		return f.updateWorkspaceName(ctx, workspaceID, name)
	}
	return store.Workspace{ID: workspaceID, Name: name}, nil
}

func (f *fakeStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if f.deleteWorkspace != nil {
		return f.deleteWorkspace(ctx, workspaceID)
	}
	return nil
}

func (f *fakeStore) GetMembership(ctx context.Context, workspaceID, userID string) (store.Membership, error) {
	if f.getMembership != nil {
		return f.getMembership(ctx, workspaceID, userID)
	}
	return store.Membership{}, sql.ErrNoRows
}

func (f *fakeStore) ListMembers(ctx context.Context, workspaceID string) ([]store.Membership, error) {
	if f.listMembers != nil {
		return f.listMembers(ctx, workspaceID)
	}
	return nil, nil
}

func (f *fakeStore) DeleteMembership(ctx context.Context, workspaceID, userID string) (bool, error) {
	if f.deleteMembership != nil {
		return f.deleteMembership(ctx, workspaceID, userID)
	}
	return true, nil
}

func (f *fakeStore) UpdateMembershipRole(ctx context.Context, workspaceID, userID, role string) (bool, error) {
	if f.updateMembershipRole != nil {
		return f.updateMembershipRole(ctx, workspaceID, userID, role)
	}
	return true, nil
}

func (f *fakeStore) CountOwners(ctx context.Context, workspaceID string) (int, error) {
	if f.countOwners != nil {
		return f.countOwners(ctx, workspaceID)
	}
	return 1, nil
}

func (f *fakeStore) InsertInvitation(ctx context.Context, invitation store.Invitation) (store.Invitation, error) {
	if f.insertInvitation != nil {
		return f.insertInvitation(ctx, invitation)
	}
	invitation.ID = util.NewID("inv")
	return invitation, nil
}

func (f *fakeStore) GetInvitationByToken(ctx context.Context, token string) (store.Invitation, error) {
	if f.getInvitationByToken != nil {
		return f.getInvitationByToken(ctx, token)
	}
	return store.Invitation{}, sql.ErrNoRows
}

func (f *fakeStore) ListPendingInvitations(ctx context.Context, workspaceID string) ([]store.Invitation, error) {
	if f.listPendingInvitations != nil {
		return f.listPendingInvitations(ctx, workspaceID)
	}
	return nil, nil
}

func (f *fakeStore) AcceptInvitation(ctx context.Context, token, userID string) (store.Invitation, error) {
	if f.acceptInvitation != nil {
		return f.acceptInvitation(ctx, token, userID)
	}
	return store.Invitation{}, sql.ErrNoRows
}

func (f *fakeStore) GetInvitation(ctx context.Context, workspaceID, invitationID string) (store.Invitation, error) {
	if f.getInvitation != nil {
		return f.getInvitation(ctx, workspaceID, invitationID)
	}
	return store.Invitation{}, sql.ErrNoRows
}

func (f *fakeStore) CancelInvitation(ctx context.Context, workspaceID, invitationID string) (bool, error) {
	if f.cancelInvitation != nil {
		return f.cancelInvitation(ctx, workspaceID, invitationID)
	}
	return false, nil
}

func (f *fakeStore) InsertWebhook(ctx context.Context, hook store.Webhook) (store.Webhook, error) {
	if f.insertWebhook != nil {
		return f.insertWebhook(ctx, hook)
	}
	hook.ID = util.NewID("wh")
	return hook, nil
}

func (f *fakeStore) GetWebhook(ctx context.Context, workspaceID, webhookID string) (store.Webhook, error) {
	if f.getWebhook != nil {
		return f.getWebhook(ctx, workspaceID, webhookID)
	}
	return store.Webhook{}, sql.ErrNoRows
}

func (f *fakeStore) ListWebhooks(ctx context.Context, workspaceID string) ([]store.Webhook, error) {
	if f.listWebhooks != nil {
		return f.listWebhooks(ctx, workspaceID)
	}
	return nil, nil
}

func (f *fakeStore) UpdateWebhook(ctx context.Context, hook store.Webhook) (store.Webhook, error) {
	if f.updateWebhook != nil {
		return f.updateWebhook(ctx, hook)
	}
	return hook, nil
}

func (f *fakeStore) DeleteWebhook(ctx context.Context, workspaceID, webhookID string) (bool, error) {
	if f.deleteWebhook != nil {
		return f.deleteWebhook(ctx, workspaceID, webhookID)
	}
	return false, nil
}

func (f *fakeStore) ListDeliveries(ctx context.Context, webhookID string, limit, offset int) ([]store.WebhookDelivery, int, error) {
	if f.listDeliveries != nil {
		return f.listDeliveries(ctx, webhookID, limit, offset)
	}
	return nil, 0, nil
}

func (f *fakeStore) InsertComment(ctx context.Context, comment store.Comment) (store.Comment, error) {
	if f.insertComment != nil {
		return f.insertComment(ctx, comment)
	}
	comment.ID = util.NewID("cmt")
	return comment, nil
}

func (f *fakeStore) GetComment(ctx context.Context, commentID string) (store.Comment, error) {
	if f.getComment != nil {
		return f.getComment(ctx, commentID)
	}
	return store.Comment{}, sql.ErrNoRows
}

func (f *fakeStore) ListComments(ctx context.Context, workspaceID, targetType, targetID string, limit, offset int) ([]store.Comment, int, error) {
	if f.listComments != nil {
		return f.listComments(ctx, workspaceID, targetType, targetID, limit, offset)
	}
	return nil, 0, nil
}

func (f *fakeStore) UpdateCommentBody(ctx context.Context, commentID, body string) (store.Comment, error) {
	if f.updateCommentBody != nil {
		return f.updateCommentBody(ctx, commentID, body)
	}
	return store.Comment{ID: commentID, Body: body}, nil
}

func (f *fakeStore) DeleteComment(ctx context.Context, commentID string) error {
	if f.deleteComment != nil {
		return f.deleteComment(ctx, commentID)
	}
	return nil
}

func (f *fakeStore) ResolveComment(ctx context.Context, commentID string) (bool, error) {
	if f.resolveComment != nil {
		return f.resolveComment(ctx, commentID)
	}
	return true, nil
}

func (f *fakeStore) InsertActivity(ctx context.Context, activity store.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, activity)
	return nil
}

func (f *fakeStore) ListActivities(ctx context.Context, workspaceID, action, actorID string, limit, offset int) ([]store.Activity, int, error) {
	if f.listActivities != nil {
		return f.listActivities(ctx, workspaceID, action, actorID, limit, offset)
	}
	return nil, 0, nil
}

func (f *fakeStore) InsertDocument(ctx context.Context, document store.Document) (store.Document, error) {
	if f.insertDocument != nil {
		return f.insertDocument(ctx, document)
	}
	document.ID = util.NewID("doc")
	document.Status = store.DocumentDraft
	return document, nil
}

func (f *fakeStore) GetDocument(ctx context.Context, workspaceID, documentID string) (store.Document, error) {
	if f.getDocument != nil {
		return f.getDocument(ctx, workspaceID, documentID)
	}
	return store.Document{}, sql.ErrNoRows
}

func (f *fakeStore) ListDocuments(ctx context.Context, workspaceID string, limit, offset int) ([]store.Document, int, error) {
	if f.listDocuments != nil {
		return f.listDocuments(ctx, workspaceID, limit, offset)
	}
	return nil, 0, nil
}

func (f *fakeStore) UpdateDocument(ctx context.Context, workspaceID, documentID, title, summary string) (store.Document, error) {
	if f.updateDocument != nil {
		return f.updateDocument(ctx, workspaceID, documentID, title, summary)
	}
	return store.Document{ID: documentID, WorkspaceID: workspaceID, Title: title, Summary: summary}, nil
}

func (f *fakeStore) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	if f.updateDocumentStatus != nil {
		return f.updateDocumentStatus(ctx, documentID, status)
	}
	return nil
}

func (f *fakeStore) SetDocumentSource(ctx context.Context, documentID, sourceKey, status string) error {
	if f.setDocumentSource != nil {
		return f.setDocumentSource(ctx, documentID, sourceKey, status)
	}
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, workspaceID, documentID string) (bool, error) {
	if f.deleteDocument != nil {
		return f.deleteDocument(ctx, workspaceID, documentID)
	}
	return false, nil
}

func (f *fakeStore) GetAISettings(ctx context.Context, workspaceID string) (store.AISettings, error) {
	if f.getAISettings != nil {
		return f.getAISettings(ctx, workspaceID)
	}
	return store.AISettings{}, sql.ErrNoRows
}

func (f *fakeStore) UpsertAISettings(ctx context.Context, settings store.AISettings) (store.AISettings, error) {
	if f.upsertAISettings != nil {
		return f.upsertAISettings(ctx, settings)
	}
	return settings, nil
}

// RefreshStore backed by the in-memory map.

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = user
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) activities() []store.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Activity, len(f.activity))
	copy(out, f.activity)
	return out
}

// fakeSink captures emitted webhook events.
type fakeSink struct {
	mu     sync.Mutex
	events []webhook.Event
}

func (f *fakeSink) Emit(event webhook.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) all() []webhook.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]webhook.Event, len(f.events))
	copy(out, f.events)
	return out
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:     "test-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		InvitationTTL: 7 * 24 * time.Hour,
		PublicBaseURL: "http://localhost:3000",
	}
}

func newTestService(fs *fakeStore) (*Service, *fakeSink) {
	sink := &fakeSink{}
	svc := New(testConfig(), Deps{
		Sessions: fs,
		Runner:   task.NewRunner(2 * time.Second),
	})
	svc.store = fs
	svc.hooks = sink
	return svc, sink
}

// memberOf returns a getMembership func for a fixed role table keyed
// by "workspaceID/userID".
func memberOf(roles map[string]string) func(ctx context.Context, workspaceID, userID string) (store.Membership, error) {
	return func(ctx context.Context, workspaceID, userID string) (store.Membership, error) {
		role, ok := roles[workspaceID+"/"+userID]
		if !ok {
			return store.Membership{}, sql.ErrNoRows
		}
		return store.Membership{WorkspaceID: workspaceID, UserID: userID, Role: role}, nil
	}
}

func TestSessionLifecycle(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()

	user := store.User{ID: "u1", DisplayName: "Dana", Email: "dana@example.com"}
	session, err := svc.CreateSession(ctx, user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}

	parsed, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if parsed.UserID != "u1" {
		t.Errorf("user id = %q", parsed.UserID)
	}

	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.Token == session.Token {
		t.Error("refresh should issue a new access token")
	}

	// The old refresh token was rotated away.
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Error("expected stale refresh token to be rejected")
	}
}

func TestSessionFromTokenRejectsGarbage(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)

	if _, err := svc.SessionFromToken(context.Background(), "not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestRequireMember(t *testing.T) {
	fs := newFakeStore()
	fs.getMembership = memberOf(map[string]string{
		"ws1/u1": "owner",
		"ws1/u2": "member",
	})
	svc, _ := newTestService(fs)
	ctx := context.Background()

	if _, err := svc.requireMember(ctx, "u1", "ws1", rbac.RoleOwner); err != nil {
		t.Errorf("owner should meet owner: %v", err)
	}
	if _, err := svc.requireMember(ctx, "u2", "ws1", rbac.RoleMember); err != nil {
		t.Errorf("member should meet member: %v", err)
	}

	// Below minimum role.
	if _, err := svc.requireMember(ctx, "u2", "ws1", rbac.RoleAdmin); err == nil {
		t.Error("member should not meet admin")
	}

	// Non-member and unknown workspace look identical.
	_, errNonMember := svc.requireMember(ctx, "u3", "ws1", rbac.RoleMember)
	_, errNoWorkspace := svc.requireMember(ctx, "u1", "ws-missing", rbac.RoleMember)
	for _, err := range []error{errNonMember, errNoWorkspace} {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Status != http.StatusForbidden {
			t.Errorf("expected 403, got %v", err)
		}
	}
	if errNonMember.Error() != errNoWorkspace.Error() {
		t.Error("non-member and missing workspace must be indistinguishable")
	}
}
