package app

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"quill/api/internal/auth"
	"quill/api/internal/authpw"
	"quill/api/internal/config"
	"quill/api/internal/email"
	"quill/api/internal/export"
	"quill/api/internal/gitrepo"
	"quill/api/internal/prdgen"
	"quill/api/internal/search"
	"quill/api/internal/storage"
	"quill/api/internal/store"
	"quill/api/internal/task"
	"quill/api/internal/util"
	"quill/api/internal/webhook"
)

// Session is an authenticated caller. Role is resolved per workspace
// by requireMember, not carried in the token.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error

	InsertWorkspace(ctx context.Context, workspace store.Workspace) (store.Workspace, error)
	GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error)
	ListWorkspacesForUser(ctx context.Context, userID string) ([]store.Workspace, error)
	UpdateWorkspaceName(ctx context.Context, workspaceID, name string) (store.Workspace, error)
	DeleteWorkspace(ctx context.Context, workspaceID string) error
	GetMembership(ctx context.Context, workspaceID, userID string) (store.Membership, error)
	ListMembers(ctx context.Context, workspaceID string) ([]store.Membership, error)
	DeleteMembership(ctx context.Context, workspaceID, userID string) (bool, error)
	UpdateMembershipRole(ctx context.Context, workspaceID, userID, role string) (bool, error)
	CountOwners(ctx context.Context, workspaceID string) (int, error)

	InsertInvitation(ctx context.Context, invitation store.Invitation) (store.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (store.Invitation, error)
	ListPendingInvitations(ctx context.Context, workspaceID string) ([]store.Invitation, error)
	AcceptInvitation(ctx context.Context, token, userID string) (store.Invitation, error)
	GetInvitation(ctx context.Context, workspaceID, invitationID string) (store.Invitation, error)
	CancelInvitation(ctx context.Context, workspaceID, invitationID string) (bool, error)

	InsertWebhook(ctx context.Context, webhook store.Webhook) (store.Webhook, error)
	GetWebhook(ctx context.Context, workspaceID, webhookID string) (store.Webhook, error)
	ListWebhooks(ctx context.Context, workspaceID string) ([]store.Webhook, error)
	UpdateWebhook(ctx context.Context, webhook store.Webhook) (store.Webhook, error)
	DeleteWebhook(ctx context.Context, workspaceID, webhookID string) (bool, error)
	ListDeliveries(ctx context.Context, webhookID string, limit, offset int) ([]store.WebhookDelivery, int, error)

	InsertComment(ctx context.Context, comment store.Comment) (store.Comment, error)
	GetComment(ctx context.Context, commentID string) (store.Comment, error)
	ListComments(ctx context.Context, workspaceID, targetType, targetID string, limit, offset int) ([]store.Comment, int, error)
	UpdateCommentBody(ctx context.Context, commentID, body string) (store.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
	ResolveComment(ctx context.Context, commentID string) (bool, error)
	InsertActivity(ctx context.Context, activity store.Activity) error
	ListActivities(ctx context.Context, workspaceID, action, actorID string, limit, offset int) ([]store.Activity, int, error)

	InsertDocument(ctx context.Context, document store.Document) (store.Document, error)
	GetDocument(ctx context.Context, workspaceID, documentID string) (store.Document, error)
	ListDocuments(ctx context.Context, workspaceID string, limit, offset int) ([]store.Document, int, error)
	UpdateDocument(ctx context.Context, workspaceID, documentID, title, summary string) (store.Document, error)
	UpdateDocumentStatus(ctx context.Context, documentID, status string) error
	SetDocumentSource(ctx context.Context, documentID, sourceKey, status string) error
	DeleteDocument(ctx context.Context, workspaceID, documentID string) (bool, error)
	GetAISettings(ctx context.Context, workspaceID string) (store.AISettings, error)
	UpsertAISettings(ctx context.Context, settings store.AISettings) (store.AISettings, error)
}

// RefreshStore holds opaque refresh tokens, hashed. Satisfied by both
// the Postgres store and the Redis session store.
type RefreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type gitService interface {
	EnsureDocumentRepo(documentID string, initial gitrepo.Content, author string) error
	CommitContent(documentID string, content gitrepo.Content, author, message string) (store.CommitInfo, error)
	GetHeadContent(documentID string) (gitrepo.Content, store.CommitInfo, error)
	GetContentByHash(documentID, hash string) (gitrepo.Content, store.CommitInfo, error)
	History(documentID string, limit int) ([]store.CommitInfo, error)
	Remove(documentID string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	DeleteDocument(id string)
}

type blobStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendInvitationEmail(to, workspaceName, inviterName, role, invitationURL string, expiresInDays int) error
}

type eventSink interface {
	Emit(event webhook.Event)
}

type documentExporter interface {
	Export(ctx context.Context, doc export.Document, format export.Format) (*export.Result, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  RefreshStore
	git       gitService
	search    searchIndex
	blobs     blobStore
	mailer    mailer
	hooks     eventSink
	exporter  documentExporter
	provider  prdgen.Provider
	passwords *authpw.Service
	runner    *task.Runner
}

// Deps bundles the collaborators wired in by main. Blobs, Mailer, and
// Search may be nil when the backing system is not configured.
type Deps struct {
	Store     *store.PostgresStore
	Sessions  RefreshStore
	Git       *gitrepo.Service
	Search    *search.Service
	Blobs     *storage.MinioStore
	Mailer    *email.Service
	Hooks     *webhook.Dispatcher
	Exporter  *export.Service
	Provider  prdgen.Provider
	Passwords *authpw.Service
	Runner    *task.Runner
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:       cfg,
		sessions:  deps.Sessions,
		provider:  deps.Provider,
		passwords: deps.Passwords,
		runner:    deps.Runner,
	}
	if deps.Store != nil {
		s.store = deps.Store
	}
	if deps.Git != nil {
		s.git = deps.Git
	}
	if deps.Hooks != nil {
		s.hooks = deps.Hooks
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Blobs != nil {
		s.blobs = deps.Blobs
	}
	if deps.Mailer != nil {
		s.mailer = deps.Mailer
	}
	if deps.Exporter != nil {
		s.exporter = deps.Exporter
	}
	if s.provider == nil {
		s.provider = prdgen.NewTemplateProvider()
	}
	return s
}

func (s *Service) Passwords() *authpw.Service {
	return s.passwords
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CreateSession issues a fresh access/refresh token pair for user.
func (s *Service) CreateSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and
// a new session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// recordActivity appends an audit entry off the request path. Failures
// are logged by the runner and never reach the caller.
func (s *Service) recordActivity(workspaceID, action, actorID, targetType, targetID string, detail map[string]any) {
	var encoded json.RawMessage
	if detail != nil {
		encoded, _ = json.Marshal(detail)
	}
	activity := store.Activity{
		WorkspaceID: workspaceID,
		Action:      action,
		ActorID:     actorID,
		TargetType:  targetType,
		TargetID:    targetID,
		Detail:      encoded,
	}
	s.runner.Go("activity.record", func(ctx context.Context) error {
		return s.store.InsertActivity(ctx, activity)
	})
}

func (s *Service) emit(workspaceID, eventType string, payload map[string]any) {
	if s.hooks == nil {
		return
	}
	s.hooks.Emit(webhook.Event{
		WorkspaceID: workspaceID,
		Type:        eventType,
		Payload:     payload,
	})
}
