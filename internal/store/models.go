package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID            string
	Email         string
	DisplayName   string
	EmailVerified bool
	CreatedAt     time.Time
}

type Workspace struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Membership struct {
	WorkspaceID string
	UserID      string
	Role        string
	JoinedAt    time.Time

	// Joined user fields, populated on listing.
	UserName string
	Email    string
}

const (
	InvitationPending   = "pending"
	InvitationAccepted  = "accepted"
	InvitationExpired   = "expired"
	InvitationCancelled = "cancelled"
)

type Invitation struct {
	ID          string
	WorkspaceID string
	Email       string
	Role        string
	Token       string
	Status      string
	InviterName string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

type Webhook struct {
	ID          string
	WorkspaceID string
	Name        string
	URL         string
	Events      []string
	// Secret signs outbound payloads. Exposed through the API exactly
	// once, in the creation response.
	Secret    string
	Headers   map[string]string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	DeliverySuccess = "success"
	DeliveryFailure = "failure"
)

type WebhookDelivery struct {
	ID             string
	WebhookID      string
	EventType      string
	Payload        json.RawMessage
	AttemptedAt    time.Time
	ResponseStatus *int
	Error          string
	Outcome        string
}

type Comment struct {
	ID          string
	WorkspaceID string
	TargetType  string
	TargetID    string
	AuthorID    string
	Body        string
	Resolved    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	AuthorName string
}

type Activity struct {
	ID          string
	WorkspaceID string
	Action      string
	ActorID     string
	TargetType  string
	TargetID    string
	Detail      json.RawMessage
	CreatedAt   time.Time

	ActorName string
}

const (
	DocumentDraft      = "draft"
	DocumentProcessing = "processing"
	DocumentReady      = "ready"
	DocumentFailed     = "failed"
)

type Document struct {
	ID          string
	WorkspaceID string
	Title       string
	Summary     string
	Status      string
	SourceKey   string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type AISettings struct {
	WorkspaceID string
	Provider    string
	Model       string
	APIKey      string
	UpdatedAt   time.Time
}

type CommitInfo struct {
	Hash      string
	ShortHash string
	Message   string
	Author    string
	Timestamp time.Time
}
