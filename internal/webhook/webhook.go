// Package webhook delivers signed domain events to subscribed
// endpoints and records every attempt.
package webhook

// Event types a webhook can subscribe to.
const (
	EventDocumentUploaded  = "document.uploaded"
	EventDocumentCompleted = "document.completed"
	EventDocumentFailed    = "document.failed"
	EventPRDGenerated      = "prd.generated"
	EventCommentCreated    = "comment.created"
)

var supportedEvents = map[string]struct{}{
	EventDocumentUploaded:  {},
	EventDocumentCompleted: {},
	EventDocumentFailed:    {},
	EventPRDGenerated:      {},
	EventCommentCreated:    {},
}

// SupportedEvent reports whether name is a known event type.
func SupportedEvent(name string) bool {
	_, ok := supportedEvents[name]
	return ok
}

// SupportedEvents lists every event type in a stable order.
func SupportedEvents() []string {
	return []string{
		EventDocumentUploaded,
		EventDocumentCompleted,
		EventDocumentFailed,
		EventPRDGenerated,
		EventCommentCreated,
	}
}

// Event is a domain event to fan out to a workspace's webhooks.
type Event struct {
	WorkspaceID string
	Type        string
	Payload     map[string]any
}
