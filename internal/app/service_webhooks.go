package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"quill/api/internal/rbac"
	"quill/api/internal/store"
	"quill/api/internal/webhook"
)

type WebhookInput struct {
	Name    *string           `json:"name"`
	URL     *string           `json:"url"`
	Events  []string          `json:"events"`
	Headers map[string]string `json:"headers"`
	Active  *bool             `json:"active"`
}

// CreateWebhook registers a webhook subscription. The HMAC secret is
// generated server-side and appears in this response only.
func (s *Service) CreateWebhook(ctx context.Context, session Session, workspaceID string, input WebhookInput) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return nil, err
	}

	name := ""
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
	}
	if name == "" {
		return nil, errValidation("name is required")
	}
	endpoint := ""
	if input.URL != nil {
		endpoint = strings.TrimSpace(*input.URL)
	}
	if err := validateWebhookURL(endpoint); err != nil {
		return nil, err
	}
	if err := validateEvents(input.Events); err != nil {
		return nil, err
	}

	secret, err := newWebhookSecret()
	if err != nil {
		return nil, err
	}

	created, err := s.store.InsertWebhook(ctx, store.Webhook{
		WorkspaceID: workspaceID,
		Name:        name,
		URL:         endpoint,
		Events:      input.Events,
		Secret:      secret,
		Headers:     input.Headers,
		Active:      true,
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(workspaceID, "webhook.created", session.UserID, "webhook", created.ID, map[string]any{"name": name})

	payload := webhookPayload(created)
	payload["secret"] = created.Secret
	return payload, nil
}

func (s *Service) ListWebhooks(ctx context.Context, session Session, workspaceID string) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return nil, err
	}
	webhooks, err := s.store.ListWebhooks(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(webhooks))
	for _, hook := range webhooks {
		items = append(items, webhookPayload(hook))
	}
	return items, nil
}

func (s *Service) GetWebhook(ctx context.Context, session Session, workspaceID, webhookID string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return nil, err
	}
	hook, err := s.store.GetWebhook(ctx, workspaceID, webhookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("webhook not found")
		}
		return nil, err
	}
	return webhookPayload(hook), nil
}

// UpdateWebhook applies a partial update. The secret cannot be read or
// rotated through this path.
func (s *Service) UpdateWebhook(ctx context.Context, session Session, workspaceID, webhookID string, input WebhookInput) (map[string]any, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return nil, err
	}

	hook, err := s.store.GetWebhook(ctx, workspaceID, webhookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("webhook not found")
		}
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errValidation("name cannot be empty")
		}
		hook.Name = name
	}
	if input.URL != nil {
		endpoint := strings.TrimSpace(*input.URL)
		if err := validateWebhookURL(endpoint); err != nil {
			return nil, err
		}
		hook.URL = endpoint
	}
	if input.Events != nil {
		if err := validateEvents(input.Events); err != nil {
			return nil, err
		}
		hook.Events = input.Events
	}
	if input.Headers != nil {
		hook.Headers = input.Headers
	}
	if input.Active != nil {
		hook.Active = *input.Active
	}

	updated, err := s.store.UpdateWebhook(ctx, hook)
	if err != nil {
		return nil, err
	}

	s.recordActivity(workspaceID, "webhook.updated", session.UserID, "webhook", webhookID, nil)
	return webhookPayload(updated), nil
}

func (s *Service) DeleteWebhook(ctx context.Context, session Session, workspaceID, webhookID string) error {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return err
	}
	deleted, err := s.store.DeleteWebhook(ctx, workspaceID, webhookID)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound("webhook not found")
	}
	s.recordActivity(workspaceID, "webhook.deleted", session.UserID, "webhook", webhookID, nil)
	return nil
}

// ListWebhookDeliveries returns the paginated delivery audit trail for
// one webhook, newest first.
func (s *Service) ListWebhookDeliveries(ctx context.Context, session Session, workspaceID, webhookID string, limit, offset int) ([]map[string]any, int, error) {
	if _, err := s.requireMember(ctx, session.UserID, workspaceID, rbac.RoleAdmin); err != nil {
		return nil, 0, err
	}
	if _, err := s.store.GetWebhook(ctx, workspaceID, webhookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, errNotFound("webhook not found")
		}
		return nil, 0, err
	}

	deliveries, total, err := s.store.ListDeliveries(ctx, webhookID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]map[string]any, 0, len(deliveries))
	for _, delivery := range deliveries {
		item := map[string]any{
			"id":          delivery.ID,
			"webhookId":   delivery.WebhookID,
			"eventType":   delivery.EventType,
			"payload":     delivery.Payload,
			"attemptedAt": delivery.AttemptedAt,
			"outcome":     delivery.Outcome,
		}
		if delivery.ResponseStatus != nil {
			item["responseStatus"] = *delivery.ResponseStatus
		}
		if delivery.Error != "" {
			item["error"] = delivery.Error
		}
		items = append(items, item)
	}
	return items, total, nil
}

// webhookPayload never includes the secret.
func webhookPayload(hook store.Webhook) map[string]any {
	return map[string]any{
		"id":          hook.ID,
		"workspaceId": hook.WorkspaceID,
		"name":        hook.Name,
		"url":         hook.URL,
		"events":      hook.Events,
		"headers":     hook.Headers,
		"active":      hook.Active,
		"createdAt":   hook.CreatedAt,
		"updatedAt":   hook.UpdatedAt,
	}
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return errValidation("url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errValidation("url must be an absolute http(s) URL")
	}
	return nil
}

func validateEvents(events []string) error {
	if len(events) == 0 {
		return errValidation("at least one event is required")
	}
	for _, event := range events {
		if !webhook.SupportedEvent(event) {
			return errValidation("unsupported event: " + event)
		}
	}
	return nil
}

func newWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
