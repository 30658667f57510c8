package store

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) InsertWebhook(ctx context.Context, webhook Webhook) (Webhook, error) {
	events, err := json.Marshal(webhook.Events)
	if err != nil {
		return Webhook{}, fmt.Errorf("marshal webhook events: %w", err)
	}
	headers, err := marshalHeaders(webhook.Headers)
	if err != nil {
		return Webhook{}, err
	}

	const query = `
		INSERT INTO webhooks (workspace_id, name, url, events, secret, headers, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	inserted := webhook
	err = s.db.QueryRowContext(ctx, query,
		webhook.WorkspaceID, webhook.Name, webhook.URL, events, webhook.Secret, headers, webhook.Active,
	).Scan(&inserted.ID, &inserted.CreatedAt, &inserted.UpdatedAt)
	if err != nil {
		return Webhook{}, fmt.Errorf("insert webhook: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetWebhook(ctx context.Context, workspaceID, webhookID string) (Webhook, error) {
	const query = `
		SELECT id, workspace_id, name, url, events, secret, headers, active, created_at, updated_at
		FROM webhooks WHERE id=$1 AND workspace_id=$2
	`
	return scanWebhook(s.db.QueryRowContext(ctx, query, webhookID, workspaceID))
}

func (s *PostgresStore) ListWebhooks(ctx context.Context, workspaceID string) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, url, events, secret, headers, active, created_at, updated_at
		FROM webhooks WHERE workspace_id=$1
		ORDER BY created_at
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []Webhook
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}
	return webhooks, rows.Err()
}

// ListActiveWebhooks returns the active hooks of one workspace; the
// dispatcher filters by subscribed event in Go.
func (s *PostgresStore) ListActiveWebhooks(ctx context.Context, workspaceID string) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, name, url, events, secret, headers, active, created_at, updated_at
		FROM webhooks WHERE workspace_id=$1 AND active=TRUE
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list active webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []Webhook
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}
	return webhooks, rows.Err()
}

// UpdateWebhook rewrites the mutable columns. The secret is not among
// them; it is fixed at creation.
func (s *PostgresStore) UpdateWebhook(ctx context.Context, webhook Webhook) (Webhook, error) {
	events, err := json.Marshal(webhook.Events)
	if err != nil {
		return Webhook{}, fmt.Errorf("marshal webhook events: %w", err)
	}
	headers, err := marshalHeaders(webhook.Headers)
	if err != nil {
		return Webhook{}, err
	}

	const query = `
		UPDATE webhooks
		SET name=$3, url=$4, events=$5, headers=$6, active=$7, updated_at=NOW()
		WHERE id=$1 AND workspace_id=$2
		RETURNING id, workspace_id, name, url, events, secret, headers, active, created_at, updated_at
	`
	return scanWebhook(s.db.QueryRowContext(ctx, query,
		webhook.ID, webhook.WorkspaceID, webhook.Name, webhook.URL, events, headers, webhook.Active,
	))
}

func (s *PostgresStore) DeleteWebhook(ctx context.Context, workspaceID, webhookID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM webhooks WHERE id=$1 AND workspace_id=$2
	`, webhookID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("delete webhook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete webhook result: %w", err)
	}
	return affected > 0, nil
}

// Deliveries

func (s *PostgresStore) InsertDelivery(ctx context.Context, delivery WebhookDelivery) error {
	const query = `
		INSERT INTO webhook_deliveries (id, webhook_id, event_type, payload, attempted_at, response_status, error, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.db.ExecContext(ctx, query,
		delivery.ID, delivery.WebhookID, delivery.EventType, []byte(delivery.Payload),
		delivery.AttemptedAt, delivery.ResponseStatus, delivery.Error, delivery.Outcome,
	); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, webhookID string, limit, offset int) ([]WebhookDelivery, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM webhook_deliveries WHERE webhook_id=$1
	`, webhookID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, webhook_id, event_type, payload, attempted_at, response_status, error, outcome
		FROM webhook_deliveries
		WHERE webhook_id=$1
		ORDER BY attempted_at DESC
		LIMIT $2 OFFSET $3
	`, webhookID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []WebhookDelivery
	for rows.Next() {
		var delivery WebhookDelivery
		var payload []byte
		if err := rows.Scan(
			&delivery.ID, &delivery.WebhookID, &delivery.EventType, &payload,
			&delivery.AttemptedAt, &delivery.ResponseStatus, &delivery.Error, &delivery.Outcome,
		); err != nil {
			return nil, 0, fmt.Errorf("scan delivery: %w", err)
		}
		delivery.Payload = payload
		deliveries = append(deliveries, delivery)
	}
	return deliveries, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhook(row rowScanner) (Webhook, error) {
	var webhook Webhook
	var events, headers []byte
	err := row.Scan(
		&webhook.ID, &webhook.WorkspaceID, &webhook.Name, &webhook.URL,
		&events, &webhook.Secret, &headers, &webhook.Active,
		&webhook.CreatedAt, &webhook.UpdatedAt,
	)
	if err != nil {
		return Webhook{}, err
	}
	if err := json.Unmarshal(events, &webhook.Events); err != nil {
		return Webhook{}, fmt.Errorf("unmarshal webhook events: %w", err)
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &webhook.Headers); err != nil {
			return Webhook{}, fmt.Errorf("unmarshal webhook headers: %w", err)
		}
	}
	return webhook, nil
}

func marshalHeaders(headers map[string]string) ([]byte, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	encoded, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook headers: %w", err)
	}
	return encoded, nil
}
