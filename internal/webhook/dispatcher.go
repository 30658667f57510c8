package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"quill/api/internal/store"
	"quill/api/internal/task"
)

type deliveryStore interface {
	ListActiveWebhooks(ctx context.Context, workspaceID string) ([]store.Webhook, error)
	InsertDelivery(ctx context.Context, delivery store.WebhookDelivery) error
}

// Dispatcher fans domain events out to subscribed webhooks. Dispatch
// runs off the request path; the triggering operation never waits on
// or fails with a delivery.
type Dispatcher struct {
	store  deliveryStore
	client *resty.Client
	runner *task.Runner
}

func NewDispatcher(deliveries deliveryStore, runner *task.Runner, timeout time.Duration) *Dispatcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "quill-webhooks/1.0")
	return &Dispatcher{store: deliveries, client: client, runner: runner}
}

// Emit schedules asynchronous delivery of event to every matching
// webhook in its workspace.
func (d *Dispatcher) Emit(event Event) {
	d.runner.Go("webhook.dispatch", func(ctx context.Context) error {
		return d.Dispatch(ctx, event)
	})
}

// Dispatch delivers event to all active, subscribed webhooks and
// records one delivery row per attempt. Individual failures are
// recorded, not returned; only listing webhooks can fail outright.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	webhooks, err := d.store.ListActiveWebhooks(ctx, event.WorkspaceID)
	if err != nil {
		return fmt.Errorf("list webhooks for %s: %w", event.WorkspaceID, err)
	}

	for _, hook := range webhooks {
		if !subscribed(hook, event.Type) {
			continue
		}
		delivery := d.deliver(ctx, hook, event)
		if err := d.store.InsertDelivery(ctx, delivery); err != nil {
			return fmt.Errorf("record delivery %s: %w", delivery.ID, err)
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, hook store.Webhook, event Event) store.WebhookDelivery {
	deliveryID := uuid.NewString()

	body, err := json.Marshal(map[string]any{
		"event":      event.Type,
		"deliveryId": deliveryID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"data":       event.Payload,
	})
	delivery := store.WebhookDelivery{
		ID:          deliveryID,
		WebhookID:   hook.ID,
		EventType:   event.Type,
		Payload:     body,
		AttemptedAt: time.Now().UTC(),
	}
	if err != nil {
		// The deliveries table rejects NULL payloads; record an empty one.
		delivery.Payload = json.RawMessage("{}")
		delivery.Outcome = store.DeliveryFailure
		delivery.Error = fmt.Sprintf("marshal payload: %v", err)
		return delivery
	}

	req := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Quill-Event", event.Type).
		SetHeader("X-Quill-Delivery", deliveryID).
		SetHeader("X-Quill-Signature", Sign(hook.Secret, body)).
		SetBody(body)
	for key, value := range hook.Headers {
		req.SetHeader(key, value)
	}

	resp, err := req.Post(hook.URL)
	if err != nil {
		delivery.Outcome = store.DeliveryFailure
		delivery.Error = err.Error()
		return delivery
	}

	status := resp.StatusCode()
	delivery.ResponseStatus = &status
	if status >= 200 && status < 300 {
		delivery.Outcome = store.DeliverySuccess
	} else {
		delivery.Outcome = store.DeliveryFailure
		delivery.Error = fmt.Sprintf("endpoint returned status %d", status)
	}
	return delivery
}

// Sign computes the hex HMAC-SHA256 of body under secret, the value
// carried in X-Quill-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func subscribed(hook store.Webhook, eventType string) bool {
	for _, event := range hook.Events {
		if event == eventType {
			return true
		}
	}
	return false
}
