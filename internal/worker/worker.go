package worker

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"posresto/attendance-service/internal/hub"
	"posresto/attendance-service/internal/store"

	"github.com/google/uuid"
)

// OutboxStore is the slice of the persistence layer the worker drives:
// the outbox cursor and the notification bookkeeping.
type OutboxStore interface {
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
	GetLastOffset(ctx context.Context) (time.Time, error)
	UpdateOffset(ctx context.Context, value time.Time) error
	IsNotificationsEnabled(ctx context.Context, tenantID string) (bool, error)
	InsertNotification(ctx context.Context, notification store.Notification) error
	MarkNotificationSent(ctx context.Context, notificationID string) error
	MarkNotificationFailed(ctx context.Context, notificationID, lastError string) error
	InsertDLQ(ctx context.Context, notificationID, reason string) error
}

// Broadcaster pushes attendance events to connected live boards.
type Broadcaster interface {
	Broadcast(payload []byte, meta hub.Subscription)
}

type Worker struct {
	store       OutboxStore
	broadcaster Broadcaster
	provider    Provider
	batchSize   int
	maxAttempts int
}

type payloadData map[string]interface{}

type Config struct {
	BatchSize   int
	MaxAttempts int
	Provider    string
}

func New(st OutboxStore, broadcaster Broadcaster, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		store:       st,
		broadcaster: broadcaster,
		provider:    newProvider(cfg.Provider),
		batchSize:   batch,
		maxAttempts: maxAttempts,
	}
}

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Run drains one batch of outbox events: each event is broadcast to the
// live boards and, when the tenant opted in, turned into a notification.
// The offset only advances past events that were fully processed, so a
// crash replays rather than skips.
func (w *Worker) Run(ctx context.Context) error {
	last, err := w.store.GetLastOffset(ctx)
	if err != nil {
		return err
	}

	events, err := w.store.ListOutboxEvents(ctx, last, w.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := w.processEvent(ctx, event); err != nil {
			log.Printf("attendance worker process error: %v", err)
			break
		}
		last = event.CreatedAt
	}

	if !last.IsZero() {
		if err := w.store.UpdateOffset(ctx, last); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	payload := payloadData{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}

	if w.broadcaster != nil {
		envelope, err := json.Marshal(eventEnvelope{
			Type:      event.Type,
			Payload:   event.Payload,
			CreatedAt: event.CreatedAt,
		})
		if err != nil {
			return err
		}
		w.broadcaster.Broadcast(envelope, hub.Subscription{
			TenantID: event.TenantID,
			UserID:   str(payload, "user_id"),
		})
	}

	enabled, err := w.store.IsNotificationsEnabled(ctx, event.TenantID)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	message := messageForEvent(event.Type, payload)
	if message == "" {
		return nil
	}

	notification := store.Notification{
		NotificationID: uuid.NewString(),
		TenantID:       event.TenantID,
		Channel:        "manager_feed",
		Recipient:      event.TenantID,
		Status:         "pending",
		Attempts:       1,
	}
	if err := w.store.InsertNotification(ctx, notification); err != nil {
		return err
	}

	if providerErr := w.provider.Send(ctx, message, notification.Recipient); providerErr != nil {
		if err := w.store.MarkNotificationFailed(ctx, notification.NotificationID, providerErr.Error()); err != nil {
			return err
		}
		if notification.Attempts >= w.maxAttempts {
			return w.store.InsertDLQ(ctx, notification.NotificationID, "max attempts reached")
		}
		return nil
	}
	return w.store.MarkNotificationSent(ctx, notification.NotificationID)
}

func messageForEvent(eventType string, payload payloadData) string {
	switch eventType {
	case store.EventClockedIn:
		return renderMessage("Staff {user_id} clocked in via {method}.", payload)
	case store.EventClockedOut:
		return renderMessage("Staff {user_id} clocked out via {method} ({worked_minutes} min).", payload)
	default:
		return ""
	}
}

func renderMessage(template string, payload payloadData) string {
	result := template
	result = strings.ReplaceAll(result, "{user_id}", str(payload, "user_id"))
	result = strings.ReplaceAll(result, "{method}", str(payload, "method"))
	result = strings.ReplaceAll(result, "{worked_minutes}", num(payload, "worked_minutes"))
	return result
}

func str(payload payloadData, key string) string {
	if value, ok := payload[key].(string); ok {
		return value
	}
	return ""
}

func num(payload payloadData, key string) string {
	value, ok := payload[key].(float64)
	if !ok {
		return "0"
	}
	return strconv.Itoa(int(value))
}

func Start(ctx context.Context, interval time.Duration, w *Worker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				log.Printf("attendance worker error: %v", err)
			}
		}
	}
}
