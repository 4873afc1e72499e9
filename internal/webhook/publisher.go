package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/road_hazard_engine/internal/models"
)

const (
	webhookQueueKey = "webhook_events"

	ChannelWebhook = "webhook"
)

// WebhookEvent - структура для данных вебхука об уведомлении
type WebhookEvent struct {
	EventType string               `json:"event_type"`
	AlertID   uuid.UUID            `json:"alert_id"`
	UserID    string               `json:"user_id"`
	HazardID  *uuid.UUID           `json:"hazard_id,omitempty"`
	Priority  models.AlertPriority `json:"priority"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
	ExpiresAt time.Time            `json:"expires_at"`
	Timestamp time.Time            `json:"timestamp"`
}

// NewAlertEvent строит событие вебхука из уведомления
func NewAlertEvent(alert *models.Alert, now time.Time) WebhookEvent {
	return WebhookEvent{
		EventType: "alert.created",
		AlertID:   alert.ID,
		UserID:    alert.UserID,
		HazardID:  alert.HazardID,
		Priority:  alert.Priority,
		Title:     alert.Title,
		Message:   alert.Message,
		Latitude:  alert.Latitude,
		Longitude: alert.Longitude,
		ExpiresAt: alert.ExpiresAt,
		Timestamp: now.UTC(),
	}
}

// WebhookPublisher - интерфейс для публикации вебхуков
type WebhookPublisher interface {
	Publish(ctx context.Context, event WebhookEvent) error
}

// RedisWebhookPublisher - реализация WebhookPublisher, использующая Redis
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

// NewRedisWebhookPublisher создает новый RedisWebhookPublisher
func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish публикует событие вебхука в очередь Redis
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event WebhookEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	// LPUSH слева, воркер забирает справа через BRPOP
	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}

// Sender - канал доставки уведомлений через очередь вебхуков.
// Успех означает, что событие принято в очередь.
type Sender struct {
	publisher WebhookPublisher
	now       func() time.Time
}

func NewSender(publisher WebhookPublisher) *Sender {
	return &Sender{publisher: publisher, now: time.Now}
}

func (s *Sender) Channel() string { return ChannelWebhook }

func (s *Sender) Send(ctx context.Context, alert *models.Alert) error {
	return s.publisher.Publish(ctx, NewAlertEvent(alert, s.now()))
}
