package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultAlertTTL - срок жизни уведомления, если не задан явно
const DefaultAlertTTL = 24 * time.Hour

type Alert struct {
	ID           uuid.UUID     `json:"id"`
	UserID       string        `json:"user_id"`
	Type         AlertType     `json:"type"`
	Priority     AlertPriority `json:"priority"`
	Title        string        `json:"title"`
	Message      string        `json:"message"`
	Voice        VoiceConfig   `json:"voice"`
	Longitude    float64       `json:"longitude"`
	Latitude     float64       `json:"latitude"`
	RadiusMeters float64       `json:"radius_meters"`
	HazardID     *uuid.UUID    `json:"hazard_id,omitempty"`
	Delivery     Delivery      `json:"delivery"`
	Interaction  Interaction   `json:"interaction"`
	Metadata     Metadata      `json:"metadata,omitempty"`
	ScheduledFor *time.Time    `json:"scheduled_for,omitempty"`
	ExpiresAt    time.Time     `json:"expires_at"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Version      int           `json:"version"`
}

type VoiceConfig struct {
	Enabled  bool    `json:"enabled"`
	Language string  `json:"language,omitempty"`
	Voice    string  `json:"voice,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

type Delivery struct {
	Status        DeliveryStatus `json:"status"`
	Channels      []string       `json:"channels"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
	FailedAt      *time.Time     `json:"failed_at,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

type Interaction struct {
	Acknowledged   bool        `json:"acknowledged"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	Dismissed      bool        `json:"dismissed"`
	DismissedAt    *time.Time  `json:"dismissed_at,omitempty"`
	Action         AlertAction `json:"action,omitempty"`
}

// AlertParams - параметры создания уведомления
type AlertParams struct {
	UserID       string
	Type         AlertType
	Priority     AlertPriority
	Title        string
	Message      string
	Voice        VoiceConfig
	Longitude    float64
	Latitude     float64
	RadiusMeters float64
	HazardID     *uuid.UUID
	ScheduledFor *time.Time
	ExpiresAt    *time.Time
	Metadata     Metadata
}

// NewAlert создает уведомление в состоянии pending.
// ExpiresAt по умолчанию now+ttl.
func NewAlert(p AlertParams, ttl time.Duration, now time.Time) (*Alert, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, invalid("user_id", "is required")
	}
	if !p.Type.Valid() {
		return nil, invalid("type", "unknown alert type "+string(p.Type))
	}
	if !p.Priority.Valid() {
		return nil, invalid("priority", "unknown priority "+string(p.Priority))
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, invalid("title", "is required")
	}
	if err := ValidateCoordinates(p.Longitude, p.Latitude); err != nil {
		return nil, err
	}
	if p.RadiusMeters < 0 {
		return nil, invalid("radius_meters", "must not be negative")
	}
	if err := p.Metadata.Validate(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultAlertTTL
	}
	now = now.UTC()
	expiresAt := now.Add(ttl)
	if p.ExpiresAt != nil {
		expiresAt = p.ExpiresAt.UTC()
	}
	return &Alert{
		ID:           uuid.New(),
		UserID:       p.UserID,
		Type:         p.Type,
		Priority:     p.Priority,
		Title:        p.Title,
		Message:      p.Message,
		Voice:        p.Voice,
		Longitude:    p.Longitude,
		Latitude:     p.Latitude,
		RadiusMeters: p.RadiusMeters,
		HazardID:     p.HazardID,
		Delivery:     Delivery{Status: DeliveryPending, Channels: []string{}},
		Metadata:     p.Metadata,
		ScheduledFor: p.ScheduledFor,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}, nil
}

// NewHazardAlert создает уведомление об опасности для пользователя.
// Приоритет выводится из severity в момент создания.
func NewHazardAlert(h *Hazard, userID string, radiusMeters float64, ttl time.Duration, now time.Time) (*Alert, error) {
	id := h.ID
	kind := strings.ReplaceAll(string(h.Type), "_", " ")
	where := h.Address
	if where == "" {
		where = fmt.Sprintf("%.5f, %.5f", h.Latitude, h.Longitude)
	}
	return NewAlert(AlertParams{
		UserID:       userID,
		Type:         AlertHazard,
		Priority:     AlertPriorityFor(h.Severity),
		Title:        strings.ToUpper(kind[:1]) + kind[1:] + " ahead",
		Message:      fmt.Sprintf("%s %s reported near %s", h.Severity, kind, where),
		Voice:        VoiceConfig{Enabled: h.Severity == SeverityCritical, Language: "en"},
		Longitude:    h.Longitude,
		Latitude:     h.Latitude,
		RadiusMeters: radiusMeters,
		HazardID:     &id,
	}, ttl, now)
}

func (a *Alert) transitionError(to DeliveryStatus) error {
	return &TransitionError{Entity: "alert", From: string(a.Delivery.Status), To: string(to)}
}

// MarkSent: pending -> sent
func (a *Alert) MarkSent(now time.Time) error {
	if a.Delivery.Status != DeliveryPending {
		return a.transitionError(DeliverySent)
	}
	t := now.UTC()
	a.Delivery.Status = DeliverySent
	a.Delivery.SentAt = &t
	a.UpdatedAt = t
	return nil
}

// Deliver фиксирует успешную доставку по каналу
func (a *Alert) Deliver(channel string, now time.Time) error {
	switch a.Delivery.Status {
	case DeliveryPending, DeliverySent, DeliveryDelivered:
	default:
		return a.transitionError(DeliveryDelivered)
	}
	t := now.UTC()
	a.Delivery.Status = DeliveryDelivered
	if !containsString(a.Delivery.Channels, channel) {
		a.Delivery.Channels = append(a.Delivery.Channels, channel)
	}
	a.Delivery.DeliveredAt = &t
	a.UpdatedAt = t
	return nil
}

// Fail - все каналы завершились ошибкой
func (a *Alert) Fail(reason string, now time.Time) error {
	if a.Delivery.Status != DeliveryPending && a.Delivery.Status != DeliverySent {
		return a.transitionError(DeliveryFailed)
	}
	t := now.UTC()
	a.Delivery.Status = DeliveryFailed
	a.Delivery.FailedAt = &t
	a.Delivery.FailureReason = reason
	a.UpdatedAt = t
	return nil
}

// RevokeChannel отменяет доставку по каналу, который сообщил об ошибке
// после того, как принял уведомление. Если успешных каналов не осталось,
// уведомление переходит в failed.
func (a *Alert) RevokeChannel(channel, reason string, now time.Time) error {
	if a.Delivery.Status != DeliveryDelivered || !containsString(a.Delivery.Channels, channel) {
		return a.transitionError(DeliveryFailed)
	}
	t := now.UTC()
	kept := make([]string, 0, len(a.Delivery.Channels))
	for _, ch := range a.Delivery.Channels {
		if ch != channel {
			kept = append(kept, ch)
		}
	}
	a.Delivery.Channels = kept
	a.UpdatedAt = t
	if len(kept) == 0 {
		a.Delivery.Status = DeliveryFailed
		a.Delivery.FailedAt = &t
		a.Delivery.FailureReason = channel + ": " + reason
	}
	return nil
}

// Cancel допустим только из pending
func (a *Alert) Cancel(now time.Time) error {
	if a.Delivery.Status != DeliveryPending {
		return a.transitionError(DeliveryCancelled)
	}
	a.Delivery.Status = DeliveryCancelled
	a.UpdatedAt = now.UTC()
	return nil
}

// Acknowledge устанавливается один раз и не меняет статус доставки
func (a *Alert) Acknowledge(action AlertAction, now time.Time) error {
	if action == "" {
		action = ActionNone
	}
	if !action.Valid() {
		return invalid("action", "unknown action "+string(action))
	}
	if a.Interaction.Acknowledged {
		return &TransitionError{Entity: "alert", From: "acknowledged", To: "acknowledged"}
	}
	t := now.UTC()
	a.Interaction.Acknowledged = true
	a.Interaction.AcknowledgedAt = &t
	a.Interaction.Action = action
	a.UpdatedAt = t
	return nil
}

// Dismiss устанавливается один раз
func (a *Alert) Dismiss(now time.Time) error {
	if a.Interaction.Dismissed {
		return &TransitionError{Entity: "alert", From: "dismissed", To: "dismissed"}
	}
	t := now.UTC()
	a.Interaction.Dismissed = true
	a.Interaction.DismissedAt = &t
	a.UpdatedAt = t
	return nil
}

// IsRelevant: expiresAt > now, не скрыто пользователем и доставка не провалена
func (a *Alert) IsRelevant(now time.Time) bool {
	return a.ExpiresAt.After(now) && !a.Interaction.Dismissed && a.Delivery.Status != DeliveryFailed
}

type AlertFilter struct {
	UserID       string
	Type         AlertType
	Priority     AlertPriority
	Status       DeliveryStatus
	RelevantOnly bool
	Now          time.Time
	Page         int
	PageSize     int
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
