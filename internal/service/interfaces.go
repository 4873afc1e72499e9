package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/notify"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/interfaces_mock.go -package=mocks

// HazardRepository определяет контракт хранилища опасностей.
// Create обязан гарантировать уникальность отпечатка на уровне хранилища
// и возвращать *models.ConflictError при коллизии.
type HazardRepository interface {
	Create(ctx context.Context, hazard *models.Hazard) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Hazard, error)
	Update(ctx context.Context, hazard *models.Hazard) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter models.HazardFilter) ([]*models.Hazard, error)
	FindNearest(ctx context.Context, query models.NearbyQuery) ([]*models.Hazard, error)
	FindInBounds(ctx context.Context, box models.BoundingBox) ([]*models.Hazard, error)
	ListForDedup(ctx context.Context, since, until time.Time) ([]*models.Hazard, error)
	ApplyMerge(ctx context.Context, survivor *models.Hazard, absorbed []uuid.UUID) error
	AttachTicket(ctx context.Context, hazardID, ticketID uuid.UUID) error
	CountBy(ctx context.Context, dimension string, since time.Time) (map[string]int, error)
}

// HazardCache - кеш опасностей по ID. Get возвращает (nil, nil) при промахе.
type HazardCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Hazard, error)
	Set(ctx context.Context, hazard *models.Hazard) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// AlertRepository - хранилище уведомлений. Update сравнивает version
// и возвращает models.ErrVersionMismatch при конкурентном изменении.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	Update(ctx context.Context, alert *models.Alert) error
	List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
	CountBy(ctx context.Context, dimension string, since time.Time) (map[string]int, error)
}

// TicketRepository - хранилище заявок, Update с оптимистичной блокировкой
type TicketRepository interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	Update(ctx context.Context, ticket *models.Ticket) error
	List(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error)
	ListOpen(ctx context.Context) ([]*models.Ticket, error)
	RecordSync(ctx context.Context, id uuid.UUID, sync models.ExternalSync) error
	CountBy(ctx context.Context, dimension string, since time.Time) (map[string]int, error)
}

// UserDirectory - источник пользователей и их последних координат
type UserDirectory interface {
	UpdateLocation(ctx context.Context, userID string, longitude, latitude float64) error
	NearbyUsers(ctx context.Context, longitude, latitude, radiusMeters float64) ([]string, error)
}

// AlertNotifier рассылает уведомление по каналам и возвращает сводку
type AlertNotifier interface {
	Dispatch(ctx context.Context, alert *models.Alert) notify.Result
}

// PrivacyFilter возвращает ссылку на обезличенное изображение
type PrivacyFilter interface {
	Process(ctx context.Context, imageURL string) (string, error)
}

// TicketSyncer передает заявку во внешнюю систему
type TicketSyncer interface {
	System() string
	Sync(ctx context.Context, ticket *models.Ticket) (externalID, status string, err error)
}

// EvidenceStore сохраняет снимки данных датчиков
type EvidenceStore interface {
	PutSnapshot(ctx context.Context, ticketID, kind string, payload any) (string, error)
}

// HazardService определяет контракт бизнес-логики опасностей
type HazardService interface {
	CreateHazard(ctx context.Context, obs models.Observation) (*models.Hazard, error)
	GetHazard(ctx context.Context, id uuid.UUID) (*models.Hazard, error)
	ListHazards(ctx context.Context, filter models.HazardFilter) ([]*models.Hazard, error)
	NearbyHazards(ctx context.Context, query models.NearbyQuery) ([]*models.Hazard, error)
	Heatmap(ctx context.Context, box models.BoundingBox, cellDegrees float64) ([]models.HeatCell, error)
	SubmitFeedback(ctx context.Context, id uuid.UUID, report models.FeedbackReport) (*models.Hazard, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.HazardStatus) (*models.Hazard, error)
	DeleteHazard(ctx context.Context, id uuid.UUID) error
	Deduplicate(ctx context.Context, since, until time.Time) (*models.DedupReport, error)
	Stats(ctx context.Context, dimension string) (map[string]int, error)
	CheckLocation(ctx context.Context, check models.LocationCheck) (*models.LocationReport, error)
}

// AlertService - жизненный цикл уведомлений
type AlertService interface {
	CreateForHazard(ctx context.Context, hazard *models.Hazard) ([]*models.Alert, error)
	CreateAlert(ctx context.Context, params models.AlertParams) (*models.Alert, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
	Acknowledge(ctx context.Context, id uuid.UUID, action models.AlertAction) (*models.Alert, error)
	Dismiss(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	RecordChannelFailure(ctx context.Context, id uuid.UUID, channel, reason string) (*models.Alert, error)
	Stats(ctx context.Context, dimension string) (map[string]int, error)
}

// TicketService - жизненный цикл заявок и SLA
type TicketService interface {
	CreateFromHazard(ctx context.Context, hazard *models.Hazard) (*models.Ticket, error)
	CreateTicket(ctx context.Context, params models.TicketParams) (*models.Ticket, error)
	GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	ListTickets(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.TicketStatus, by, comment string) (*models.Ticket, error)
	Assign(ctx context.Context, id uuid.UUID, assignment models.Assignment, by string) (*models.Ticket, error)
	SubmitFeedback(ctx context.Context, id uuid.UUID, rating int, comment string) (*models.Ticket, error)
	Overdue(ctx context.Context) ([]models.OverdueTicket, error)
	Stats(ctx context.Context, dimension string) (map[string]int, error)
}
