package v1

import (
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/models"
)

// ErrorResponse - тело ответа с ошибкой
// @Description Тело ответа с ошибкой
type ErrorResponse struct {
	Error      string     `json:"error"`
	Field      string     `json:"field,omitempty"`
	ExistingID *uuid.UUID `json:"existing_id,omitempty"`
}

// GeoPoint - точка в формате GeoJSON: [longitude, latitude]
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// CreateHazardRequest DTO для регистрации опасности
// @Description DTO для регистрации опасности
type CreateHazardRequest struct {
	Type       string                  `json:"type" validate:"required,oneof=pothole debris speed_breaker stalled_vehicle construction flooding other"`
	Severity   string                  `json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Confidence *float64                `json:"confidence" validate:"required,gte=0,lte=1"`
	Latitude   *float64                `json:"latitude" validate:"required,latitude"`
	Longitude  *float64                `json:"longitude" validate:"required,longitude"`
	Address    string                  `json:"address,omitempty" validate:"max=500"`
	City       string                  `json:"city,omitempty"`
	State      string                  `json:"state,omitempty"`
	Country    string                  `json:"country,omitempty"`
	Detection  models.DetectionPayload `json:"detection"`
	Vehicle    *models.VehicleContext  `json:"vehicle,omitempty"`
	DetectedAt *time.Time              `json:"detected_at,omitempty"`
	ReportedBy string                  `json:"reported_by,omitempty"`
	Metadata   map[string]any          `json:"metadata,omitempty"`
}

// HazardListQuery - фильтры списка опасностей
type HazardListQuery struct {
	Type     string `form:"type" validate:"omitempty,oneof=pothole debris speed_breaker stalled_vehicle construction flooding other"`
	Severity string `form:"severity" validate:"omitempty,oneof=low medium high critical"`
	Status   string `form:"status" validate:"omitempty,oneof=active reported in_progress fixed false_positive"`
	Page     int    `form:"page" validate:"gte=0"`
	PageSize int    `form:"pageSize" validate:"gte=0,lte=100"`
}

// NearbyQuery - поиск ближайших опасностей
type NearbyQuery struct {
	Latitude  *float64 `form:"lat" validate:"required,latitude"`
	Longitude *float64 `form:"lng" validate:"required,longitude"`
	Radius    float64  `form:"radius" validate:"gte=0,lte=50000"`
	Limit     int      `form:"limit" validate:"gte=0,lte=100"`
	Type      string   `form:"type" validate:"omitempty,oneof=pothole debris speed_breaker stalled_vehicle construction flooding other"`
}

// HeatmapQuery - прямоугольник и размер ячейки в градусах
type HeatmapQuery struct {
	MinLatitude  *float64 `form:"min_lat" validate:"required,latitude"`
	MinLongitude *float64 `form:"min_lng" validate:"required,longitude"`
	MaxLatitude  *float64 `form:"max_lat" validate:"required,latitude"`
	MaxLongitude *float64 `form:"max_lng" validate:"required,longitude"`
	Cell         float64  `form:"cell" validate:"gte=0,lte=1"`
}

// StatsQuery - измерение для статистики
type StatsQuery struct {
	By string `form:"by" validate:"required"`
}

type UpdateHazardStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active reported in_progress fixed false_positive"`
}

type HazardFeedbackRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=confirm deny severity_correction fixed"`
	Severity string `json:"severity,omitempty" validate:"required_if=Type severity_correction,omitempty,oneof=low medium high critical"`
	Comment  string `json:"comment,omitempty" validate:"max=1000"`
}

// DedupRequest - окно прохода дедупликации; пустые границы берутся по умолчанию
type DedupRequest struct {
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

// HazardResponse DTO для ответа с информацией об опасности
// @Description DTO для ответа с информацией об опасности
type HazardResponse struct {
	*models.Hazard
	Location  GeoPoint `json:"location"`
	RiskScore float64  `json:"risk_score"`
}

// LocationCheckRequest DTO для проверки координат
// @Description DTO для проверки координат
type LocationCheckRequest struct {
	UserID       string   `json:"user_id" validate:"required"`
	Latitude     *float64 `json:"latitude" validate:"required,latitude"`
	Longitude    *float64 `json:"longitude" validate:"required,longitude"`
	RadiusMeters float64  `json:"radius_meters,omitempty" validate:"gte=0,lte=50000"`
}

type LocationReportResponse struct {
	Hazards     []*HazardResponse `json:"hazards"`
	IsDangerous bool              `json:"is_dangerous"`
	CheckedAt   time.Time         `json:"checked_at"`
}

// CreateAlertRequest DTO для создания уведомления
// @Description DTO для создания уведомления
type CreateAlertRequest struct {
	UserID       string             `json:"user_id" validate:"required"`
	Type         string             `json:"type" validate:"required,oneof=hazard route system"`
	Priority     string             `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Title        string             `json:"title" validate:"required,max=200"`
	Message      string             `json:"message,omitempty" validate:"max=2000"`
	Voice        models.VoiceConfig `json:"voice"`
	Latitude     *float64           `json:"latitude" validate:"required,latitude"`
	Longitude    *float64           `json:"longitude" validate:"required,longitude"`
	RadiusMeters float64            `json:"radius_meters,omitempty" validate:"gte=0"`
	HazardID     *uuid.UUID         `json:"hazard_id,omitempty"`
	ScheduledFor *time.Time         `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
}

type AlertListQuery struct {
	UserID   string `form:"user_id"`
	Type     string `form:"type" validate:"omitempty,oneof=hazard route system"`
	Priority string `form:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Status   string `form:"status" validate:"omitempty,oneof=pending sent delivered failed dismissed cancelled"`
	Relevant bool   `form:"relevant"`
	Page     int    `form:"page" validate:"gte=0"`
	PageSize int    `form:"pageSize" validate:"gte=0,lte=100"`
}

type AcknowledgeAlertRequest struct {
	Action string `json:"action,omitempty" validate:"omitempty,oneof=none route_changed speed_reduced hazard_reported help_requested"`
}

// AlertResponse - уведомление и его актуальность на момент ответа
type AlertResponse struct {
	*models.Alert
	Relevant bool `json:"relevant"`
}

// TicketLocationRequest - адрес и координаты заявки
type TicketLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Address   string   `json:"address,omitempty"`
	Landmark  string   `json:"landmark,omitempty"`
	Pincode   string   `json:"pincode,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
}

type EvidenceRequest struct {
	Images []string `json:"images,omitempty" validate:"dive,url"`
	Videos []string `json:"videos,omitempty" validate:"dive,url"`
}

// CreateTicketRequest DTO для заявки на ремонт
// @Description DTO для заявки на ремонт
type CreateTicketRequest struct {
	HazardID    *uuid.UUID            `json:"hazard_id,omitempty"`
	Location    TicketLocationRequest `json:"location"`
	IssueType   string                `json:"issue_type" validate:"required,oneof=pothole debris speed_breaker stalled_vehicle construction flooding other"`
	Severity    string                `json:"severity" validate:"required,oneof=low medium high critical"`
	Description string                `json:"description,omitempty" validate:"max=2000"`
	Evidence    EvidenceRequest       `json:"evidence"`
	Cost        models.Cost           `json:"cost"`
	SubmittedBy string                `json:"submitted_by,omitempty"`
}

type TicketListQuery struct {
	Status    string `form:"status" validate:"omitempty,oneof=submitted acknowledged assigned in_progress completed rejected duplicate"`
	Severity  string `form:"severity" validate:"omitempty,oneof=low medium high critical"`
	Priority  string `form:"priority" validate:"omitempty,oneof=medium high urgent"`
	IssueType string `form:"issue_type" validate:"omitempty,oneof=pothole debris speed_breaker stalled_vehicle construction flooding other"`
	HazardID  string `form:"hazard_id" validate:"omitempty,uuid"`
	Page      int    `form:"page" validate:"gte=0"`
	PageSize  int    `form:"pageSize" validate:"gte=0,lte=100"`
}

type UpdateTicketStatusRequest struct {
	Status    string `json:"status" validate:"required,oneof=submitted acknowledged assigned in_progress completed rejected duplicate"`
	UpdatedBy string `json:"updated_by,omitempty"`
	Comment   string `json:"comment,omitempty" validate:"max=1000"`
}

type AssignTicketRequest struct {
	Department   string `json:"department,omitempty" validate:"required_without=Contractor"`
	Contractor   string `json:"contractor,omitempty" validate:"required_without=Department"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	ContactEmail string `json:"contact_email,omitempty" validate:"omitempty,email"`
	AssignedBy   string `json:"assigned_by,omitempty"`
}

type TicketFeedbackRequest struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment,omitempty" validate:"max=1000"`
}

// TicketResponse - заявка с вычисленным состоянием SLA
type TicketResponse struct {
	*models.Ticket
	SLAState           models.SLAState `json:"sla_state"`
	ResponseDeadline   *time.Time      `json:"response_deadline,omitempty"`
	ResolutionDeadline *time.Time      `json:"resolution_deadline,omitempty"`
}

type OverdueTicketResponse struct {
	Ticket   *TicketResponse `json:"ticket"`
	SLAState models.SLAState `json:"sla_state"`
}
