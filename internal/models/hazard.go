package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/fingerprint"
)

// Hazard - обнаруженная дорожная опасность
type Hazard struct {
	ID          uuid.UUID        `json:"id"`
	Longitude   float64          `json:"longitude"`
	Latitude    float64          `json:"latitude"`
	Address     string           `json:"address,omitempty"`
	City        string           `json:"city,omitempty"`
	State       string           `json:"state,omitempty"`
	Country     string           `json:"country,omitempty"`
	Type        HazardType       `json:"type"`
	Severity    Severity         `json:"severity"`
	Confidence  float64          `json:"confidence"`
	Detection   DetectionPayload `json:"detection"`
	Vehicle     *VehicleContext  `json:"vehicle,omitempty"`
	Status      HazardStatus     `json:"status"`
	Feedback    Feedback         `json:"feedback"`
	Fingerprint string           `json:"fingerprint"`
	Metadata    Metadata         `json:"metadata,omitempty"`
	Merge       *MergeInfo       `json:"merge,omitempty"`
	MergedInto  *uuid.UUID       `json:"merged_into,omitempty"`
	ReportedBy  string           `json:"reported_by,omitempty"`
	TicketIDs   []uuid.UUID      `json:"ticket_ids"`
	DetectedAt  time.Time        `json:"detected_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type DetectionPayload struct {
	Camera        *CameraDetection      `json:"camera,omitempty"`
	Accelerometer *AccelerometerReading `json:"accelerometer,omitempty"`
	Audio         *AudioReading         `json:"audio,omitempty"`
	Fusion        *FusionResult         `json:"fusion,omitempty"`
}

type CameraDetection struct {
	ImageURL         string    `json:"image_url"`
	PrivacyProcessed bool      `json:"privacy_processed"`
	BoundingBox      []float64 `json:"bounding_box,omitempty"`
	ModelVersion     string    `json:"model_version,omitempty"`
	Confidence       float64   `json:"confidence"`
}

type AccelerometerReading struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Magnitude float64 `json:"magnitude"`
}

type AudioReading struct {
	DecibelLevel float64 `json:"decibel_level"`
	Frequency    float64 `json:"frequency"`
	DurationMs   int     `json:"duration_ms"`
}

type FusionResult struct {
	Method     string   `json:"method"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources,omitempty"`
}

type VehicleContext struct {
	Speed       float64   `json:"speed"`
	VehicleType string    `json:"vehicle_type,omitempty"`
	Heading     float64   `json:"heading"`
	Timestamp   time.Time `json:"timestamp"`
}

// FeedbackType - вид отзыва пользователя об опасности
type FeedbackType string

const (
	FeedbackConfirm            FeedbackType = "confirm"
	FeedbackDeny               FeedbackType = "deny"
	FeedbackSeverityCorrection FeedbackType = "severity_correction"
	FeedbackFixed              FeedbackType = "fixed"
)

type FeedbackReport struct {
	UserID    string       `json:"user_id"`
	Type      FeedbackType `json:"type"`
	Severity  Severity     `json:"severity,omitempty"`
	Comment   string       `json:"comment,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type Feedback struct {
	Reports   []FeedbackReport `json:"reports"`
	Upvotes   int              `json:"upvotes"`
	Downvotes int              `json:"downvotes"`
}

// MergeInfo - журнал поглощенных при слиянии записей
type MergeInfo struct {
	MergedFrom []uuid.UUID `json:"merged_from"`
	MergeCount int         `json:"merge_count"`
	MergedAt   time.Time   `json:"merged_at"`
}

// Observation - входящее наблюдение от клиента или классификатора
type Observation struct {
	Type       HazardType
	Severity   Severity
	Confidence float64
	Longitude  float64
	Latitude   float64
	Address    string
	City       string
	State      string
	Country    string
	Detection  DetectionPayload
	Vehicle    *VehicleContext
	DetectedAt time.Time
	ReportedBy string
	Metadata   Metadata
}

// Validate проверяет наблюдение до любых изменений состояния
func (o Observation) Validate() error {
	if !o.Type.Valid() {
		return invalid("type", "unknown hazard type "+string(o.Type))
	}
	if o.Severity != "" && !o.Severity.Valid() {
		return invalid("severity", "unknown severity "+string(o.Severity))
	}
	if math.IsNaN(o.Confidence) || o.Confidence < 0 || o.Confidence > 1 {
		return invalid("confidence", "must be within [0,1]")
	}
	if err := ValidateCoordinates(o.Longitude, o.Latitude); err != nil {
		return err
	}
	return o.Metadata.Validate()
}

func ValidateCoordinates(longitude, latitude float64) error {
	if math.IsNaN(longitude) || longitude < -180 || longitude > 180 {
		return invalid("longitude", "must be within [-180,180]")
	}
	if math.IsNaN(latitude) || latitude < -90 || latitude > 90 {
		return invalid("latitude", "must be within [-90,90]")
	}
	return nil
}

// NewHazard строит опасность из наблюдения, вычисляя производные поля
// (отпечаток, статус, метки времени) до сохранения.
// Severity должна быть определена вызывающим кодом.
func NewHazard(obs Observation, now time.Time) (*Hazard, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	if !obs.Severity.Valid() {
		return nil, invalid("severity", "is required")
	}
	detectedAt := obs.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = now
	}
	h := &Hazard{
		ID:         uuid.New(),
		Longitude:  obs.Longitude,
		Latitude:   obs.Latitude,
		Address:    obs.Address,
		City:       obs.City,
		State:      obs.State,
		Country:    obs.Country,
		Type:       obs.Type,
		Severity:   obs.Severity,
		Confidence: obs.Confidence,
		Detection:  obs.Detection,
		Vehicle:    obs.Vehicle,
		Status:     HazardActive,
		Feedback:   Feedback{Reports: []FeedbackReport{}},
		Metadata:   obs.Metadata,
		ReportedBy: obs.ReportedBy,
		TicketIDs:  []uuid.UUID{},
		DetectedAt: detectedAt.UTC(),
		UpdatedAt:  now.UTC(),
	}
	h.Fingerprint = fingerprint.Generate(string(h.Type), h.Longitude, h.Latitude, h.DetectedAt)
	return h, nil
}

// SetStatus меняет статус. fixed и false_positive - терминальные.
func (h *Hazard) SetStatus(status HazardStatus, now time.Time) error {
	if !status.Valid() {
		return invalid("status", "unknown hazard status "+string(status))
	}
	if h.Status.Terminal() && status != h.Status {
		return &TransitionError{Entity: "hazard", From: string(h.Status), To: string(status)}
	}
	h.Status = status
	h.UpdatedAt = now.UTC()
	return nil
}

// ApplyFeedback добавляет отзыв и корректирует счетчики голосов
func (h *Hazard) ApplyFeedback(report FeedbackReport, now time.Time) error {
	switch report.Type {
	case FeedbackConfirm:
		h.Feedback.Upvotes++
	case FeedbackDeny:
		h.Feedback.Downvotes++
	case FeedbackSeverityCorrection:
		if !report.Severity.Valid() {
			return invalid("severity", "severity correction requires a valid severity")
		}
		h.Severity = report.Severity
	case FeedbackFixed:
	default:
		return invalid("type", "unknown feedback type "+string(report.Type))
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now.UTC()
	}
	h.Feedback.Reports = append(h.Feedback.Reports, report)
	h.UpdatedAt = now.UTC()
	return nil
}

// NetVotes - upvotes минус downvotes
func (h *Hazard) NetVotes() int {
	return h.Feedback.Upvotes - h.Feedback.Downvotes
}

// HazardFilter - фильтр списка опасностей
type HazardFilter struct {
	Type     HazardType
	Severity Severity
	Status   HazardStatus
	Page     int
	PageSize int
}

// NearbyQuery - поиск ближайших N опасностей в радиусе
type NearbyQuery struct {
	Longitude    float64
	Latitude     float64
	RadiusMeters float64
	Limit        int
	Type         HazardType
}

type BoundingBox struct {
	MinLongitude float64
	MinLatitude  float64
	MaxLongitude float64
	MaxLatitude  float64
}

func (b BoundingBox) Validate() error {
	if err := ValidateCoordinates(b.MinLongitude, b.MinLatitude); err != nil {
		return err
	}
	if err := ValidateCoordinates(b.MaxLongitude, b.MaxLatitude); err != nil {
		return err
	}
	if b.MinLongitude > b.MaxLongitude || b.MinLatitude > b.MaxLatitude {
		return invalid("bbox", "min corner must not exceed max corner")
	}
	return nil
}

// HeatCell - ячейка тепловой карты
type HeatCell struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"`
}

// MergeSummary описывает одно слияние в проходе дедупликации
type MergeSummary struct {
	SurvivorID uuid.UUID   `json:"survivor_id"`
	Absorbed   []uuid.UUID `json:"absorbed"`
}

type DedupReport struct {
	Scanned int            `json:"scanned"`
	Groups  int            `json:"groups"`
	Merges  []MergeSummary `json:"merges"`
	Failed  int            `json:"failed"`
}
