package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"
)

// Ticket - заявка на ремонт, созданная по опасности
type Ticket struct {
	ID              uuid.UUID       `json:"id"`
	TicketID        string          `json:"ticket_id"`
	HazardID        *uuid.UUID      `json:"hazard_id,omitempty"`
	Location        TicketLocation  `json:"location"`
	IssueType       HazardType      `json:"issue_type"`
	Severity        Severity        `json:"severity"`
	Description     string          `json:"description"`
	Evidence        Evidence        `json:"evidence"`
	Status          TicketStatus    `json:"status"`
	Assignment      *Assignment     `json:"assignment,omitempty"`
	Timeline        []TimelineEntry `json:"timeline"`
	ExternalSystems []ExternalSync  `json:"external_systems"`
	Priority        TicketPriority  `json:"priority"`
	SLA             *SLA            `json:"sla,omitempty"`
	Feedback        *TicketFeedback `json:"feedback,omitempty"`
	Cost            Cost            `json:"cost"`
	SubmittedBy     string          `json:"submitted_by,omitempty"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
}

type TicketLocation struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Address   string  `json:"address,omitempty"`
	Landmark  string  `json:"landmark,omitempty"`
	Pincode   string  `json:"pincode,omitempty"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
}

type EvidenceMedia struct {
	URL              string    `json:"url"`
	PrivacyProcessed bool      `json:"privacy_processed"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

type SensorSnapshot struct {
	Kind       string    `json:"kind"`
	ObjectKey  string    `json:"object_key"`
	CapturedAt time.Time `json:"captured_at"`
}

type Evidence struct {
	Images          []EvidenceMedia  `json:"images"`
	Videos          []EvidenceMedia  `json:"videos"`
	SensorSnapshots []SensorSnapshot `json:"sensor_snapshots"`
}

type Assignment struct {
	Department   string    `json:"department,omitempty"`
	Contractor   string    `json:"contractor,omitempty"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	AssignedAt   time.Time `json:"assigned_at"`
}

type TimelineEntry struct {
	Status    TicketStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	UpdatedBy string       `json:"updated_by"`
	Comment   string       `json:"comment,omitempty"`
}

type ExternalSync struct {
	System     string    `json:"system"`
	ExternalID string    `json:"external_id,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	SyncedAt   time.Time `json:"synced_at"`
}

type TicketFeedback struct {
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Cost struct {
	Estimated *float64 `json:"estimated,omitempty"`
	Actual    *float64 `json:"actual,omitempty"`
	Currency  string   `json:"currency,omitempty"`
}

type TicketParams struct {
	HazardID    *uuid.UUID
	Location    TicketLocation
	IssueType   HazardType
	Severity    Severity
	Description string
	Evidence    Evidence
	Cost        Cost
	SubmittedBy string
}

// GenerateTicketID возвращает идентификатор вида RH-20260101-XXXXXXX
func GenerateTicketID(now time.Time) string {
	return fmt.Sprintf("RH-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(cuid.Slug()))
}

// NewTicket создает заявку в статусе submitted. Сроки SLA и приоритет
// фиксируются здесь и больше не пересчитываются.
func NewTicket(p TicketParams, policy SLAPolicy, now time.Time) (*Ticket, error) {
	if !p.IssueType.Valid() {
		return nil, invalid("issue_type", "unknown hazard type "+string(p.IssueType))
	}
	if !p.Severity.Valid() {
		return nil, invalid("severity", "unknown severity "+string(p.Severity))
	}
	if err := ValidateCoordinates(p.Location.Longitude, p.Location.Latitude); err != nil {
		return nil, err
	}
	by := p.SubmittedBy
	if by == "" {
		by = "system"
	}
	now = now.UTC()
	hours := policy.For(p.Severity)
	evidence := p.Evidence
	if evidence.Images == nil {
		evidence.Images = []EvidenceMedia{}
	}
	if evidence.Videos == nil {
		evidence.Videos = []EvidenceMedia{}
	}
	if evidence.SensorSnapshots == nil {
		evidence.SensorSnapshots = []SensorSnapshot{}
	}
	return &Ticket{
		ID:          uuid.New(),
		TicketID:    GenerateTicketID(now),
		HazardID:    p.HazardID,
		Location:    p.Location,
		IssueType:   p.IssueType,
		Severity:    p.Severity,
		Description: p.Description,
		Evidence:    evidence,
		Status:      TicketSubmitted,
		Timeline: []TimelineEntry{{
			Status:    TicketSubmitted,
			Timestamp: now,
			UpdatedBy: by,
			Comment:   "ticket submitted",
		}},
		ExternalSystems: []ExternalSync{},
		Priority:        TicketPriorityFor(p.Severity),
		SLA:             &SLA{ResponseHours: hours.ResponseHours, ResolutionHours: hours.ResolutionHours},
		Cost:            p.Cost,
		SubmittedBy:     by,
		SubmittedAt:     now,
		UpdatedAt:       now,
		Version:         1,
	}, nil
}

// NewHazardTicket - заявка, автоматически созданная по критической опасности
func NewHazardTicket(h *Hazard, policy SLAPolicy, now time.Time) (*Ticket, error) {
	id := h.ID
	evidence := Evidence{}
	if h.Detection.Camera != nil && h.Detection.Camera.ImageURL != "" {
		evidence.Images = []EvidenceMedia{{
			URL:              h.Detection.Camera.ImageURL,
			PrivacyProcessed: h.Detection.Camera.PrivacyProcessed,
			UploadedAt:       h.DetectedAt,
		}}
	}
	return NewTicket(TicketParams{
		HazardID: &id,
		Location: TicketLocation{
			Longitude: h.Longitude,
			Latitude:  h.Latitude,
			Address:   h.Address,
			City:      h.City,
			State:     h.State,
		},
		IssueType:   h.Type,
		Severity:    h.Severity,
		Description: fmt.Sprintf("Automatically reported %s %s (confidence %.2f)", h.Severity, strings.ReplaceAll(string(h.Type), "_", " "), h.Confidence),
		Evidence:    evidence,
		SubmittedBy: "system",
	}, policy, now)
}

var ticketTransitions = map[TicketStatus]TicketStatus{
	TicketSubmitted:    TicketAcknowledged,
	TicketAcknowledged: TicketAssigned,
	TicketAssigned:     TicketInProgress,
	TicketInProgress:   TicketCompleted,
}

// Transition переводит заявку в следующий статус и добавляет ровно одну
// запись в timeline. rejected и duplicate допустимы из любого нетерминального.
func (t *Ticket) Transition(to TicketStatus, by, comment string, now time.Time) error {
	if !to.Valid() {
		return invalid("status", "unknown ticket status "+string(to))
	}
	if t.Status.Terminal() {
		return &TransitionError{Entity: "ticket", From: string(t.Status), To: string(to)}
	}
	if to != TicketRejected && to != TicketDuplicate && ticketTransitions[t.Status] != to {
		return &TransitionError{Entity: "ticket", From: string(t.Status), To: string(to)}
	}
	if to == TicketAssigned && t.Assignment == nil {
		return invalid("assignment", "assign the ticket to a department or contractor")
	}
	t.apply(to, by, comment, now)
	return nil
}

// Assign всегда переводит заявку в assigned
func (t *Ticket) Assign(a Assignment, by string, now time.Time) error {
	if t.Status.Terminal() {
		return &TransitionError{Entity: "ticket", From: string(t.Status), To: string(TicketAssigned)}
	}
	if strings.TrimSpace(a.Department) == "" && strings.TrimSpace(a.Contractor) == "" {
		return invalid("assignment", "department or contractor is required")
	}
	a.AssignedAt = now.UTC()
	t.Assignment = &a
	t.apply(TicketAssigned, by, "assigned to "+a.assignee(), now)
	return nil
}

func (a Assignment) assignee() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Department, a.Contractor, a.ContactName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}

func (t *Ticket) apply(to TicketStatus, by, comment string, now time.Time) {
	now = now.UTC()
	if by == "" {
		by = "system"
	}
	if t.SLA != nil {
		elapsed := now.Sub(t.SubmittedAt).Hours()
		if t.Status == TicketSubmitted && t.SLA.ActualResponseHours == nil {
			t.SLA.ActualResponseHours = &elapsed
		}
		if to == TicketCompleted {
			t.SLA.ActualResolutionHours = &elapsed
		}
	}
	t.Status = to
	t.Timeline = append(t.Timeline, TimelineEntry{
		Status:    to,
		Timestamp: now,
		UpdatedBy: by,
		Comment:   comment,
	})
	t.UpdatedAt = now
}

// SLAState - состояние SLA на момент now
func (t *Ticket) SLAState(now time.Time) SLAState {
	return EvaluateSLA(t.SLA, t.Status, t.SubmittedAt, now)
}

// RecordSync добавляет или обновляет запись синхронизации с внешней системой
func (t *Ticket) RecordSync(s ExternalSync) {
	for i := range t.ExternalSystems {
		if t.ExternalSystems[i].System == s.System {
			t.ExternalSystems[i] = s
			return
		}
	}
	t.ExternalSystems = append(t.ExternalSystems, s)
}

// SetFeedback принимает оценку только по выполненной заявке
func (t *Ticket) SetFeedback(rating int, comment string, now time.Time) error {
	if rating < 1 || rating > 5 {
		return invalid("rating", "must be between 1 and 5")
	}
	if t.Status != TicketCompleted {
		return &TransitionError{Entity: "ticket", From: string(t.Status), To: "feedback"}
	}
	t.Feedback = &TicketFeedback{Rating: rating, Comment: comment, SubmittedAt: now.UTC()}
	t.UpdatedAt = now.UTC()
	return nil
}

type TicketFilter struct {
	Status    TicketStatus
	Severity  Severity
	Priority  TicketPriority
	IssueType HazardType
	HazardID  *uuid.UUID
	Page      int
	PageSize  int
}

// OverdueTicket - заявка с нарушенным SLA
type OverdueTicket struct {
	Ticket *Ticket  `json:"ticket"`
	State  SLAState `json:"sla_state"`
}
