package models

import "time"

// SLAHours - сроки реакции и устранения в часах
type SLAHours struct {
	ResponseHours   int `json:"response_hours" yaml:"response_hours"`
	ResolutionHours int `json:"resolution_hours" yaml:"resolution_hours"`
}

// SLAPolicy - таблица сроков по степени опасности
type SLAPolicy struct {
	Critical SLAHours `yaml:"critical"`
	High     SLAHours `yaml:"high"`
	Default  SLAHours `yaml:"default"`
}

func DefaultSLAPolicy() SLAPolicy {
	return SLAPolicy{
		Critical: SLAHours{ResponseHours: 2, ResolutionHours: 24},
		High:     SLAHours{ResponseHours: 4, ResolutionHours: 48},
		Default:  SLAHours{ResponseHours: 8, ResolutionHours: 72},
	}
}

func (p SLAPolicy) For(s Severity) SLAHours {
	switch s {
	case SeverityCritical:
		return p.Critical
	case SeverityHigh:
		return p.High
	}
	return p.Default
}

type SLA struct {
	ResponseHours         int      `json:"response_hours"`
	ResolutionHours       int      `json:"resolution_hours"`
	ActualResponseHours   *float64 `json:"actual_response_hours,omitempty"`
	ActualResolutionHours *float64 `json:"actual_resolution_hours,omitempty"`
}

type SLAState string

const (
	SLANotSet            SLAState = "not_set"
	SLAOnTrack           SLAState = "on_track"
	SLAOverdueResponse   SLAState = "overdue_response"
	SLAOverdueResolution SLAState = "overdue_resolution"
)

// EvaluateSLA - чистая функция от (sla, status, submittedAt, now)
func EvaluateSLA(sla *SLA, status TicketStatus, submittedAt, now time.Time) SLAState {
	if sla == nil {
		return SLANotSet
	}
	switch status {
	case TicketSubmitted:
		if now.After(submittedAt.Add(time.Duration(sla.ResponseHours) * time.Hour)) {
			return SLAOverdueResponse
		}
	case TicketAcknowledged, TicketAssigned, TicketInProgress:
		if now.After(submittedAt.Add(time.Duration(sla.ResolutionHours) * time.Hour)) {
			return SLAOverdueResolution
		}
	}
	return SLAOnTrack
}

// ResponseDeadline возвращает крайний срок реакции
func (s *SLA) ResponseDeadline(submittedAt time.Time) time.Time {
	return submittedAt.Add(time.Duration(s.ResponseHours) * time.Hour)
}

func (s *SLA) ResolutionDeadline(submittedAt time.Time) time.Time {
	return submittedAt.Add(time.Duration(s.ResolutionHours) * time.Hour)
}
