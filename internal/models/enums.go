package models

// HazardType - тип дорожной опасности
type HazardType string

const (
	HazardPothole        HazardType = "pothole"
	HazardDebris         HazardType = "debris"
	HazardSpeedBreaker   HazardType = "speed_breaker"
	HazardStalledVehicle HazardType = "stalled_vehicle"
	HazardConstruction   HazardType = "construction"
	HazardFlooding       HazardType = "flooding"
	HazardOther          HazardType = "other"
)

func (t HazardType) Valid() bool {
	switch t {
	case HazardPothole, HazardDebris, HazardSpeedBreaker, HazardStalledVehicle,
		HazardConstruction, HazardFlooding, HazardOther:
		return true
	}
	return false
}

// Severity - степень опасности. Порядок: low < medium < high < critical
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank возвращает порядковый номер уровня, 0 для неизвестного значения
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

// MaxSeverity возвращает более высокий из двух уровней
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type HazardStatus string

const (
	HazardActive        HazardStatus = "active"
	HazardReported      HazardStatus = "reported"
	HazardInProgress    HazardStatus = "in_progress"
	HazardFixed         HazardStatus = "fixed"
	HazardFalsePositive HazardStatus = "false_positive"
)

func (s HazardStatus) Valid() bool {
	switch s {
	case HazardActive, HazardReported, HazardInProgress, HazardFixed, HazardFalsePositive:
		return true
	}
	return false
}

func (s HazardStatus) Terminal() bool {
	return s == HazardFixed || s == HazardFalsePositive
}

type AlertType string

const (
	AlertHazard AlertType = "hazard"
	AlertRoute  AlertType = "route"
	AlertSystem AlertType = "system"
)

func (t AlertType) Valid() bool {
	return t == AlertHazard || t == AlertRoute || t == AlertSystem
}

type AlertPriority string

const (
	PriorityLow    AlertPriority = "low"
	PriorityMedium AlertPriority = "medium"
	PriorityHigh   AlertPriority = "high"
	PriorityUrgent AlertPriority = "urgent"
)

func (p AlertPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// AlertPriorityFor: critical -> urgent, остальные уровни переносятся как есть
func AlertPriorityFor(s Severity) AlertPriority {
	switch s {
	case SeverityCritical:
		return PriorityUrgent
	case SeverityHigh:
		return PriorityHigh
	case SeverityMedium:
		return PriorityMedium
	}
	return PriorityLow
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryDismissed DeliveryStatus = "dismissed"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

type AlertAction string

const (
	ActionNone           AlertAction = "none"
	ActionRouteChanged   AlertAction = "route_changed"
	ActionSpeedReduced   AlertAction = "speed_reduced"
	ActionHazardReported AlertAction = "hazard_reported"
	ActionHelpRequested  AlertAction = "help_requested"
)

func (a AlertAction) Valid() bool {
	switch a {
	case ActionNone, ActionRouteChanged, ActionSpeedReduced, ActionHazardReported, ActionHelpRequested:
		return true
	}
	return false
}

type TicketStatus string

const (
	TicketSubmitted    TicketStatus = "submitted"
	TicketAcknowledged TicketStatus = "acknowledged"
	TicketAssigned     TicketStatus = "assigned"
	TicketInProgress   TicketStatus = "in_progress"
	TicketCompleted    TicketStatus = "completed"
	TicketRejected     TicketStatus = "rejected"
	TicketDuplicate    TicketStatus = "duplicate"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketSubmitted, TicketAcknowledged, TicketAssigned, TicketInProgress,
		TicketCompleted, TicketRejected, TicketDuplicate:
		return true
	}
	return false
}

func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketRejected || s == TicketDuplicate
}

type TicketPriority string

const (
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// TicketPriorityFor: critical -> urgent, high -> high, иначе medium
func TicketPriorityFor(s Severity) TicketPriority {
	switch s {
	case SeverityCritical:
		return TicketPriorityUrgent
	case SeverityHigh:
		return TicketPriorityHigh
	}
	return TicketPriorityMedium
}
