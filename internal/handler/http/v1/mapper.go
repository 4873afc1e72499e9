package v1

import (
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/risk"
)

// DTOToObservation преобразует запрос регистрации в наблюдение
func DTOToObservation(dto CreateHazardRequest) models.Observation {
	obs := models.Observation{
		Type:       models.HazardType(dto.Type),
		Severity:   models.Severity(dto.Severity),
		Confidence: *dto.Confidence,
		Longitude:  *dto.Longitude,
		Latitude:   *dto.Latitude,
		Address:    dto.Address,
		City:       dto.City,
		State:      dto.State,
		Country:    dto.Country,
		Detection:  dto.Detection,
		Vehicle:    dto.Vehicle,
		ReportedBy: dto.ReportedBy,
		Metadata:   models.Metadata(dto.Metadata),
	}
	if dto.DetectedAt != nil {
		obs.DetectedAt = *dto.DetectedAt
	}
	return obs
}

// ModelToHazardResponse преобразует доменную модель в DTO для ответа
func ModelToHazardResponse(model *models.Hazard) *HazardResponse {
	return &HazardResponse{
		Hazard:    model,
		Location:  GeoPoint{Type: "Point", Coordinates: [2]float64{model.Longitude, model.Latitude}},
		RiskScore: risk.Score(model),
	}
}

func ModelsToHazardResponses(hazards []*models.Hazard) []*HazardResponse {
	responses := make([]*HazardResponse, len(hazards))
	for i, model := range hazards {
		responses[i] = ModelToHazardResponse(model)
	}
	return responses
}

func DTOToLocationCheck(dto LocationCheckRequest) models.LocationCheck {
	return models.LocationCheck{
		UserID:       dto.UserID,
		Latitude:     *dto.Latitude,
		Longitude:    *dto.Longitude,
		RadiusMeters: dto.RadiusMeters,
	}
}

func ModelToLocationReportResponse(report *models.LocationReport) *LocationReportResponse {
	return &LocationReportResponse{
		Hazards:     ModelsToHazardResponses(report.Hazards),
		IsDangerous: report.IsDangerous,
		CheckedAt:   report.CheckedAt,
	}
}

func DTOToAlertParams(dto CreateAlertRequest) models.AlertParams {
	return models.AlertParams{
		UserID:       dto.UserID,
		Type:         models.AlertType(dto.Type),
		Priority:     models.AlertPriority(dto.Priority),
		Title:        dto.Title,
		Message:      dto.Message,
		Voice:        dto.Voice,
		Longitude:    *dto.Longitude,
		Latitude:     *dto.Latitude,
		RadiusMeters: dto.RadiusMeters,
		HazardID:     dto.HazardID,
		ScheduledFor: dto.ScheduledFor,
		ExpiresAt:    dto.ExpiresAt,
		Metadata:     models.Metadata(dto.Metadata),
	}
}

func ModelToAlertResponse(model *models.Alert, now time.Time) *AlertResponse {
	return &AlertResponse{Alert: model, Relevant: model.IsRelevant(now)}
}

func ModelsToAlertResponses(alerts []*models.Alert, now time.Time) []*AlertResponse {
	responses := make([]*AlertResponse, len(alerts))
	for i, model := range alerts {
		responses[i] = ModelToAlertResponse(model, now)
	}
	return responses
}

func urlsToMedia(urls []string) []models.EvidenceMedia {
	media := make([]models.EvidenceMedia, len(urls))
	for i, u := range urls {
		media[i] = models.EvidenceMedia{URL: u}
	}
	return media
}

func DTOToTicketParams(dto CreateTicketRequest) models.TicketParams {
	return models.TicketParams{
		HazardID: dto.HazardID,
		Location: models.TicketLocation{
			Longitude: *dto.Location.Longitude,
			Latitude:  *dto.Location.Latitude,
			Address:   dto.Location.Address,
			Landmark:  dto.Location.Landmark,
			Pincode:   dto.Location.Pincode,
			City:      dto.Location.City,
			State:     dto.Location.State,
		},
		IssueType:   models.HazardType(dto.IssueType),
		Severity:    models.Severity(dto.Severity),
		Description: dto.Description,
		Evidence: models.Evidence{
			Images: urlsToMedia(dto.Evidence.Images),
			Videos: urlsToMedia(dto.Evidence.Videos),
		},
		Cost:        dto.Cost,
		SubmittedBy: dto.SubmittedBy,
	}
}

func DTOToTicketFilter(q TicketListQuery) models.TicketFilter {
	filter := models.TicketFilter{
		Status:    models.TicketStatus(q.Status),
		Severity:  models.Severity(q.Severity),
		Priority:  models.TicketPriority(q.Priority),
		IssueType: models.HazardType(q.IssueType),
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	if id, err := uuid.Parse(q.HazardID); err == nil {
		filter.HazardID = &id
	}
	return filter
}

func DTOToAssignment(dto AssignTicketRequest) models.Assignment {
	return models.Assignment{
		Department:   dto.Department,
		Contractor:   dto.Contractor,
		ContactName:  dto.ContactName,
		ContactPhone: dto.ContactPhone,
		ContactEmail: dto.ContactEmail,
	}
}

// ModelToTicketResponse добавляет к заявке состояние SLA и крайние сроки на момент now
func ModelToTicketResponse(model *models.Ticket, now time.Time) *TicketResponse {
	resp := &TicketResponse{Ticket: model, SLAState: model.SLAState(now)}
	if model.SLA != nil {
		response := model.SLA.ResponseDeadline(model.SubmittedAt)
		resolution := model.SLA.ResolutionDeadline(model.SubmittedAt)
		resp.ResponseDeadline = &response
		resp.ResolutionDeadline = &resolution
	}
	return resp
}

func ModelsToTicketResponses(tickets []*models.Ticket, now time.Time) []*TicketResponse {
	responses := make([]*TicketResponse, len(tickets))
	for i, model := range tickets {
		responses[i] = ModelToTicketResponse(model, now)
	}
	return responses
}
