package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/road_hazard_engine/internal/models"
)

// @Summary Report a hazard
// @Description Register a detected road hazard. A duplicate fingerprint returns 409 with the existing hazard ID. Requires API key.
// @Tags Hazards
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param hazard body CreateHazardRequest true "Hazard observation"
// @Success 201 {object} HazardResponse
// @Failure 400 {object} ErrorResponse "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} ErrorResponse "Hazard already reported"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards [post]
func (h *Handler) createHazard(c *gin.Context) {
	var input CreateHazardRequest
	log := h.logger.WithField("method", "createHazard")
	if !h.bindJSON(c, log, &input) {
		return
	}

	hazard, err := h.hazardService.CreateHazard(c.Request.Context(), DTOToObservation(input))
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToHazardResponse(hazard))
}

// @Summary Get a list of hazards
// @Description Get a paginated list of hazards, newest first. Merged hazards are excluded. Requires API key.
// @Tags Hazards
// @Produce json
// @Security ApiKeyAuth
// @Param type query string false "Hazard type"
// @Param severity query string false "Severity"
// @Param status query string false "Status"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} HazardResponse
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards [get]
func (h *Handler) listHazards(c *gin.Context) {
	var q HazardListQuery
	log := h.logger.WithField("method", "listHazards")
	if !h.bindQuery(c, log, &q) {
		return
	}

	hazards, err := h.hazardService.ListHazards(c.Request.Context(), models.HazardFilter{
		Type:     models.HazardType(q.Type),
		Severity: models.Severity(q.Severity),
		Status:   models.HazardStatus(q.Status),
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToHazardResponses(hazards))
}

// @Summary Find nearby hazards
// @Description Open hazards within radius meters of a point, nearest first. Requires API key.
// @Tags Hazards
// @Produce json
// @Security ApiKeyAuth
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Param radius query number false "Radius in meters" default(1000)
// @Param limit query int false "Maximum results" default(20)
// @Param type query string false "Hazard type"
// @Success 200 {array} HazardResponse
// @Failure 400 {object} ErrorResponse "Invalid query"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards/nearby [get]
func (h *Handler) nearbyHazards(c *gin.Context) {
	var q NearbyQuery
	log := h.logger.WithField("method", "nearbyHazards")
	if !h.bindQuery(c, log, &q) {
		return
	}

	hazards, err := h.hazardService.NearbyHazards(c.Request.Context(), models.NearbyQuery{
		Longitude:    *q.Longitude,
		Latitude:     *q.Latitude,
		RadiusMeters: q.Radius,
		Limit:        q.Limit,
		Type:         models.HazardType(q.Type),
	})
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToHazardResponses(hazards))
}

// @Summary Hazard heatmap
// @Description Hazards in a bounding box aggregated into a grid of cell degrees. Requires API key.
// @Tags Hazards
// @Produce json
// @Security ApiKeyAuth
// @Param min_lat query number true "South edge"
// @Param min_lng query number true "West edge"
// @Param max_lat query number true "North edge"
// @Param max_lng query number true "East edge"
// @Param cell query number false "Cell size in degrees" default(0.01)
// @Success 200 {array} models.HeatCell
// @Failure 400 {object} ErrorResponse "Invalid bounding box"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards/heatmap [get]
func (h *Handler) hazardHeatmap(c *gin.Context) {
	var q HeatmapQuery
	log := h.logger.WithField("method", "hazardHeatmap")
	if !h.bindQuery(c, log, &q) {
		return
	}

	cells, err := h.hazardService.Heatmap(c.Request.Context(), models.BoundingBox{
		MinLongitude: *q.MinLongitude,
		MinLatitude:  *q.MinLatitude,
		MaxLongitude: *q.MaxLongitude,
		MaxLatitude:  *q.MaxLatitude,
	}, q.Cell)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, cells)
}

// @Summary Hazard statistics
// @Description Count hazards detected within the stats window grouped by type, severity or status. Requires API key.
// @Tags Hazards
// @Produce json
// @Security ApiKeyAuth
// @Param by query string true "Dimension" Enums(type, severity, status)
// @Success 200 {object} map[string]int
// @Failure 400 {object} ErrorResponse "Unknown dimension"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards/stats [get]
func (h *Handler) hazardStats(c *gin.Context) {
	var q StatsQuery
	log := h.logger.WithField("method", "hazardStats")
	if !h.bindQuery(c, log, &q) {
		return
	}

	counts, err := h.hazardService.Stats(c.Request.Context(), q.By)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// @Summary Run a dedup pass
// @Description Merge near-duplicate hazards detected in [since, until). Defaults to the last 24 hours. Requires API key.
// @Tags Hazards
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param window body DedupRequest false "Dedup window"
// @Success 200 {object} models.DedupReport
// @Failure 400 {object} ErrorResponse "Invalid window"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards/dedup [post]
func (h *Handler) deduplicateHazards(c *gin.Context) {
	var input DedupRequest
	log := h.logger.WithField("method", "deduplicateHazards")
	if c.Request.ContentLength != 0 && !h.bindJSON(c, log, &input) {
		return
	}

	var since, until time.Time
	if input.Since != nil {
		since = *input.Since
	}
	if input.Until != nil {
		until = *input.Until
	}
	report, err := h.hazardService.Deduplicate(c.Request.Context(), since, until)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary Get hazard by ID
// @Description Get a single hazard by its ID. Merged hazards are returned with merged_into set. Requires API key.
// @Tags Hazards
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Hazard ID"
// @Success 200 {object} HazardResponse
// @Failure 400 {object} ErrorResponse "Invalid hazard ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Hazard not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards/{id} [get]
func (h *Handler) getHazard(c *gin.Context) {
	id, ok := parseID(c, "hazard")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getHazard").WithField("id", id)

	hazard, err := h.hazardService.GetHazard(c.Request.Context(), id)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToHazardResponse(hazard))
}

// @Summary Update hazard status
// @Description Change the hazard status. fixed and false_positive are final. Requires API key.
// @Tags Hazards
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Hazard ID"
// @Param status body UpdateHazardStatusRequest true "New status"
// @Success 200 {object} HazardResponse
// @Failure 400 {object} ErrorResponse "Invalid hazard ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Hazard not found"
// @Failure 422 {object} ErrorResponse "Status is final"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards/{id}/status [patch]
func (h *Handler) updateHazardStatus(c *gin.Context) {
	id, ok := parseID(c, "hazard")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateHazardStatus").WithField("id", id)

	var input UpdateHazardStatusRequest
	if !h.bindJSON(c, log, &input) {
		return
	}
	hazard, err := h.hazardService.UpdateStatus(c.Request.Context(), id, models.HazardStatus(input.Status))
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToHazardResponse(hazard))
}

// @Summary Submit hazard feedback
// @Description Confirm, deny, correct severity or report a hazard as fixed. Requires API key.
// @Tags Hazards
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Hazard ID"
// @Param feedback body HazardFeedbackRequest true "Feedback"
// @Success 200 {object} HazardResponse
// @Failure 400 {object} ErrorResponse "Invalid hazard ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Hazard not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards/{id}/feedback [post]
func (h *Handler) hazardFeedback(c *gin.Context) {
	id, ok := parseID(c, "hazard")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "hazardFeedback").WithField("id", id)

	var input HazardFeedbackRequest
	if !h.bindJSON(c, log, &input) {
		return
	}
	hazard, err := h.hazardService.SubmitFeedback(c.Request.Context(), id, models.FeedbackReport{
		UserID:   input.UserID,
		Type:     models.FeedbackType(input.Type),
		Severity: models.Severity(input.Severity),
		Comment:  input.Comment,
	})
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToHazardResponse(hazard))
}

// @Summary Delete a hazard
// @Description Administrative removal of a hazard. Requires API key.
// @Tags Hazards
// @Security ApiKeyAuth
// @Param id path string true "Hazard ID"
// @Success 204 "No Content"
// @Failure 400 {object} ErrorResponse "Invalid hazard ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Hazard not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /hazards/{id} [delete]
func (h *Handler) deleteHazard(c *gin.Context) {
	id, ok := parseID(c, "hazard")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "deleteHazard").WithField("id", id)

	if err := h.hazardService.DeleteHazard(c.Request.Context(), id); err != nil {
		respondError(c, log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
