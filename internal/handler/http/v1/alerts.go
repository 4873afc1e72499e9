package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/road_hazard_engine/internal/models"
)

// @Summary Create an alert
// @Description Create a route, system or hazard alert for a user and dispatch it in the background. A hazard_id alert takes its priority from the hazard severity. Requires API key.
// @Tags Alerts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param alert body CreateAlertRequest true "Alert"
// @Success 201 {object} AlertResponse
// @Failure 400 {object} ErrorResponse "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts [post]
func (h *Handler) createAlert(c *gin.Context) {
	var input CreateAlertRequest
	log := h.logger.WithField("method", "createAlert")
	if !h.bindJSON(c, log, &input) {
		return
	}

	alert, err := h.alertService.CreateAlert(c.Request.Context(), DTOToAlertParams(input))
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToAlertResponse(alert, h.now()))
}

// @Summary Get a list of alerts
// @Description Alerts for a user, newest first. relevant=true keeps only unexpired, undismissed, not failed alerts. Requires API key.
// @Tags Alerts
// @Produce json
// @Security ApiKeyAuth
// @Param user_id query string false "User ID"
// @Param type query string false "Alert type"
// @Param priority query string false "Priority"
// @Param status query string false "Delivery status"
// @Param relevant query bool false "Only relevant alerts"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} AlertResponse
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts [get]
func (h *Handler) listAlerts(c *gin.Context) {
	var q AlertListQuery
	log := h.logger.WithField("method", "listAlerts")
	if !h.bindQuery(c, log, &q) {
		return
	}

	now := h.now()
	alerts, err := h.alertService.ListAlerts(c.Request.Context(), models.AlertFilter{
		UserID:       q.UserID,
		Type:         models.AlertType(q.Type),
		Priority:     models.AlertPriority(q.Priority),
		Status:       models.DeliveryStatus(q.Status),
		RelevantOnly: q.Relevant,
		Now:          now,
		Page:         q.Page,
		PageSize:     q.PageSize,
	})
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToAlertResponses(alerts, now))
}

// @Summary Alert statistics
// @Description Count alerts created within the stats window grouped by type, priority or status. Requires API key.
// @Tags Alerts
// @Produce json
// @Security ApiKeyAuth
// @Param by query string true "Dimension" Enums(type, priority, status)
// @Success 200 {object} map[string]int
// @Failure 400 {object} ErrorResponse "Unknown dimension"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts/stats [get]
func (h *Handler) alertStats(c *gin.Context) {
	var q StatsQuery
	log := h.logger.WithField("method", "alertStats")
	if !h.bindQuery(c, log, &q) {
		return
	}

	counts, err := h.alertService.Stats(c.Request.Context(), q.By)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// @Summary Get alert by ID
// @Description Get a single alert by its ID. Requires API key.
// @Tags Alerts
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} AlertResponse
// @Failure 400 {object} ErrorResponse "Invalid alert ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Alert not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts/{id} [get]
func (h *Handler) getAlert(c *gin.Context) {
	id, ok := parseID(c, "alert")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getAlert").WithField("id", id)

	alert, err := h.alertService.GetAlert(c.Request.Context(), id)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToAlertResponse(alert, h.now()))
}

// @Summary Acknowledge an alert
// @Description Record that the user saw the alert and what they did. Allowed once. Requires API key.
// @Tags Alerts
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Alert ID"
// @Param action body AcknowledgeAlertRequest false "Action taken"
// @Success 200 {object} AlertResponse
// @Failure 400 {object} ErrorResponse "Invalid alert ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Alert not found"
// @Failure 409 {object} ErrorResponse "Concurrent modification"
// @Failure 422 {object} ErrorResponse "Already acknowledged"
// @Router /alerts/{id}/acknowledge [post]
func (h *Handler) acknowledgeAlert(c *gin.Context) {
	id, ok := parseID(c, "alert")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "acknowledgeAlert").WithField("id", id)

	var input AcknowledgeAlertRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, log, &input) {
		return
	}
	alert, err := h.alertService.Acknowledge(c.Request.Context(), id, models.AlertAction(input.Action))
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToAlertResponse(alert, h.now()))
}

// @Summary Dismiss an alert
// @Description Hide the alert for the user. A dismissed alert is no longer relevant. Requires API key.
// @Tags Alerts
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} AlertResponse
// @Failure 400 {object} ErrorResponse "Invalid alert ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Alert not found"
// @Failure 422 {object} ErrorResponse "Already dismissed"
// @Router /alerts/{id}/dismiss [post]
func (h *Handler) dismissAlert(c *gin.Context) {
	id, ok := parseID(c, "alert")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "dismissAlert").WithField("id", id)

	alert, err := h.alertService.Dismiss(c.Request.Context(), id)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToAlertResponse(alert, h.now()))
}

// @Summary Cancel an alert
// @Description Cancel an alert that has not been sent yet. Requires API key.
// @Tags Alerts
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} AlertResponse
// @Failure 400 {object} ErrorResponse "Invalid alert ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Alert not found"
// @Failure 422 {object} ErrorResponse "Alert already sent"
// @Router /alerts/{id}/cancel [post]
func (h *Handler) cancelAlert(c *gin.Context) {
	id, ok := parseID(c, "alert")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "cancelAlert").WithField("id", id)

	alert, err := h.alertService.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToAlertResponse(alert, h.now()))
}
