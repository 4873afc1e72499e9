package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/config"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/notify"
	"github.com/shenikar/road_hazard_engine/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	hazardService service.HazardService
	alertService  service.AlertService
	ticketService service.TicketService
	hub           *notify.Hub
	logger        *logrus.Logger
	validate      *validator.Validate
	cfg           *config.Config
	now           func() time.Time
}

func NewHandler(
	hazardService service.HazardService,
	alertService service.AlertService,
	ticketService service.TicketService,
	hub *notify.Hub,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		hazardService: hazardService,
		alertService:  alertService,
		ticketService: ticketService,
		hub:           hub,
		logger:        logger,
		validate:      validator.New(),
		cfg:           cfg,
		now:           time.Now,
	}
}

// bindJSON читает тело запроса и проверяет его validate-тегами.
// При ошибке ответ уже записан.
func (h *Handler) bindJSON(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) bindQuery(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindQuery(input); err != nil {
		log.WithError(err).Warn("Failed to bind query")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query parameters"})
		return false
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func parseID(c *gin.Context, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + entity + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError переводит доменную ошибку в HTTP-статус
func respondError(c *gin.Context, log *logrus.Entry, err error) {
	var (
		conflict   *models.ConflictError
		validation *models.ValidationError
	)
	switch {
	case errors.As(err, &validation):
		log.WithError(err).Warn("Request rejected by validation")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validation.Error(), Field: validation.Field})
	case errors.Is(err, models.ErrValidation):
		log.WithError(err).Warn("Request rejected by validation")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		log.WithError(err).Warn("Resource not found")
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.As(err, &conflict):
		log.WithError(err).Info("Duplicate hazard")
		id := conflict.ExistingID
		c.JSON(http.StatusConflict, ErrorResponse{Error: "hazard already reported", ExistingID: &id})
	case errors.Is(err, models.ErrVersionMismatch), errors.Is(err, models.ErrConflict):
		log.WithError(err).Warn("Concurrent modification")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "resource was modified concurrently, retry the request"})
	case errors.Is(err, models.ErrInvalidTransition):
		log.WithError(err).Warn("Invalid state transition")
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	default:
		log.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// @Summary Check location for hazards
// @Description Store the user's position and return open hazards nearby, ranked by risk. Requires API key.
// @Tags Location
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param location body LocationCheckRequest true "Location check request"
// @Success 200 {object} LocationReportResponse
// @Failure 400 {object} ErrorResponse "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /location/check [post]
func (h *Handler) checkLocation(c *gin.Context) {
	var input LocationCheckRequest
	log := h.logger.WithField("method", "checkLocation")
	if !h.bindJSON(c, log, &input) {
		return
	}

	report, err := h.hazardService.CheckLocation(c.Request.Context(), DTOToLocationCheck(input))
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToLocationReportResponse(report))
}

// @Summary Subscribe to push alerts
// @Description Upgrade to a websocket that receives alerts addressed to user_id. Requires API key.
// @Tags Alerts
// @Security ApiKeyAuth
// @Param user_id query string true "User ID"
// @Success 101 "Switching Protocols"
// @Failure 400 {object} ErrorResponse "Missing user_id"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /ws/alerts [get]
func (h *Handler) alertStream(c *gin.Context) {
	log := h.logger.WithField("method", "alertStream")
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id is required"})
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Websocket session failed")
	}
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
