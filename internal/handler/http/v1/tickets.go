package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/road_hazard_engine/internal/models"
)

// @Summary Create a repair ticket
// @Description File a repair ticket, optionally linked to a hazard. SLA deadlines are fixed from severity. Requires API key.
// @Tags Tickets
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param ticket body CreateTicketRequest true "Ticket"
// @Success 201 {object} TicketResponse
// @Failure 400 {object} ErrorResponse "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Linked hazard not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /tickets [post]
func (h *Handler) createTicket(c *gin.Context) {
	var input CreateTicketRequest
	log := h.logger.WithField("method", "createTicket")
	if !h.bindJSON(c, log, &input) {
		return
	}

	ticket, err := h.ticketService.CreateTicket(c.Request.Context(), DTOToTicketParams(input))
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToTicketResponse(ticket, h.now()))
}

// @Summary Get a list of tickets
// @Description Get a paginated list of tickets, newest first. Requires API key.
// @Tags Tickets
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "Status"
// @Param severity query string false "Severity"
// @Param priority query string false "Priority"
// @Param issue_type query string false "Issue type"
// @Param hazard_id query string false "Linked hazard ID"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} TicketResponse
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /tickets [get]
func (h *Handler) listTickets(c *gin.Context) {
	var q TicketListQuery
	log := h.logger.WithField("method", "listTickets")
	if !h.bindQuery(c, log, &q) {
		return
	}

	tickets, err := h.ticketService.ListTickets(c.Request.Context(), DTOToTicketFilter(q))
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToTicketResponses(tickets, h.now()))
}

// @Summary Overdue tickets
// @Description Open tickets whose response or resolution deadline has passed. Requires API key.
// @Tags Tickets
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} OverdueTicketResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /tickets/overdue [get]
func (h *Handler) overdueTickets(c *gin.Context) {
	log := h.logger.WithField("method", "overdueTickets")

	overdue, err := h.ticketService.Overdue(c.Request.Context())
	if err != nil {
		respondError(c, log, err)
		return
	}
	now := h.now()
	resp := make([]OverdueTicketResponse, len(overdue))
	for i, o := range overdue {
		resp[i] = OverdueTicketResponse{Ticket: ModelToTicketResponse(o.Ticket, now), SLAState: o.State}
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Ticket statistics
// @Description Count tickets submitted within the stats window grouped by status, severity, priority or issue_type. Requires API key.
// @Tags Tickets
// @Produce json
// @Security ApiKeyAuth
// @Param by query string true "Dimension" Enums(status, severity, priority, issue_type)
// @Success 200 {object} map[string]int
// @Failure 400 {object} ErrorResponse "Unknown dimension"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /tickets/stats [get]
func (h *Handler) ticketStats(c *gin.Context) {
	var q StatsQuery
	log := h.logger.WithField("method", "ticketStats")
	if !h.bindQuery(c, log, &q) {
		return
	}

	counts, err := h.ticketService.Stats(c.Request.Context(), q.By)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// @Summary Get ticket by ID
// @Description Get a single ticket with its SLA state. Requires API key.
// @Tags Tickets
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} TicketResponse
// @Failure 400 {object} ErrorResponse "Invalid ticket ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Ticket not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /tickets/{id} [get]
func (h *Handler) getTicket(c *gin.Context) {
	id, ok := parseID(c, "ticket")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getTicket").WithField("id", id)

	ticket, err := h.ticketService.GetTicket(c.Request.Context(), id)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToTicketResponse(ticket, h.now()))
}

// @Summary Update ticket status
// @Description Advance the ticket lifecycle. rejected and duplicate are allowed from any open state. Requires API key.
// @Tags Tickets
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Ticket ID"
// @Param status body UpdateTicketStatusRequest true "New status"
// @Success 200 {object} TicketResponse
// @Failure 400 {object} ErrorResponse "Invalid ticket ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Ticket not found"
// @Failure 409 {object} ErrorResponse "Concurrent modification"
// @Failure 422 {object} ErrorResponse "Transition not allowed"
// @Router /tickets/{id}/status [patch]
func (h *Handler) updateTicketStatus(c *gin.Context) {
	id, ok := parseID(c, "ticket")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateTicketStatus").WithField("id", id)

	var input UpdateTicketStatusRequest
	if !h.bindJSON(c, log, &input) {
		return
	}
	ticket, err := h.ticketService.UpdateStatus(c.Request.Context(), id, models.TicketStatus(input.Status), input.UpdatedBy, input.Comment)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToTicketResponse(ticket, h.now()))
}

// @Summary Assign a ticket
// @Description Assign the ticket to a department or contractor. Requires API key.
// @Tags Tickets
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Ticket ID"
// @Param assignment body AssignTicketRequest true "Assignment"
// @Success 200 {object} TicketResponse
// @Failure 400 {object} ErrorResponse "Invalid ticket ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Ticket not found"
// @Failure 422 {object} ErrorResponse "Ticket is closed"
// @Router /tickets/{id}/assign [post]
func (h *Handler) assignTicket(c *gin.Context) {
	id, ok := parseID(c, "ticket")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "assignTicket").WithField("id", id)

	var input AssignTicketRequest
	if !h.bindJSON(c, log, &input) {
		return
	}
	ticket, err := h.ticketService.Assign(c.Request.Context(), id, DTOToAssignment(input), input.AssignedBy)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToTicketResponse(ticket, h.now()))
}

// @Summary Rate a completed ticket
// @Description Submit a 1-5 rating for a completed ticket. Requires API key.
// @Tags Tickets
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Ticket ID"
// @Param feedback body TicketFeedbackRequest true "Rating"
// @Success 200 {object} TicketResponse
// @Failure 400 {object} ErrorResponse "Invalid ticket ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} ErrorResponse "Ticket not found"
// @Failure 422 {object} ErrorResponse "Ticket is not completed"
// @Router /tickets/{id}/feedback [post]
func (h *Handler) ticketFeedback(c *gin.Context) {
	id, ok := parseID(c, "ticket")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "ticketFeedback").WithField("id", id)

	var input TicketFeedbackRequest
	if !h.bindJSON(c, log, &input) {
		return
	}
	ticket, err := h.ticketService.SubmitFeedback(c.Request.Context(), id, input.Rating, input.Comment)
	if err != nil {
		respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToTicketResponse(ticket, h.now()))
}
