package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/config"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/notify"
	"github.com/shenikar/road_hazard_engine/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var apiKey = map[string]string{"X-API-Key": "test-api-key"}

type serviceMocks struct {
	hazards *mocks.MockHazardService
	alerts  *mocks.MockAlertService
	tickets *mocks.MockTicketService
}

// newTestHandler создает Handler с мокированными сервисами и фиксированным временем
func newTestHandler(t *testing.T) (*Handler, serviceMocks, *gin.Engine) {
	ctrl := gomock.NewController(t)
	m := serviceMocks{
		hazards: mocks.NewMockHazardService(ctrl),
		alerts:  mocks.NewMockAlertService(ctrl),
		tickets: mocks.NewMockTicketService(ctrl),
	}

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		APIKeys: []string{"test-api-key"},
	}

	handler := NewHandler(m.hazards, m.alerts, m.tickets, notify.NewHub(logger), logger, cfg)
	handler.now = func() time.Time { return testNow }

	// Настройка Gin роутера для тестов
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	return handler, m, router
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func floatPtr(v float64) *float64 { return &v }

func validHazardRequest() CreateHazardRequest {
	return CreateHazardRequest{
		Type:       "pothole",
		Confidence: floatPtr(0.85),
		Latitude:   floatPtr(28.6139),
		Longitude:  floatPtr(77.209),
		ReportedBy: "driver-1",
	}
}

func TestCreateHazard_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	hazardID := uuid.New()

	m.hazards.EXPECT().
		CreateHazard(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, obs models.Observation) (*models.Hazard, error) {
			assert.Equal(t, models.HazardPothole, obs.Type)
			assert.InDelta(t, 0.85, obs.Confidence, 1e-9)
			assert.InDelta(t, 77.209, obs.Longitude, 1e-9)
			return &models.Hazard{
				ID:         hazardID,
				Type:       obs.Type,
				Severity:   models.SeverityMedium,
				Confidence: obs.Confidence,
				Longitude:  obs.Longitude,
				Latitude:   obs.Latitude,
				Status:     models.HazardActive,
				DetectedAt: testNow,
			}, nil
		}).Times(1)

	w := makeRequest(router, "POST", "/api/v1/hazards", jsonBody(t, validHazardRequest()), apiKey)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp HazardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, hazardID, resp.ID)
	assert.Equal(t, "Point", resp.Location.Type)
	assert.Equal(t, [2]float64{77.209, 28.6139}, resp.Location.Coordinates)
	assert.Greater(t, resp.RiskScore, 0.0)
}

func TestCreateHazard_Duplicate(t *testing.T) {
	_, m, router := newTestHandler(t)
	existing := uuid.New()

	m.hazards.EXPECT().
		CreateHazard(gomock.Any(), gomock.Any()).
		Return(nil, &models.ConflictError{ExistingID: existing, Fingerprint: "abc"}).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/hazards", jsonBody(t, validHazardRequest()), apiKey)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.ExistingID)
	assert.Equal(t, existing, *resp.ExistingID)
}

func TestCreateHazard_InvalidJSON(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.hazards.EXPECT().CreateHazard(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "POST", "/api/v1/hazards", bytes.NewBufferString(`{"type": "pothole"`), apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestCreateHazard_ValidationError(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := validHazardRequest()
	reqBody.Confidence = nil // Отсутствует Confidence

	m.hazards.EXPECT().CreateHazard(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/hazards", jsonBody(t, reqBody), apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Error:Field validation for 'Confidence' failed on the 'required' tag")
}

func TestCreateHazard_DomainValidationError(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.hazards.EXPECT().
		CreateHazard(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("create hazard: %w", &models.ValidationError{Field: "detected_at", Reason: "in the future"})).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/hazards", jsonBody(t, validHazardRequest()), apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "detected_at", resp.Field)
}

func TestCreateHazard_ServiceError(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.hazards.EXPECT().
		CreateHazard(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("database is down")).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/hazards", jsonBody(t, validHazardRequest()), apiKey)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	assert.NotContains(t, w.Body.String(), "database is down")
}

func TestGetHazard_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	hazardID := uuid.New()
	expected := &models.Hazard{ID: hazardID, Type: models.HazardDebris, Severity: models.SeverityHigh, Status: models.HazardActive}

	m.hazards.EXPECT().GetHazard(gomock.Any(), hazardID).Return(expected, nil).Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/v1/hazards/%s", hazardID), nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp HazardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, hazardID, resp.ID)
	assert.Equal(t, models.HazardDebris, resp.Type)
}

func TestGetHazard_InvalidID(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.hazards.EXPECT().GetHazard(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/hazards/invalid-uuid", nil, apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid hazard ID")
}

func TestGetHazard_NotFound(t *testing.T) {
	_, m, router := newTestHandler(t)
	hazardID := uuid.New()

	m.hazards.EXPECT().GetHazard(gomock.Any(), hazardID).Return(nil, models.ErrNotFound).Times(1)

	w := makeRequest(router, "GET", fmt.Sprintf("/api/v1/hazards/%s", hazardID), nil, apiKey)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
}

func TestListHazards_PassesFilter(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.hazards.EXPECT().
		ListHazards(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f models.HazardFilter) ([]*models.Hazard, error) {
			assert.Equal(t, models.HazardPothole, f.Type)
			assert.Equal(t, models.SeverityHigh, f.Severity)
			assert.Equal(t, 2, f.Page)
			assert.Equal(t, 10, f.PageSize)
			return []*models.Hazard{{ID: uuid.New()}, {ID: uuid.New()}}, nil
		}).Times(1)

	w := makeRequest(router, "GET", "/api/v1/hazards?type=pothole&severity=high&page=2&pageSize=10", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []HazardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestListHazards_InvalidType(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.hazards.EXPECT().ListHazards(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/hazards?type=meteor", nil, apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHazardStats_RoutedBeforeID(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.hazards.EXPECT().Stats(gomock.Any(), "type").Return(map[string]int{"pothole": 3}, nil).Times(1)

	w := makeRequest(router, "GET", "/api/v1/hazards/stats?by=type", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pothole":3}`, w.Body.String())
}

func TestDeduplicate_WithoutBody(t *testing.T) {
	_, m, router := newTestHandler(t)
	report := &models.DedupReport{Scanned: 3, Groups: 1}

	m.hazards.EXPECT().Deduplicate(gomock.Any(), time.Time{}, time.Time{}).Return(report, nil).Times(1)

	w := makeRequest(router, "POST", "/api/v1/hazards/dedup", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateHazardStatus_InvalidTransition(t *testing.T) {
	_, m, router := newTestHandler(t)
	hazardID := uuid.New()

	m.hazards.EXPECT().
		UpdateStatus(gomock.Any(), hazardID, models.HazardFixed).
		Return(nil, &models.TransitionError{Entity: "hazard", From: "false_positive", To: "fixed"}).
		Times(1)

	w := makeRequest(router, "PATCH", fmt.Sprintf("/api/v1/hazards/%s/status", hazardID), jsonBody(t, UpdateHazardStatusRequest{Status: "fixed"}), apiKey)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDeleteHazard_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	hazardID := uuid.New()

	m.hazards.EXPECT().DeleteHazard(gomock.Any(), hazardID).Return(nil).Times(1)

	w := makeRequest(router, "DELETE", fmt.Sprintf("/api/v1/hazards/%s", hazardID), nil, apiKey)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCheckLocation_Success_Danger(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := LocationCheckRequest{
		UserID:    "user123",
		Latitude:  floatPtr(50.0),
		Longitude: floatPtr(50.0),
	}
	report := &models.LocationReport{
		Hazards:     []*models.Hazard{{ID: uuid.New(), Severity: models.SeverityCritical}},
		IsDangerous: true,
		CheckedAt:   testNow,
	}

	m.hazards.EXPECT().
		CheckLocation(gomock.Any(), models.LocationCheck{UserID: "user123", Latitude: 50.0, Longitude: 50.0}).
		Return(report, nil).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/location/check", jsonBody(t, reqBody), apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp LocationReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsDangerous)
	assert.Len(t, resp.Hazards, 1)
}

func TestCheckLocation_ValidationError(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := LocationCheckRequest{ // Отсутствует UserID
		Latitude:  floatPtr(50.0),
		Longitude: floatPtr(50.0),
	}

	m.hazards.EXPECT().CheckLocation(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/location/check", jsonBody(t, reqBody), apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Error:Field validation for 'UserID' failed on the 'required' tag")
}

func TestListAlerts_RelevantOnly(t *testing.T) {
	_, m, router := newTestHandler(t)
	alert := &models.Alert{
		ID:        uuid.New(),
		UserID:    "driver-9",
		Delivery:  models.Delivery{Status: models.DeliveryDelivered},
		ExpiresAt: testNow.Add(time.Hour),
	}

	m.alerts.EXPECT().
		ListAlerts(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f models.AlertFilter) ([]*models.Alert, error) {
			assert.Equal(t, "driver-9", f.UserID)
			assert.True(t, f.RelevantOnly)
			assert.Equal(t, testNow, f.Now)
			return []*models.Alert{alert}, nil
		}).Times(1)

	w := makeRequest(router, "GET", "/api/v1/alerts?user_id=driver-9&relevant=true", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.True(t, resp[0].Relevant)
}

func TestAcknowledgeAlert_AlreadyAcknowledged(t *testing.T) {
	_, m, router := newTestHandler(t)
	alertID := uuid.New()

	m.alerts.EXPECT().
		Acknowledge(gomock.Any(), alertID, models.AlertAction("route_changed")).
		Return(nil, &models.TransitionError{Entity: "alert", From: "acknowledged", To: "acknowledged"}).
		Times(1)

	w := makeRequest(router, "POST", fmt.Sprintf("/api/v1/alerts/%s/acknowledge", alertID), jsonBody(t, AcknowledgeAlertRequest{Action: "route_changed"}), apiKey)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAcknowledgeAlert_Conflict(t *testing.T) {
	_, m, router := newTestHandler(t)
	alertID := uuid.New()

	m.alerts.EXPECT().
		Acknowledge(gomock.Any(), alertID, models.AlertAction("")).
		Return(nil, fmt.Errorf("acknowledge alert: %w", models.ErrVersionMismatch)).
		Times(1)

	w := makeRequest(router, "POST", fmt.Sprintf("/api/v1/alerts/%s/acknowledge", alertID), nil, apiKey)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateTicket_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := CreateTicketRequest{
		Location:  TicketLocationRequest{Latitude: floatPtr(28.6), Longitude: floatPtr(77.2), City: "Delhi"},
		IssueType: "pothole",
		Severity:  "critical",
		Evidence:  EvidenceRequest{Images: []string{"https://cdn.example.com/a.jpg"}},
	}
	ticket, err := models.NewTicket(models.TicketParams{
		Location:  models.TicketLocation{Latitude: 28.6, Longitude: 77.2, City: "Delhi"},
		IssueType: models.HazardPothole,
		Severity:  models.SeverityCritical,
	}, models.DefaultSLAPolicy(), testNow)
	require.NoError(t, err)

	m.tickets.EXPECT().
		CreateTicket(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p models.TicketParams) (*models.Ticket, error) {
			assert.Equal(t, models.SeverityCritical, p.Severity)
			require.Len(t, p.Evidence.Images, 1)
			assert.False(t, p.Evidence.Images[0].PrivacyProcessed)
			return ticket, nil
		}).Times(1)

	w := makeRequest(router, "POST", "/api/v1/tickets", jsonBody(t, reqBody), apiKey)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp TicketResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ticket.TicketID, resp.TicketID)
	assert.Equal(t, models.SLAOnTrack, resp.SLAState)
	require.NotNil(t, resp.ResponseDeadline)
	assert.True(t, testNow.Add(2*time.Hour).Equal(*resp.ResponseDeadline))
}

func TestListTickets_InvalidHazardID(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.tickets.EXPECT().ListTickets(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/tickets?hazard_id=nope", nil, apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOverdueTickets(t *testing.T) {
	_, m, router := newTestHandler(t)
	ticket, err := models.NewTicket(models.TicketParams{
		Location:  models.TicketLocation{Latitude: 28.6, Longitude: 77.2},
		IssueType: models.HazardPothole,
		Severity:  models.SeverityCritical,
	}, models.DefaultSLAPolicy(), testNow.Add(-3*time.Hour))
	require.NoError(t, err)

	m.tickets.EXPECT().
		Overdue(gomock.Any()).
		Return([]models.OverdueTicket{{Ticket: ticket, State: models.SLAOverdueResponse}}, nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/tickets/overdue", nil, apiKey)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []OverdueTicketResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, models.SLAOverdueResponse, resp[0].SLAState)
	assert.Equal(t, models.SLAOverdueResponse, resp[0].Ticket.SLAState)
}

func TestUpdateTicketStatus_Skip(t *testing.T) {
	_, m, router := newTestHandler(t)
	ticketID := uuid.New()

	m.tickets.EXPECT().
		UpdateStatus(gomock.Any(), ticketID, models.TicketCompleted, "inspector", "").
		Return(nil, &models.TransitionError{Entity: "ticket", From: "submitted", To: "completed"}).
		Times(1)

	reqBody := UpdateTicketStatusRequest{Status: "completed", UpdatedBy: "inspector"}
	w := makeRequest(router, "PATCH", fmt.Sprintf("/api/v1/tickets/%s/status", ticketID), jsonBody(t, reqBody), apiKey)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAssignTicket_RequiresAssignee(t *testing.T) {
	_, m, router := newTestHandler(t)
	ticketID := uuid.New()

	m.tickets.EXPECT().Assign(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", fmt.Sprintf("/api/v1/tickets/%s/assign", ticketID), jsonBody(t, AssignTicketRequest{ContactName: "Ivan"}), apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertStream_RequiresUser(t *testing.T) {
	_, _, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/ws/alerts", nil, apiKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "user_id is required")
}

func TestCreateAlert_UnknownHazard(t *testing.T) {
	_, m, router := newTestHandler(t)
	hazardID := uuid.New()

	m.alerts.EXPECT().
		CreateAlert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params models.AlertParams) (*models.Alert, error) {
			require.NotNil(t, params.HazardID)
			assert.Equal(t, hazardID, *params.HazardID)
			assert.Empty(t, params.Priority)
			return nil, fmt.Errorf("service: could not get alert hazard: %w", models.ErrNotFound)
		}).Times(1)

	body := map[string]any{
		"user_id":   "driver-9",
		"type":      "hazard",
		"title":     "Debris ahead",
		"latitude":  28.6,
		"longitude": 77.2,
		"hazard_id": hazardID,
	}
	w := makeRequest(router, "POST", "/api/v1/alerts", jsonBody(t, body), apiKey)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_RequireAPIKey(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.hazards.EXPECT().ListHazards(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/hazards", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "API key required")
}

func TestHealthCheck_Success(t *testing.T) {
	_, _, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/system/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAPIKeyAuthMiddleware_Success(t *testing.T) {
	// Создаем Gin-роутер и добавляем middleware
	gin.SetMode(gin.TestMode)
	router := gin.New()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	cfg := &config.Config{
		APIKeys: []string{"valid-key"},
	}

	router.Use(APIKeyAuthMiddleware(cfg, logger))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := makeRequest(router, "GET", "/test", nil, map[string]string{"Authorization": "Bearer valid-key"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAuthMiddleware_InvalidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	cfg := &config.Config{
		APIKeys: []string{"valid-key"},
	}

	router.Use(APIKeyAuthMiddleware(cfg, logger))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := makeRequest(router, "GET", "/test", nil, map[string]string{"X-API-Key": "invalid-key"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid API key")
}

func TestAPIKeyAuthMiddleware_DoesNotLogRejectedKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)

	cfg := &config.Config{
		APIKeys: []string{"valid-key"},
	}

	router.Use(APIKeyAuthMiddleware(cfg, logger))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := makeRequest(router, "GET", "/test", nil, map[string]string{"Authorization": "Bearer leaked-secret-key"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid API key", resp.Error)
	assert.NotContains(t, logs.String(), "leaked-secret-key")
	assert.Contains(t, logs.String(), "key_sha256="+keyTag("leaked-secret-key"))
	assert.Contains(t, logs.String(), "path=/test")
}
