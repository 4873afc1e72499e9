package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/risk"
	"github.com/shenikar/road_hazard_engine/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

func syncSpawn(task func()) { task() }

type hazardMocks struct {
	repo    *mocks.MockHazardRepository
	cache   *mocks.MockHazardCache
	alerts  *mocks.MockAlertService
	tickets *mocks.MockTicketService
	privacy *mocks.MockPrivacyFilter
	users   *mocks.MockUserDirectory
}

// newTestHazardService - сервис опасностей на моках с фиксированными часами
func newTestHazardService(t *testing.T) (*hazardService, hazardMocks) {
	ctrl := gomock.NewController(t)
	m := hazardMocks{
		repo:    mocks.NewMockHazardRepository(ctrl),
		cache:   mocks.NewMockHazardCache(ctrl),
		alerts:  mocks.NewMockAlertService(ctrl),
		tickets: mocks.NewMockTicketService(ctrl),
		privacy: mocks.NewMockPrivacyFilter(ctrl),
		users:   mocks.NewMockUserDirectory(ctrl),
	}
	svc := NewHazardService(m.repo, m.cache, m.alerts, m.tickets, m.privacy, m.users,
		HazardConfig{Severity: risk.DefaultSeverityTable()},
		newTestLogger(),
		WithClock(func() time.Time { return testNow }),
		WithSpawner(syncSpawn),
	)
	return svc.(*hazardService), m
}

func potholeObservation(lon, lat float64, at time.Time, confidence float64) models.Observation {
	return models.Observation{
		Type:       models.HazardPothole,
		Confidence: confidence,
		Longitude:  lon,
		Latitude:   lat,
		DetectedAt: at,
		ReportedBy: "driver-1",
	}
}

func TestCreateHazard_DuplicateFingerprint(t *testing.T) {
	// Подготовка
	service, m := newTestHazardService(t)
	ctx := context.Background()
	stored := map[string]uuid.UUID{}

	// Ожидания: хранилище отклоняет повторный отпечаток
	m.repo.EXPECT().
		Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, h *models.Hazard) error {
			if id, ok := stored[h.Fingerprint]; ok {
				return &models.ConflictError{ExistingID: id, Fingerprint: h.Fingerprint}
			}
			stored[h.Fingerprint] = h.ID
			return nil
		}).
		Times(2)
	m.cache.EXPECT().Set(ctx, gomock.Any()).Return(nil).Times(1)

	// Действие
	first, err := service.CreateHazard(ctx, potholeObservation(77.20901, 28.61390, testNow, 0.7))
	require.NoError(t, err)
	second, err := service.CreateHazard(ctx, potholeObservation(77.20899, 28.61391, testNow.Add(60*time.Second), 0.7))

	// Проверки
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, errors.Is(err, models.ErrConflict))
	var conflict *models.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID, conflict.ExistingID)
	assert.Equal(t, models.SeverityMedium, first.Severity)
	assert.Equal(t, models.HazardActive, first.Status)
	assert.Len(t, first.Fingerprint, 32)
}

func TestCreateHazard_InvalidObservation(t *testing.T) {
	service, _ := newTestHazardService(t)

	_, err := service.CreateHazard(context.Background(), potholeObservation(200, 10, testNow, 0.5))

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestCreateHazard_CriticalTriggersAlertsAndTicket(t *testing.T) {
	// Подготовка
	service, m := newTestHazardService(t)
	ctx := context.Background()
	ticket := &models.Ticket{ID: uuid.New(), TicketID: "RH-20260301-ABC"}

	// Ожидания
	m.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	m.cache.EXPECT().Set(ctx, gomock.Any()).Return(nil)
	m.alerts.EXPECT().CreateForHazard(ctx, gomock.Any()).Return([]*models.Alert{}, nil)
	m.tickets.EXPECT().CreateFromHazard(ctx, gomock.Any()).Return(ticket, nil)
	m.cache.EXPECT().Invalidate(ctx, gomock.Any()).Return(nil)

	// Действие
	hazard, err := service.CreateHazard(ctx, potholeObservation(77.2, 28.6, testNow, 0.97))

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, hazard.Severity)
	assert.Equal(t, []uuid.UUID{ticket.ID}, hazard.TicketIDs)
}

func TestCreateHazard_HighAlertsWithoutTicket(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()

	m.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	m.cache.EXPECT().Set(ctx, gomock.Any()).Return(errors.New("redis down"))
	m.alerts.EXPECT().CreateForHazard(ctx, gomock.Any()).Return(nil, errors.New("geo index down"))

	hazard, err := service.CreateHazard(ctx, potholeObservation(77.2, 28.6, testNow, 0.85))

	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, hazard.Severity)
	assert.Empty(t, hazard.TicketIDs)
}

func TestCreateHazard_PrivacyFilter(t *testing.T) {
	tests := []struct {
		name          string
		processed     string
		processErr    error
		wantURL       string
		wantProcessed bool
	}{
		{
			name:          "processed copy replaces original",
			processed:     "https://cdn.example.com/blurred.jpg",
			wantURL:       "https://cdn.example.com/blurred.jpg",
			wantProcessed: true,
		},
		{
			name:          "filter failure keeps original",
			processErr:    errors.New("ai engine unavailable"),
			wantURL:       "https://cdn.example.com/raw.jpg",
			wantProcessed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, m := newTestHazardService(t)
			ctx := context.Background()
			obs := potholeObservation(77.2, 28.6, testNow, 0.1)
			obs.Detection.Camera = &models.CameraDetection{ImageURL: "https://cdn.example.com/raw.jpg", Confidence: 0.1}

			m.privacy.EXPECT().Process(ctx, "https://cdn.example.com/raw.jpg").Return(tt.processed, tt.processErr)
			m.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
			m.cache.EXPECT().Set(ctx, gomock.Any()).Return(nil)

			hazard, err := service.CreateHazard(ctx, obs)

			require.NoError(t, err)
			require.NotNil(t, hazard.Detection.Camera)
			assert.Equal(t, tt.wantURL, hazard.Detection.Camera.ImageURL)
			assert.Equal(t, tt.wantProcessed, hazard.Detection.Camera.PrivacyProcessed)
			assert.Equal(t, models.SeverityLow, hazard.Severity)
		})
	}
}

func TestGetHazard_Success_FromCache(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()
	expected := &models.Hazard{ID: uuid.New(), Type: models.HazardDebris}

	m.cache.EXPECT().Get(ctx, expected.ID).Return(expected, nil).Times(1)

	hazard, err := service.GetHazard(ctx, expected.ID)

	require.NoError(t, err)
	assert.Equal(t, expected, hazard)
}

func TestGetHazard_Success_FromDB(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()
	expected := &models.Hazard{ID: uuid.New(), Type: models.HazardDebris}

	// 1. Промах кеша
	m.cache.EXPECT().Get(ctx, expected.ID).Return(nil, nil)
	// 2. Попадание в БД
	m.repo.EXPECT().GetByID(ctx, expected.ID).Return(expected, nil)
	// 3. Запись в кеш
	m.cache.EXPECT().Set(ctx, expected).Return(nil)

	hazard, err := service.GetHazard(ctx, expected.ID)

	require.NoError(t, err)
	assert.Equal(t, expected, hazard)
}

func TestGetHazard_NotFound(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()
	id := uuid.New()

	m.cache.EXPECT().Get(ctx, id).Return(nil, errors.New("redis down"))
	m.repo.EXPECT().GetByID(ctx, id).Return(nil, models.ErrNotFound)

	hazard, err := service.GetHazard(ctx, id)

	require.Error(t, err)
	assert.Nil(t, hazard)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestListHazards_Validation(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()

	_, err := service.ListHazards(ctx, models.HazardFilter{Type: "sinkhole"})
	assert.True(t, errors.Is(err, models.ErrValidation))

	m.repo.EXPECT().
		List(ctx, models.HazardFilter{Status: models.HazardActive, Page: 1, PageSize: 20}).
		Return([]*models.Hazard{}, nil)

	hazards, err := service.ListHazards(ctx, models.HazardFilter{Status: models.HazardActive, PageSize: 500})
	require.NoError(t, err)
	assert.Empty(t, hazards)
}

func TestNearbyHazards_Defaults(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()

	m.repo.EXPECT().
		FindNearest(ctx, models.NearbyQuery{Longitude: 77.2, Latitude: 28.6, RadiusMeters: 1000, Limit: 20}).
		Return([]*models.Hazard{}, nil)

	_, err := service.NearbyHazards(ctx, models.NearbyQuery{Longitude: 77.2, Latitude: 28.6})
	require.NoError(t, err)

	_, err = service.NearbyHazards(ctx, models.NearbyQuery{Longitude: 77.2, Latitude: 28.6, RadiusMeters: 60000})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestHeatmap_AggregatesByCell(t *testing.T) {
	// Подготовка
	service, m := newTestHazardService(t)
	ctx := context.Background()
	box := models.BoundingBox{MinLongitude: 0, MinLatitude: 0, MaxLongitude: 1, MaxLatitude: 1}
	hazards := []*models.Hazard{
		{ID: uuid.New(), Longitude: 0.1, Latitude: 0.1, Severity: models.SeverityHigh, Confidence: 1},
		{ID: uuid.New(), Longitude: 0.2, Latitude: 0.2, Severity: models.SeverityLow, Confidence: 1},
		{ID: uuid.New(), Longitude: 0.7, Latitude: 0.7, Severity: models.SeverityCritical, Confidence: 0.5},
	}

	m.repo.EXPECT().FindInBounds(ctx, box).Return(hazards, nil)

	// Действие
	cells, err := service.Heatmap(ctx, box, 0.5)

	// Проверки
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.InDelta(t, 0.25, cells[0].Longitude, 1e-9)
	assert.InDelta(t, 0.25, cells[0].Latitude, 1e-9)
	assert.Equal(t, 2, cells[0].Count)
	assert.InDelta(t, 4.0, cells[0].Intensity, 1e-9)
	assert.InDelta(t, 0.75, cells[1].Longitude, 1e-9)
	assert.Equal(t, 1, cells[1].Count)
	assert.InDelta(t, 2.0, cells[1].Intensity, 1e-9)
}

func TestHeatmap_InvalidCell(t *testing.T) {
	service, _ := newTestHazardService(t)
	box := models.BoundingBox{MinLongitude: 0, MinLatitude: 0, MaxLongitude: 1, MaxLatitude: 1}

	_, err := service.Heatmap(context.Background(), box, 5)

	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestSubmitFeedback(t *testing.T) {
	t.Run("confirm increments upvotes", func(t *testing.T) {
		service, m := newTestHazardService(t)
		ctx := context.Background()
		hazard := &models.Hazard{ID: uuid.New(), Status: models.HazardActive, Feedback: models.Feedback{Reports: []models.FeedbackReport{}}}

		m.repo.EXPECT().GetByID(ctx, hazard.ID).Return(hazard, nil)
		m.repo.EXPECT().Update(ctx, hazard).Return(nil)
		m.cache.EXPECT().Invalidate(ctx, hazard.ID).Return(nil)

		updated, err := service.SubmitFeedback(ctx, hazard.ID, models.FeedbackReport{UserID: "u1", Type: models.FeedbackConfirm})

		require.NoError(t, err)
		assert.Equal(t, 1, updated.Feedback.Upvotes)
		require.Len(t, updated.Feedback.Reports, 1)
		assert.Equal(t, testNow, updated.Feedback.Reports[0].CreatedAt)
	})

	t.Run("merged hazard is not found", func(t *testing.T) {
		service, m := newTestHazardService(t)
		ctx := context.Background()
		survivor := uuid.New()
		hazard := &models.Hazard{ID: uuid.New(), MergedInto: &survivor}

		m.repo.EXPECT().GetByID(ctx, hazard.ID).Return(hazard, nil)

		_, err := service.SubmitFeedback(ctx, hazard.ID, models.FeedbackReport{UserID: "u1", Type: models.FeedbackDeny})

		assert.True(t, errors.Is(err, models.ErrNotFound))
	})

	t.Run("user is required", func(t *testing.T) {
		service, _ := newTestHazardService(t)

		_, err := service.SubmitFeedback(context.Background(), uuid.New(), models.FeedbackReport{Type: models.FeedbackConfirm})

		assert.True(t, errors.Is(err, models.ErrValidation))
	})
}

func TestUpdateStatus_TerminalIsFinal(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()
	hazard := &models.Hazard{ID: uuid.New(), Status: models.HazardFixed}

	m.repo.EXPECT().GetByID(ctx, hazard.ID).Return(hazard, nil)

	_, err := service.UpdateStatus(ctx, hazard.ID, models.HazardActive)

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	assert.Equal(t, models.HazardFixed, hazard.Status)
}

func TestUpdateStatus_MergedHazardIsNotFound(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()
	survivor := uuid.New()
	hazard := &models.Hazard{ID: uuid.New(), Status: models.HazardActive, MergedInto: &survivor}

	// Поглощенная запись не сохраняется
	m.repo.EXPECT().GetByID(ctx, hazard.ID).Return(hazard, nil)

	_, err := service.UpdateStatus(ctx, hazard.ID, models.HazardFixed)

	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Equal(t, models.HazardActive, hazard.Status)
}

func TestDeleteHazard(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()
	id := uuid.New()

	m.repo.EXPECT().Delete(ctx, id).Return(nil)
	m.cache.EXPECT().Invalidate(ctx, id).Return(nil)

	require.NoError(t, service.DeleteHazard(ctx, id))
}

func TestDeduplicate_MergesGroup(t *testing.T) {
	// Подготовка
	service, m := newTestHazardService(t)
	ctx := context.Background()
	base := testNow.Add(-2 * time.Hour)
	low := &models.Hazard{
		ID: uuid.New(), Type: models.HazardPothole, Severity: models.SeverityMedium, Confidence: 0.6,
		Longitude: 77.2090, Latitude: 28.6139, DetectedAt: base,
		Feedback: models.Feedback{Upvotes: 2}, TicketIDs: []uuid.UUID{},
	}
	high := &models.Hazard{
		ID: uuid.New(), Type: models.HazardPothole, Severity: models.SeverityHigh, Confidence: 0.9,
		Longitude: 77.2091, Latitude: 28.6139, DetectedAt: base.Add(10 * time.Minute),
		Feedback: models.Feedback{Upvotes: 1, Downvotes: 1}, TicketIDs: []uuid.UUID{},
	}
	var survivor *models.Hazard

	// Ожидания
	m.repo.EXPECT().
		ListForDedup(ctx, testNow.Add(-24*time.Hour), testNow).
		Return([]*models.Hazard{low, high}, nil)
	m.repo.EXPECT().
		ApplyMerge(ctx, gomock.Any(), []uuid.UUID{low.ID}).
		DoAndReturn(func(_ context.Context, h *models.Hazard, _ []uuid.UUID) error {
			survivor = h
			return nil
		})
	m.cache.EXPECT().Invalidate(ctx, gomock.Any()).Return(nil).Times(2)

	// Действие
	report, err := service.Deduplicate(ctx, time.Time{}, time.Time{})

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Merges, 1)
	assert.Equal(t, high.ID, report.Merges[0].SurvivorID)

	require.NotNil(t, survivor)
	assert.Equal(t, high.ID, survivor.ID)
	assert.InDelta(t, 0.79, survivor.Confidence, 1e-9)
	assert.Equal(t, models.SeverityHigh, survivor.Severity)
	assert.Equal(t, 3, survivor.Feedback.Upvotes)
	assert.Equal(t, 1, survivor.Feedback.Downvotes)
	require.NotNil(t, survivor.Merge)
	assert.Equal(t, []uuid.UUID{low.ID}, survivor.Merge.MergedFrom)
	assert.Equal(t, 2, survivor.Merge.MergeCount)
}

func TestDeduplicate_FailedGroupDoesNotStopPass(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()
	since := testNow.Add(-6 * time.Hour)
	a := &models.Hazard{ID: uuid.New(), Type: models.HazardDebris, Confidence: 0.5, Severity: models.SeverityLow, Longitude: 10, Latitude: 10, DetectedAt: since}
	b := &models.Hazard{ID: uuid.New(), Type: models.HazardDebris, Confidence: 0.5, Severity: models.SeverityLow, Longitude: 10, Latitude: 10, DetectedAt: since.Add(time.Minute)}

	m.repo.EXPECT().ListForDedup(ctx, since, testNow).Return([]*models.Hazard{a, b}, nil)
	m.repo.EXPECT().ApplyMerge(ctx, gomock.Any(), gomock.Any()).Return(models.ErrVersionMismatch)

	report, err := service.Deduplicate(ctx, since, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.Merges)
}

func TestDeduplicate_InvalidWindow(t *testing.T) {
	service, _ := newTestHazardService(t)

	_, err := service.Deduplicate(context.Background(), testNow, testNow.Add(-time.Hour))

	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestStats(t *testing.T) {
	service, m := newTestHazardService(t)
	ctx := context.Background()

	_, err := service.Stats(ctx, "city")
	assert.True(t, errors.Is(err, models.ErrValidation))

	expected := map[string]int{"pothole": 4, "debris": 1}
	m.repo.EXPECT().CountBy(ctx, "type", testNow.Add(-7*24*time.Hour)).Return(expected, nil)

	counts, err := service.Stats(ctx, "type")
	require.NoError(t, err)
	assert.Equal(t, expected, counts)
}

func TestCheckLocation(t *testing.T) {
	// Подготовка
	service, m := newTestHazardService(t)
	ctx := context.Background()
	low := &models.Hazard{ID: uuid.New(), Severity: models.SeverityLow, Confidence: 0.9, DetectedAt: testNow}
	high := &models.Hazard{ID: uuid.New(), Severity: models.SeverityHigh, Confidence: 0.9, DetectedAt: testNow.Add(-time.Hour)}

	// Ожидания: ошибка обновления позиции не прерывает проверку
	m.users.EXPECT().UpdateLocation(ctx, "driver-7", 77.2, 28.6).Return(errors.New("redis down"))
	m.repo.EXPECT().
		FindNearest(ctx, models.NearbyQuery{Longitude: 77.2, Latitude: 28.6, RadiusMeters: 1000, Limit: 50}).
		Return([]*models.Hazard{low, high}, nil)

	// Действие
	report, err := service.CheckLocation(ctx, models.LocationCheck{UserID: "driver-7", Longitude: 77.2, Latitude: 28.6})

	// Проверки
	require.NoError(t, err)
	assert.True(t, report.IsDangerous)
	require.Len(t, report.Hazards, 2)
	assert.Equal(t, high.ID, report.Hazards[0].ID)
	assert.Equal(t, testNow, report.CheckedAt)
}

func TestCheckLocation_RequiresUser(t *testing.T) {
	service, _ := newTestHazardService(t)

	_, err := service.CheckLocation(context.Background(), models.LocationCheck{Longitude: 1, Latitude: 1})

	assert.True(t, errors.Is(err, models.ErrValidation))
}
