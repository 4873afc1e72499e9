package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/notify"
	"github.com/shenikar/road_hazard_engine/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type alertMocks struct {
	repo     *mocks.MockAlertRepository
	hazards  *mocks.MockHazardRepository
	users    *mocks.MockUserDirectory
	notifier *mocks.MockAlertNotifier
}

// newTestAlertService - сервис уведомлений на моках. Часы читают *now,
// рассылка выполняется синхронно.
func newTestAlertService(t *testing.T, now *time.Time) (*alertService, alertMocks) {
	ctrl := gomock.NewController(t)
	m := alertMocks{
		repo:     mocks.NewMockAlertRepository(ctrl),
		hazards:  mocks.NewMockHazardRepository(ctrl),
		users:    mocks.NewMockUserDirectory(ctrl),
		notifier: mocks.NewMockAlertNotifier(ctrl),
	}
	svc := NewAlertService(m.repo, m.hazards, m.users, m.notifier,
		AlertConfig{TTL: 24 * time.Hour, RadiusMeters: 500},
		newTestLogger(),
		WithClock(func() time.Time { return *now }),
		WithSpawner(syncSpawn),
	)
	return svc.(*alertService), m
}

func urgentParams() models.AlertParams {
	return models.AlertParams{
		UserID:    "driver-9",
		Type:      models.AlertHazard,
		Priority:  models.PriorityUrgent,
		Title:     "Flooding ahead",
		Longitude: 77.2,
		Latitude:  28.6,
	}
}

func newStoredAlert(t *testing.T, now time.Time) *models.Alert {
	alert, err := models.NewAlert(urgentParams(), 24*time.Hour, now)
	require.NoError(t, err)
	return alert
}

func TestCreateAlert_RecordsDelivery(t *testing.T) {
	tests := []struct {
		name       string
		result     notify.Result
		wantStatus models.DeliveryStatus
		wantReason string
	}{
		{
			name:       "delivered on one channel",
			result:     notify.Result{Delivered: []string{"push"}, Failures: map[string]string{"webhook": "queue down"}},
			wantStatus: models.DeliveryDelivered,
		},
		{
			name:       "every channel failed",
			result:     notify.Result{Delivered: []string{}, Failures: map[string]string{"push": "no active push session"}},
			wantStatus: models.DeliveryFailed,
			wantReason: "push: no active push session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Подготовка
			now := testNow
			service, m := newTestAlertService(t, &now)
			ctx := context.Background()
			var recorded *models.Alert

			// Ожидания
			m.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
			m.notifier.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(tt.result)
			m.repo.EXPECT().
				Update(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, a *models.Alert) error {
					recorded = a
					return nil
				})

			// Действие
			alert, err := service.CreateAlert(ctx, urgentParams())

			// Проверки
			require.NoError(t, err)
			assert.Equal(t, models.DeliveryPending, alert.Delivery.Status)
			assert.Equal(t, testNow.Add(24*time.Hour), alert.ExpiresAt)
			require.NotNil(t, recorded)
			assert.Equal(t, alert.ID, recorded.ID)
			assert.Equal(t, tt.wantStatus, recorded.Delivery.Status)
			assert.Equal(t, tt.wantReason, recorded.Delivery.FailureReason)
			assert.NotNil(t, recorded.Delivery.SentAt)
		})
	}
}

func TestCreateAlert_Invalid(t *testing.T) {
	now := testNow
	service, _ := newTestAlertService(t, &now)
	params := urgentParams()
	params.Priority = "extreme"

	_, err := service.CreateAlert(context.Background(), params)

	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestCreateAlert_PriorityFromHazard(t *testing.T) {
	// Подготовка
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	hazard := &models.Hazard{ID: uuid.New(), Severity: models.SeverityCritical, Type: models.HazardFlooding}
	params := urgentParams()
	params.Priority = models.PriorityLow
	params.HazardID = &hazard.ID

	// Ожидания
	m.hazards.EXPECT().GetByID(ctx, hazard.ID).Return(hazard, nil)
	m.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	m.notifier.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(notify.Result{Delivered: []string{"push"}, Failures: map[string]string{}})
	m.repo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

	// Действие
	alert, err := service.CreateAlert(ctx, params)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgent, alert.Priority)
	require.NotNil(t, alert.HazardID)
	assert.Equal(t, hazard.ID, *alert.HazardID)
}

func TestCreateAlert_UnknownHazard(t *testing.T) {
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	missing := uuid.New()
	params := urgentParams()
	params.Priority = models.PriorityLow
	params.HazardID = &missing

	// Уведомление не сохраняется
	m.hazards.EXPECT().GetByID(ctx, missing).Return(nil, fmt.Errorf("hazard with id %s: %w", missing, models.ErrNotFound))

	_, err := service.CreateAlert(ctx, params)

	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestDeliver_ReloadsOnVersionMismatch(t *testing.T) {
	// Подготовка
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	alert := newStoredAlert(t, testNow)
	fresh := *alert
	fresh.Version = 2
	fresh.Interaction = models.Interaction{Acknowledged: true, Action: models.ActionSpeedReduced}
	var saved *models.Alert

	// Ожидания: первое сохранение проигрывает гонку, второе идет по свежей версии
	gomock.InOrder(
		m.notifier.EXPECT().Dispatch(ctx, alert).Return(notify.Result{Delivered: []string{"webhook"}, Failures: map[string]string{}}),
		m.repo.EXPECT().Update(ctx, alert).Return(models.ErrVersionMismatch),
		m.repo.EXPECT().GetByID(ctx, alert.ID).Return(&fresh, nil),
		m.repo.EXPECT().
			Update(ctx, &fresh).
			DoAndReturn(func(_ context.Context, a *models.Alert) error {
				saved = a
				return nil
			}),
	)

	// Действие
	service.deliver(ctx, alert)

	// Проверки
	require.NotNil(t, saved)
	assert.Equal(t, models.DeliveryDelivered, saved.Delivery.Status)
	assert.Equal(t, []string{"webhook"}, saved.Delivery.Channels)
	assert.True(t, saved.Interaction.Acknowledged)
}

func TestDeliver_SkipsCancelledAlert(t *testing.T) {
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	alert := newStoredAlert(t, testNow)
	require.NoError(t, alert.Cancel(testNow))

	// Отмененное уведомление не сохраняется повторно
	m.notifier.EXPECT().Dispatch(ctx, alert).Return(notify.Result{Delivered: []string{"push"}, Failures: map[string]string{}})

	service.deliver(ctx, alert)

	assert.Equal(t, models.DeliveryCancelled, alert.Delivery.Status)
}

func TestCreateForHazard_SkipsReporter(t *testing.T) {
	// Подготовка
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	hazard := &models.Hazard{
		ID:         uuid.New(),
		Type:       models.HazardStalledVehicle,
		Severity:   models.SeverityCritical,
		Longitude:  77.2,
		Latitude:   28.6,
		ReportedBy: "driver-1",
	}

	// Ожидания
	m.users.EXPECT().NearbyUsers(ctx, 77.2, 28.6, 500.0).Return([]string{"driver-1", "driver-2", "driver-3"}, nil)
	m.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil).Times(2)
	m.notifier.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(notify.Result{Delivered: []string{"push"}, Failures: map[string]string{}}).Times(2)
	m.repo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	// Действие
	alerts, err := service.CreateForHazard(ctx, hazard)

	// Проверки
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	for i, alert := range alerts {
		assert.Equal(t, []string{"driver-2", "driver-3"}[i], alert.UserID)
		assert.Equal(t, models.PriorityUrgent, alert.Priority)
		assert.Equal(t, models.AlertHazard, alert.Type)
		require.NotNil(t, alert.HazardID)
		assert.Equal(t, hazard.ID, *alert.HazardID)
		assert.True(t, alert.Voice.Enabled)
	}
}

func TestCreateForHazard_DirectoryFailure(t *testing.T) {
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	hazard := &models.Hazard{ID: uuid.New(), Severity: models.SeverityHigh, Type: models.HazardDebris}

	m.users.EXPECT().NearbyUsers(ctx, 0.0, 0.0, 500.0).Return(nil, errors.New("redis down"))

	_, err := service.CreateForHazard(ctx, hazard)

	assert.Error(t, err)
}

func TestAcknowledge_OnlyOnce(t *testing.T) {
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	alert := newStoredAlert(t, testNow)

	m.repo.EXPECT().GetByID(ctx, alert.ID).Return(alert, nil).Times(2)
	m.repo.EXPECT().Update(ctx, alert).Return(nil)

	acked, err := service.Acknowledge(ctx, alert.ID, models.ActionRouteChanged)
	require.NoError(t, err)
	assert.True(t, acked.Interaction.Acknowledged)
	assert.Equal(t, models.ActionRouteChanged, acked.Interaction.Action)
	assert.Equal(t, models.DeliveryPending, acked.Delivery.Status)

	_, err = service.Acknowledge(ctx, alert.ID, models.ActionNone)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestAcknowledge_RetriesOnVersionMismatch(t *testing.T) {
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	id := uuid.New()

	gomock.InOrder(
		m.repo.EXPECT().GetByID(ctx, id).Return(newStoredAlert(t, testNow), nil),
		m.repo.EXPECT().Update(ctx, gomock.Any()).Return(models.ErrVersionMismatch),
		m.repo.EXPECT().GetByID(ctx, id).Return(newStoredAlert(t, testNow), nil),
		m.repo.EXPECT().Update(ctx, gomock.Any()).Return(nil),
	)

	alert, err := service.Acknowledge(ctx, id, "")

	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, alert.Interaction.Action)
}

func TestAcknowledge_GivesUpAfterRepeatedConflicts(t *testing.T) {
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	id := uuid.New()

	m.repo.EXPECT().GetByID(ctx, id).DoAndReturn(func(context.Context, uuid.UUID) (*models.Alert, error) {
		return newStoredAlert(t, testNow), nil
	}).Times(maxUpdateAttempts)
	m.repo.EXPECT().Update(ctx, gomock.Any()).Return(models.ErrVersionMismatch).Times(maxUpdateAttempts)

	_, err := service.Acknowledge(ctx, id, models.ActionNone)

	assert.True(t, errors.Is(err, models.ErrVersionMismatch))
}

func TestCancel_OnlyFromPending(t *testing.T) {
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	alert := newStoredAlert(t, testNow)
	require.NoError(t, alert.MarkSent(testNow))

	m.repo.EXPECT().GetByID(ctx, alert.ID).Return(alert, nil)

	_, err := service.Cancel(ctx, alert.ID)

	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestDismiss_EndsRelevance(t *testing.T) {
	// Подготовка
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	alert := newStoredAlert(t, testNow)
	active := newStoredAlert(t, testNow)

	m.repo.EXPECT().GetByID(ctx, alert.ID).Return(alert, nil)
	m.repo.EXPECT().Update(ctx, alert).Return(nil)

	// Действие: пользователь скрывает уведомление через 10 минут
	now = testNow.Add(10 * time.Minute)
	dismissed, err := service.Dismiss(ctx, alert.ID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgent, dismissed.Priority)
	assert.Equal(t, testNow.Add(24*time.Hour), dismissed.ExpiresAt)
	for _, at := range []time.Duration{10 * time.Minute, time.Hour, 23 * time.Hour} {
		assert.False(t, dismissed.IsRelevant(testNow.Add(at)))
	}

	m.repo.EXPECT().List(ctx, gomock.Any()).Return([]*models.Alert{dismissed, active}, nil)
	relevant, err := service.ListAlerts(ctx, models.AlertFilter{UserID: "driver-9", RelevantOnly: true})
	require.NoError(t, err)
	require.Len(t, relevant, 1)
	assert.Equal(t, active.ID, relevant[0].ID)
}

func TestListAlerts_Validation(t *testing.T) {
	now := testNow
	service, _ := newTestAlertService(t, &now)

	_, err := service.ListAlerts(context.Background(), models.AlertFilter{Priority: "extreme"})

	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestRecordChannelFailure_FailsWebhookOnlyAlert(t *testing.T) {
	// Подготовка
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	alert := newStoredAlert(t, testNow)
	require.NoError(t, alert.MarkSent(testNow))
	require.NoError(t, alert.Deliver("webhook", testNow))

	m.repo.EXPECT().GetByID(ctx, alert.ID).Return(alert, nil)
	m.repo.EXPECT().Update(ctx, alert).Return(nil)

	// Действие: воркер бросил доставку через 5 минут
	now = testNow.Add(5 * time.Minute)
	failed, err := service.RecordChannelFailure(ctx, alert.ID, "webhook", "failed to deliver webhook after 3 attempts")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryFailed, failed.Delivery.Status)
	assert.Equal(t, "webhook: failed to deliver webhook after 3 attempts", failed.Delivery.FailureReason)
	assert.False(t, failed.IsRelevant(now))
}

func TestRecordChannelFailure_UnknownChannel(t *testing.T) {
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()
	alert := newStoredAlert(t, testNow)
	require.NoError(t, alert.MarkSent(testNow))
	require.NoError(t, alert.Deliver("push", testNow))

	m.repo.EXPECT().GetByID(ctx, alert.ID).Return(alert, nil)

	_, err := service.RecordChannelFailure(ctx, alert.ID, "webhook", "timeout")

	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
	assert.Equal(t, models.DeliveryDelivered, alert.Delivery.Status)
}

func TestAlertStats(t *testing.T) {
	now := testNow
	service, m := newTestAlertService(t, &now)
	ctx := context.Background()

	m.repo.EXPECT().CountBy(ctx, "status", testNow.Add(-7*24*time.Hour)).Return(map[string]int{"delivered": 3}, nil)

	counts, err := service.Stats(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, 3, counts["delivered"])

	_, err = service.Stats(ctx, "user_id")
	assert.True(t, errors.Is(err, models.ErrValidation))
}
