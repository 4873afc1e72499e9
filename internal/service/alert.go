package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/metrics"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/notify"
	"github.com/sirupsen/logrus"
)

// AlertConfig - параметры уведомлений
type AlertConfig struct {
	TTL          time.Duration
	RadiusMeters float64
	StatsWindow  time.Duration
}

type alertService struct {
	repo     AlertRepository
	hazards  HazardRepository
	users    UserDirectory
	notifier AlertNotifier
	cfg      AlertConfig
	logger   *logrus.Logger
	opts     options
}

func NewAlertService(repo AlertRepository, hazards HazardRepository, users UserDirectory, notifier AlertNotifier, cfg AlertConfig, logger *logrus.Logger, opts ...Option) AlertService {
	if cfg.TTL <= 0 {
		cfg.TTL = models.DefaultAlertTTL
	}
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = 500
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 7 * 24 * time.Hour
	}
	return &alertService{
		repo:     repo,
		hazards:  hazards,
		users:    users,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		opts:     buildOptions(opts),
	}
}

// CreateForHazard создает уведомления для пользователей рядом с опасностью.
// Автор отчета уведомление не получает. Рассылка идет в фоне.
func (s *alertService) CreateForHazard(ctx context.Context, hazard *models.Hazard) ([]*models.Alert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "alert",
		"method":    "CreateForHazard",
		"hazard_id": hazard.ID,
	})
	log.Info("Creating alerts for hazard")

	recipients, err := s.users.NearbyUsers(ctx, hazard.Longitude, hazard.Latitude, s.cfg.RadiusMeters)
	if err != nil {
		log.WithError(err).Error("Failed to find nearby users")
		return nil, fmt.Errorf("service: could not find alert recipients: %w", err)
	}

	now := s.opts.now()
	created := make([]*models.Alert, 0, len(recipients))
	for _, userID := range recipients {
		if userID == hazard.ReportedBy {
			continue
		}
		alert, err := models.NewHazardAlert(hazard, userID, s.cfg.RadiusMeters, s.cfg.TTL, now)
		if err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Skipping alert for invalid recipient")
			continue
		}
		if err := s.repo.Create(ctx, alert); err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Failed to create alert in repository")
			continue
		}
		created = append(created, alert)
		s.dispatch(ctx, alert)
	}

	log.WithField("count", len(created)).Info("Alerts created for hazard")
	return created, nil
}

// CreateAlert создает произвольное уведомление (route, system или hazard).
// При заданном HazardID приоритет берется из серьезности опасности.
func (s *alertService) CreateAlert(ctx context.Context, params models.AlertParams) (*models.Alert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "alert",
		"method":  "CreateAlert",
		"user_id": params.UserID,
	})
	log.Info("Attempting to create a new alert")

	if params.HazardID != nil {
		hazard, err := s.hazards.GetByID(ctx, *params.HazardID)
		if err != nil {
			log.WithError(err).WithField("hazard_id", *params.HazardID).Warn("Alert references an unknown hazard")
			return nil, fmt.Errorf("service: could not get alert hazard: %w", err)
		}
		if hazard.MergedInto != nil {
			return nil, fmt.Errorf("service: hazard %s was merged into %s: %w", hazard.ID, *hazard.MergedInto, models.ErrNotFound)
		}
		params.Priority = models.AlertPriorityFor(hazard.Severity)
	}

	alert, err := models.NewAlert(params, s.cfg.TTL, s.opts.now())
	if err != nil {
		return nil, fmt.Errorf("service: invalid alert: %w", err)
	}
	if err := s.repo.Create(ctx, alert); err != nil {
		log.WithError(err).Error("Failed to create alert in repository")
		return nil, fmt.Errorf("service: could not create alert: %w", err)
	}
	s.dispatch(ctx, alert)

	log.WithField("alert_id", alert.ID).Info("Alert created successfully")
	return alert, nil
}

// dispatch запускает рассылку вне пути запроса
func (s *alertService) dispatch(ctx context.Context, alert *models.Alert) {
	snapshot := *alert
	s.opts.spawn(func() {
		bg, cancel := background(ctx)
		defer cancel()
		s.deliver(bg, &snapshot)
	})
}

// deliver рассылает уведомление и фиксирует итог в состоянии доставки.
// Ошибки каналов не откатывают создание уведомления.
func (s *alertService) deliver(ctx context.Context, alert *models.Alert) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "alert",
		"method":   "deliver",
		"alert_id": alert.ID,
	})

	res := s.notifier.Dispatch(ctx, alert)
	for _, ch := range res.Delivered {
		metrics.IncAlertDelivery(ch, metrics.ResultSuccess)
	}
	for ch := range res.Failures {
		metrics.IncAlertDelivery(ch, metrics.ResultFailure)
		metrics.IncExternalFailure("notify_" + ch)
	}

	current := alert
	err := retryOnConflict(ctx, func() error {
		if current == nil {
			fresh, err := s.repo.GetByID(ctx, alert.ID)
			if err != nil {
				return err
			}
			current = fresh
		}
		if err := applyDelivery(current, res, s.opts.now()); err != nil {
			log.WithError(err).Info("Alert state moved on before delivery was recorded")
			return nil
		}
		if err := s.repo.Update(ctx, current); err != nil {
			current = nil
			return err
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to record alert delivery")
		return
	}
	log.WithFields(logrus.Fields{
		"delivered": res.Delivered,
		"failed":    len(res.Failures),
	}).Info("Alert dispatch recorded")
}

// applyDelivery: pending -> sent, затем delivered по каждому успешному
// каналу или failed, если не сработал ни один
func applyDelivery(alert *models.Alert, res notify.Result, now time.Time) error {
	if alert.Delivery.Status == models.DeliveryPending {
		if err := alert.MarkSent(now); err != nil {
			return err
		}
	}
	if res.AllFailed() {
		return alert.Fail(res.Reason(), now)
	}
	for _, ch := range res.Delivered {
		if err := alert.Deliver(ch, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *alertService) GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"method": "GetAlert", "alert_id": id}).Warn("Failed to get alert")
		return nil, fmt.Errorf("service: could not get alert: %w", err)
	}
	return alert, nil
}

// ListAlerts возвращает уведомления. С RelevantOnly отдаются только
// неистекшие, не скрытые и не проваленные.
func (s *alertService) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)
	if filter.Now.IsZero() {
		filter.Now = s.opts.now()
	}
	log := s.logger.WithFields(logrus.Fields{
		"service":   "alert",
		"method":    "ListAlerts",
		"user_id":   filter.UserID,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
	log.Info("Listing alerts")

	if filter.Type != "" && !filter.Type.Valid() {
		return nil, &models.ValidationError{Field: "type", Reason: "unknown alert type " + string(filter.Type)}
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, &models.ValidationError{Field: "priority", Reason: "unknown priority " + string(filter.Priority)}
	}

	alerts, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list alerts from repository")
		return nil, fmt.Errorf("service: could not list alerts: %w", err)
	}
	if filter.RelevantOnly {
		relevant := alerts[:0]
		for _, a := range alerts {
			if a.IsRelevant(filter.Now) {
				relevant = append(relevant, a)
			}
		}
		alerts = relevant
	}

	log.WithField("count", len(alerts)).Info("Alerts listed successfully")
	return alerts, nil
}

// mutate загружает уведомление, применяет переход и сохраняет с проверкой версии
func (s *alertService) mutate(ctx context.Context, id uuid.UUID, method string, apply func(*models.Alert) error) (*models.Alert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "alert",
		"method":   method,
		"alert_id": id,
	})
	log.Info("Attempting alert transition")

	var result *models.Alert
	err := retryOnConflict(ctx, func() error {
		alert, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(alert); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, alert); err != nil {
			return err
		}
		result = alert
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Alert transition rejected")
		return nil, fmt.Errorf("service: could not update alert: %w", err)
	}
	log.Info("Alert updated successfully")
	return result, nil
}

func (s *alertService) Acknowledge(ctx context.Context, id uuid.UUID, action models.AlertAction) (*models.Alert, error) {
	return s.mutate(ctx, id, "Acknowledge", func(a *models.Alert) error {
		return a.Acknowledge(action, s.opts.now())
	})
}

func (s *alertService) Dismiss(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	return s.mutate(ctx, id, "Dismiss", func(a *models.Alert) error {
		return a.Dismiss(s.opts.now())
	})
}

func (s *alertService) Cancel(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	return s.mutate(ctx, id, "Cancel", func(a *models.Alert) error {
		return a.Cancel(s.opts.now())
	})
}

// RecordChannelFailure фиксирует окончательную ошибку канала, который
// ранее принял уведомление (очередь вебхуков)
func (s *alertService) RecordChannelFailure(ctx context.Context, id uuid.UUID, channel, reason string) (*models.Alert, error) {
	metrics.IncExternalFailure("notify_" + channel)
	return s.mutate(ctx, id, "RecordChannelFailure", func(a *models.Alert) error {
		return a.RevokeChannel(channel, reason, s.opts.now())
	})
}

// Stats - количество уведомлений по type, priority или status
func (s *alertService) Stats(ctx context.Context, dimension string) (map[string]int, error) {
	if err := checkDimension(dimension, "type", "priority", "status"); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountBy(ctx, dimension, s.opts.now().Add(-s.cfg.StatsWindow))
	if err != nil {
		s.logger.WithError(err).WithField("method", "Stats").Error("Failed to count alerts")
		return nil, fmt.Errorf("service: could not count alerts: %w", err)
	}
	return counts, nil
}
