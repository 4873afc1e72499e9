package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/dedup"
	"github.com/shenikar/road_hazard_engine/internal/metrics"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/risk"
	"github.com/sirupsen/logrus"
)

const (
	defaultNearbyLimit   = 20
	maxNearbyLimit       = 100
	maxNearbyRadius      = 50000.0
	locationCheckLimit   = 50
	defaultHeatmapCell   = 0.01
	maxHeatmapCell       = 1.0
	defaultDedupLookback = 24 * time.Hour
)

// HazardConfig - настраиваемые параметры сервиса опасностей
type HazardConfig struct {
	Severity           risk.SeverityTable
	StatsWindow        time.Duration
	NearbyRadiusMeters float64
}

type hazardService struct {
	repo    HazardRepository
	cache   HazardCache
	alerts  AlertService
	tickets TicketService
	privacy PrivacyFilter
	users   UserDirectory
	cfg     HazardConfig
	logger  *logrus.Logger
	opts    options
}

// NewHazardService собирает сервис опасностей. privacy может быть nil,
// тогда изображения сохраняются без обработки.
func NewHazardService(
	repo HazardRepository,
	cache HazardCache,
	alerts AlertService,
	tickets TicketService,
	privacy PrivacyFilter,
	users UserDirectory,
	cfg HazardConfig,
	logger *logrus.Logger,
	opts ...Option,
) HazardService {
	if cfg.Severity == nil {
		cfg.Severity = risk.DefaultSeverityTable()
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 7 * 24 * time.Hour
	}
	if cfg.NearbyRadiusMeters <= 0 {
		cfg.NearbyRadiusMeters = 1000
	}
	return &hazardService{
		repo:    repo,
		cache:   cache,
		alerts:  alerts,
		tickets: tickets,
		privacy: privacy,
		users:   users,
		cfg:     cfg,
		logger:  logger,
		opts:    buildOptions(opts),
	}
}

// CreateHazard проверяет наблюдение, вычисляет отпечаток и сохраняет опасность.
// Совпадение отпечатка возвращает *models.ConflictError с ID существующей записи.
func (s *hazardService) CreateHazard(ctx context.Context, obs models.Observation) (*models.Hazard, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "hazard",
		"method":  "CreateHazard",
		"type":    obs.Type,
	})
	log.Info("Attempting to create a new hazard")

	if err := obs.Validate(); err != nil {
		metrics.IncHazardCreation(metrics.ResultInvalid)
		log.WithError(err).Warn("Rejected invalid observation")
		return nil, fmt.Errorf("service: invalid observation: %w", err)
	}
	if obs.Severity == "" {
		obs.Severity = s.cfg.Severity.Classify(obs.Type, obs.Confidence)
		log.WithField("severity", obs.Severity).Debug("Severity derived from confidence thresholds")
	}
	obs.Detection.Camera = s.redact(ctx, log, obs.Detection.Camera)

	hazard, err := models.NewHazard(obs, s.opts.now())
	if err != nil {
		metrics.IncHazardCreation(metrics.ResultInvalid)
		return nil, fmt.Errorf("service: invalid observation: %w", err)
	}

	if err := s.repo.Create(ctx, hazard); err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			metrics.IncHazardCreation(metrics.ResultConflict)
			log.WithField("existing_id", conflict.ExistingID).Info("Hazard already reported for this fingerprint")
			return nil, fmt.Errorf("service: duplicate hazard: %w", err)
		}
		metrics.IncHazardCreation(metrics.ResultError)
		log.WithError(err).Error("Failed to create hazard in repository")
		return nil, fmt.Errorf("service: could not create hazard: %w", err)
	}
	metrics.IncHazardCreation(metrics.ResultCreated)
	log = log.WithField("hazard_id", hazard.ID)
	log.WithField("severity", hazard.Severity).Info("Hazard created successfully")

	if err := s.cache.Set(ctx, hazard); err != nil {
		log.WithError(err).Warn("Failed to cache hazard")
	}

	if risk.AlertWorthy(hazard.Severity) {
		if _, err := s.alerts.CreateForHazard(ctx, hazard); err != nil {
			log.WithError(err).Warn("Failed to create alerts for hazard")
		}
	}
	if risk.TicketWorthy(hazard.Severity) {
		ticket, err := s.tickets.CreateFromHazard(ctx, hazard)
		if err != nil {
			log.WithError(err).Warn("Failed to create ticket for hazard")
		} else if !containsUUID(hazard.TicketIDs, ticket.ID) {
			hazard.TicketIDs = append(hazard.TicketIDs, ticket.ID)
			if err := s.cache.Invalidate(ctx, hazard.ID); err != nil {
				log.WithError(err).Warn("Failed to invalidate hazard cache")
			}
		}
	}

	return hazard, nil
}

// redact заменяет ссылку на изображение обезличенной копией.
// Ошибка фильтра не прерывает создание: остается исходная ссылка.
func (s *hazardService) redact(ctx context.Context, log *logrus.Entry, camera *models.CameraDetection) *models.CameraDetection {
	if camera == nil || camera.ImageURL == "" || camera.PrivacyProcessed || s.privacy == nil {
		return camera
	}
	out := *camera
	processed, err := s.privacy.Process(ctx, camera.ImageURL)
	if err != nil {
		metrics.IncExternalFailure("privacy")
		log.WithError(err).Warn("Privacy filter failed, keeping original image reference")
		out.PrivacyProcessed = false
		return &out
	}
	out.ImageURL = processed
	out.PrivacyProcessed = true
	return &out
}

// GetHazard получает опасность по ID через кэш
func (s *hazardService) GetHazard(ctx context.Context, id uuid.UUID) (*models.Hazard, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "hazard",
		"method":    "GetHazard",
		"hazard_id": id,
	})
	log.Info("Fetching hazard by ID")

	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read hazard cache")
	}
	if cached != nil {
		log.Debug("Hazard served from cache")
		return cached, nil
	}

	hazard, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to get hazard in repository")
		return nil, fmt.Errorf("service: could not get hazard: %w", err)
	}
	if err := s.cache.Set(ctx, hazard); err != nil {
		log.WithError(err).Warn("Failed to cache hazard")
	}

	log.Info("Hazard fetched successfully")
	return hazard, nil
}

// ListHazards возвращает список опасностей с пагинацией
func (s *hazardService) ListHazards(ctx context.Context, filter models.HazardFilter) ([]*models.Hazard, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)
	log := s.logger.WithFields(logrus.Fields{
		"service":   "hazard",
		"method":    "ListHazards",
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
	log.Info("Listing hazards")

	if filter.Type != "" && !filter.Type.Valid() {
		return nil, &models.ValidationError{Field: "type", Reason: "unknown hazard type " + string(filter.Type)}
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		return nil, &models.ValidationError{Field: "severity", Reason: "unknown severity " + string(filter.Severity)}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &models.ValidationError{Field: "status", Reason: "unknown hazard status " + string(filter.Status)}
	}

	hazards, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list hazards from repository")
		return nil, fmt.Errorf("service: could not list hazards: %w", err)
	}

	log.WithField("count", len(hazards)).Info("Hazards listed successfully")
	return hazards, nil
}

func (s *hazardService) normalizeNearby(q models.NearbyQuery) (models.NearbyQuery, error) {
	if err := models.ValidateCoordinates(q.Longitude, q.Latitude); err != nil {
		return q, err
	}
	if q.RadiusMeters == 0 {
		q.RadiusMeters = s.cfg.NearbyRadiusMeters
	}
	if math.IsNaN(q.RadiusMeters) || q.RadiusMeters < 0 || q.RadiusMeters > maxNearbyRadius {
		return q, &models.ValidationError{Field: "radius", Reason: fmt.Sprintf("must be within (0,%.0f] meters", maxNearbyRadius)}
	}
	if q.Limit < 1 || q.Limit > maxNearbyLimit {
		q.Limit = defaultNearbyLimit
	}
	if q.Type != "" && !q.Type.Valid() {
		return q, &models.ValidationError{Field: "type", Reason: "unknown hazard type " + string(q.Type)}
	}
	return q, nil
}

// NearbyHazards - ближайшие открытые опасности, отсортированные по расстоянию
func (s *hazardService) NearbyHazards(ctx context.Context, query models.NearbyQuery) ([]*models.Hazard, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "hazard",
		"method":  "NearbyHazards",
	})

	q, err := s.normalizeNearby(query)
	if err != nil {
		return nil, fmt.Errorf("service: invalid nearby query: %w", err)
	}
	hazards, err := s.repo.FindNearest(ctx, q)
	if err != nil {
		log.WithError(err).Error("Failed to find nearby hazards")
		return nil, fmt.Errorf("service: could not find nearby hazards: %w", err)
	}
	log.WithField("count", len(hazards)).Info("Nearby hazards found")
	return hazards, nil
}

// Heatmap агрегирует опасности в прямоугольнике по сетке cellDegrees.
// Интенсивность ячейки - сумма оценок риска.
func (s *hazardService) Heatmap(ctx context.Context, box models.BoundingBox, cellDegrees float64) ([]models.HeatCell, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "hazard",
		"method":  "Heatmap",
	})

	if err := box.Validate(); err != nil {
		return nil, fmt.Errorf("service: invalid bounding box: %w", err)
	}
	if cellDegrees == 0 {
		cellDegrees = defaultHeatmapCell
	}
	if math.IsNaN(cellDegrees) || cellDegrees < 0 || cellDegrees > maxHeatmapCell {
		return nil, &models.ValidationError{Field: "cell", Reason: "must be within (0,1] degrees"}
	}

	hazards, err := s.repo.FindInBounds(ctx, box)
	if err != nil {
		log.WithError(err).Error("Failed to load hazards for heatmap")
		return nil, fmt.Errorf("service: could not build heatmap: %w", err)
	}
	cells := aggregateHeat(hazards, box, cellDegrees)
	log.WithFields(logrus.Fields{"hazards": len(hazards), "cells": len(cells)}).Info("Heatmap built")
	return cells, nil
}

type cellKey struct{ x, y int }

func aggregateHeat(hazards []*models.Hazard, box models.BoundingBox, cell float64) []models.HeatCell {
	grid := make(map[cellKey]*models.HeatCell)
	for _, h := range hazards {
		k := cellKey{
			x: int(math.Floor((h.Longitude - box.MinLongitude) / cell)),
			y: int(math.Floor((h.Latitude - box.MinLatitude) / cell)),
		}
		c, ok := grid[k]
		if !ok {
			c = &models.HeatCell{
				Longitude: box.MinLongitude + (float64(k.x)+0.5)*cell,
				Latitude:  box.MinLatitude + (float64(k.y)+0.5)*cell,
			}
			grid[k] = c
		}
		c.Count++
		c.Intensity += risk.Score(h)
	}

	out := make([]models.HeatCell, 0, len(grid))
	for _, c := range grid {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Intensity != out[j].Intensity {
			return out[i].Intensity > out[j].Intensity
		}
		if out[i].Latitude != out[j].Latitude {
			return out[i].Latitude < out[j].Latitude
		}
		return out[i].Longitude < out[j].Longitude
	})
	return out
}

// SubmitFeedback добавляет отзыв пользователя и пересчитывает голоса
func (s *hazardService) SubmitFeedback(ctx context.Context, id uuid.UUID, report models.FeedbackReport) (*models.Hazard, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "hazard",
		"method":    "SubmitFeedback",
		"hazard_id": id,
		"type":      report.Type,
	})
	log.Info("Submitting hazard feedback")

	if strings.TrimSpace(report.UserID) == "" {
		return nil, &models.ValidationError{Field: "user_id", Reason: "is required"}
	}
	hazard, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted feedback on a non-existent hazard")
		return nil, fmt.Errorf("service: could not get hazard: %w", err)
	}
	if hazard.MergedInto != nil {
		return nil, fmt.Errorf("service: hazard %s was merged into %s: %w", id, *hazard.MergedInto, models.ErrNotFound)
	}
	if err := hazard.ApplyFeedback(report, s.opts.now()); err != nil {
		return nil, fmt.Errorf("service: invalid feedback: %w", err)
	}
	if err := s.repo.Update(ctx, hazard); err != nil {
		log.WithError(err).Error("Failed to update hazard in repository")
		return nil, fmt.Errorf("service: could not save feedback: %w", err)
	}
	s.invalidate(ctx, log, hazard.ID)

	log.WithFields(logrus.Fields{"upvotes": hazard.Feedback.Upvotes, "downvotes": hazard.Feedback.Downvotes}).Info("Feedback recorded")
	return hazard, nil
}

// UpdateStatus меняет статус опасности; fixed и false_positive окончательны
func (s *hazardService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.HazardStatus) (*models.Hazard, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "hazard",
		"method":    "UpdateStatus",
		"hazard_id": id,
		"status":    status,
	})
	log.Info("Attempting to update hazard status")

	hazard, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to update a non-existent hazard")
		return nil, fmt.Errorf("service: hazard with id %s not found for update: %w", id, err)
	}
	if hazard.MergedInto != nil {
		return nil, fmt.Errorf("service: hazard %s was merged into %s: %w", id, *hazard.MergedInto, models.ErrNotFound)
	}
	if err := hazard.SetStatus(status, s.opts.now()); err != nil {
		return nil, fmt.Errorf("service: could not change hazard status: %w", err)
	}
	if err := s.repo.Update(ctx, hazard); err != nil {
		log.WithError(err).Error("Failed to update hazard in repository")
		return nil, fmt.Errorf("service: could not update hazard: %w", err)
	}
	s.invalidate(ctx, log, hazard.ID)

	log.Info("Hazard status updated successfully")
	return hazard, nil
}

// DeleteHazard - административное удаление
func (s *hazardService) DeleteHazard(ctx context.Context, id uuid.UUID) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "hazard",
		"method":    "DeleteHazard",
		"hazard_id": id,
	})
	log.Info("Attempting to delete hazard")

	if err := s.repo.Delete(ctx, id); err != nil {
		log.WithError(err).Error("Failed to delete hazard in repository")
		return fmt.Errorf("service: could not delete hazard: %w", err)
	}
	s.invalidate(ctx, log, id)

	log.Info("Hazard deleted successfully")
	return nil
}

// Deduplicate сливает почти-дубликаты в окне [since, until).
// Каждая группа применяется атомарно; ошибка одной группы не
// останавливает проход.
func (s *hazardService) Deduplicate(ctx context.Context, since, until time.Time) (*models.DedupReport, error) {
	now := s.opts.now()
	if until.IsZero() {
		until = now
	}
	if since.IsZero() {
		since = until.Add(-defaultDedupLookback)
	}
	log := s.logger.WithFields(logrus.Fields{
		"service": "hazard",
		"method":  "Deduplicate",
		"since":   since,
		"until":   until,
	})
	log.Info("Starting dedup pass")

	if !since.Before(until) {
		return nil, &models.ValidationError{Field: "since", Reason: "must be before until"}
	}

	candidates, err := s.repo.ListForDedup(ctx, since, until)
	if err != nil {
		log.WithError(err).Error("Failed to load dedup candidates")
		return nil, fmt.Errorf("service: could not load dedup candidates: %w", err)
	}

	groups := dedup.Cluster(candidates)
	report := &models.DedupReport{
		Scanned: len(candidates),
		Groups:  len(groups),
		Merges:  []models.MergeSummary{},
	}
	for _, group := range groups {
		res, err := dedup.Merge(group, now)
		if err != nil {
			report.Failed++
			continue
		}
		if err := s.repo.ApplyMerge(ctx, res.Survivor, res.Absorbed); err != nil {
			report.Failed++
			log.WithError(err).WithField("survivor_id", res.Survivor.ID).Warn("Failed to apply merge")
			continue
		}
		metrics.AddMerged(len(res.Absorbed))
		report.Merges = append(report.Merges, models.MergeSummary{SurvivorID: res.Survivor.ID, Absorbed: res.Absorbed})
		s.invalidate(ctx, log, res.Survivor.ID)
		for _, id := range res.Absorbed {
			s.invalidate(ctx, log, id)
		}
	}

	log.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"groups":  report.Groups,
		"merged":  len(report.Merges),
		"failed":  report.Failed,
	}).Info("Dedup pass completed")
	return report, nil
}

// Stats - количество опасностей по type, severity или status за окно статистики
func (s *hazardService) Stats(ctx context.Context, dimension string) (map[string]int, error) {
	if err := checkDimension(dimension, "type", "severity", "status"); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountBy(ctx, dimension, s.opts.now().Add(-s.cfg.StatsWindow))
	if err != nil {
		s.logger.WithError(err).WithField("method", "Stats").Error("Failed to count hazards")
		return nil, fmt.Errorf("service: could not count hazards: %w", err)
	}
	return counts, nil
}

// CheckLocation запоминает позицию пользователя и возвращает открытые
// опасности рядом, упорядоченные по риску
func (s *hazardService) CheckLocation(ctx context.Context, check models.LocationCheck) (*models.LocationReport, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "hazard",
		"method":  "CheckLocation",
		"user_id": check.UserID,
	})
	log.Info("Checking user location")

	if strings.TrimSpace(check.UserID) == "" {
		return nil, &models.ValidationError{Field: "user_id", Reason: "is required"}
	}
	q, err := s.normalizeNearby(models.NearbyQuery{
		Longitude:    check.Longitude,
		Latitude:     check.Latitude,
		RadiusMeters: check.RadiusMeters,
		Limit:        locationCheckLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("service: invalid location: %w", err)
	}

	if err := s.users.UpdateLocation(ctx, check.UserID, check.Longitude, check.Latitude); err != nil {
		log.WithError(err).Warn("Failed to update user location")
	}

	hazards, err := s.repo.FindNearest(ctx, q)
	if err != nil {
		log.WithError(err).Error("Failed to find hazards by location")
		return nil, fmt.Errorf("service: failed to find hazards: %w", err)
	}
	risk.Rank(hazards)

	dangerous := false
	for _, h := range hazards {
		if risk.AlertWorthy(h.Severity) {
			dangerous = true
			break
		}
	}
	log.WithField("is_dangerous", dangerous).Info("Location check completed")

	return &models.LocationReport{
		Hazards:     hazards,
		IsDangerous: dangerous,
		CheckedAt:   s.opts.now().UTC(),
	}, nil
}

func (s *hazardService) invalidate(ctx context.Context, log *logrus.Entry, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		log.WithError(err).WithField("hazard_id", id).Warn("Failed to invalidate hazard cache")
	}
}

func containsUUID(list []uuid.UUID, id uuid.UUID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
