package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/metrics"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	maxTicketIDAttempts = 3
	detectionSnapshot   = "detection"
)

// TicketConfig - параметры заявок
type TicketConfig struct {
	SLA         models.SLAPolicy
	StatsWindow time.Duration
}

type ticketService struct {
	repo     TicketRepository
	hazards  HazardRepository
	syncer   TicketSyncer
	evidence EvidenceStore
	privacy  PrivacyFilter
	cfg      TicketConfig
	logger   *logrus.Logger
	opts     options
}

// NewTicketService собирает сервис заявок. syncer, evidence и privacy
// необязательны: nil отключает соответствующую интеграцию.
func NewTicketService(
	repo TicketRepository,
	hazards HazardRepository,
	syncer TicketSyncer,
	evidence EvidenceStore,
	privacy PrivacyFilter,
	cfg TicketConfig,
	logger *logrus.Logger,
	opts ...Option,
) TicketService {
	if cfg.SLA == (models.SLAPolicy{}) {
		cfg.SLA = models.DefaultSLAPolicy()
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 7 * 24 * time.Hour
	}
	return &ticketService{
		repo:     repo,
		hazards:  hazards,
		syncer:   syncer,
		evidence: evidence,
		privacy:  privacy,
		cfg:      cfg,
		logger:   logger,
		opts:     buildOptions(opts),
	}
}

// CreateFromHazard создает заявку по критической опасности, привязывает ее
// к опасности и в фоне сохраняет снимок детекции и синхронизирует заявку
func (s *ticketService) CreateFromHazard(ctx context.Context, hazard *models.Hazard) (*models.Ticket, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "ticket",
		"method":    "CreateFromHazard",
		"hazard_id": hazard.ID,
	})
	log.Info("Creating ticket for hazard")

	ticket, err := models.NewHazardTicket(hazard, s.cfg.SLA, s.opts.now())
	if err != nil {
		return nil, fmt.Errorf("service: invalid ticket: %w", err)
	}
	if err := s.insert(ctx, ticket); err != nil {
		log.WithError(err).Error("Failed to create ticket in repository")
		return nil, fmt.Errorf("service: could not create ticket: %w", err)
	}
	if err := s.hazards.AttachTicket(ctx, hazard.ID, ticket.ID); err != nil {
		log.WithError(err).Warn("Failed to attach ticket to hazard")
	}

	detection := hazard.Detection
	s.afterCreate(ctx, ticket, &detection)

	log.WithField("ticket_id", ticket.TicketID).Info("Ticket created successfully")
	return ticket, nil
}

// CreateTicket - заявка, заведенная пользователем или оператором
func (s *ticketService) CreateTicket(ctx context.Context, params models.TicketParams) (*models.Ticket, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "ticket",
		"method":  "CreateTicket",
	})
	log.Info("Attempting to create a new ticket")

	if params.HazardID != nil {
		if _, err := s.hazards.GetByID(ctx, *params.HazardID); err != nil {
			log.WithError(err).Warn("Ticket references an unknown hazard")
			return nil, fmt.Errorf("service: could not get hazard: %w", err)
		}
	}
	params.Evidence.Images = s.redactImages(ctx, log, params.Evidence.Images)

	ticket, err := models.NewTicket(params, s.cfg.SLA, s.opts.now())
	if err != nil {
		return nil, fmt.Errorf("service: invalid ticket: %w", err)
	}
	if err := s.insert(ctx, ticket); err != nil {
		log.WithError(err).Error("Failed to create ticket in repository")
		return nil, fmt.Errorf("service: could not create ticket: %w", err)
	}
	if params.HazardID != nil {
		if err := s.hazards.AttachTicket(ctx, *params.HazardID, ticket.ID); err != nil {
			log.WithError(err).Warn("Failed to attach ticket to hazard")
		}
	}
	s.afterCreate(ctx, ticket, nil)

	log.WithField("ticket_id", ticket.TicketID).Info("Ticket created successfully")
	return ticket, nil
}

// insert сохраняет заявку, выдавая новый ticket_id при коллизии
func (s *ticketService) insert(ctx context.Context, ticket *models.Ticket) error {
	var err error
	for i := 0; i < maxTicketIDAttempts; i++ {
		if err = s.repo.Create(ctx, ticket); !errors.Is(err, models.ErrConflict) {
			return err
		}
		ticket.TicketID = models.GenerateTicketID(ticket.SubmittedAt)
	}
	return err
}

func (s *ticketService) redactImages(ctx context.Context, log *logrus.Entry, images []models.EvidenceMedia) []models.EvidenceMedia {
	if s.privacy == nil || len(images) == 0 {
		return images
	}
	out := make([]models.EvidenceMedia, len(images))
	for i, img := range images {
		out[i] = img
		if img.PrivacyProcessed || img.URL == "" {
			continue
		}
		processed, err := s.privacy.Process(ctx, img.URL)
		if err != nil {
			metrics.IncExternalFailure("privacy")
			log.WithError(err).Warn("Privacy filter failed, keeping original image reference")
			continue
		}
		out[i].URL = processed
		out[i].PrivacyProcessed = true
	}
	return out
}

// afterCreate запускает внешние интеграции в фоне; их ошибки только
// записываются в заявку и в лог
func (s *ticketService) afterCreate(ctx context.Context, ticket *models.Ticket, detection *models.DetectionPayload) {
	if s.syncer == nil && (s.evidence == nil || detection == nil) {
		return
	}
	snapshot := *ticket
	s.opts.spawn(func() {
		bg, cancel := background(ctx)
		defer cancel()
		if detection != nil {
			s.storeSnapshot(bg, &snapshot, detection)
		}
		s.sync(bg, &snapshot)
	})
}

func (s *ticketService) storeSnapshot(ctx context.Context, ticket *models.Ticket, detection *models.DetectionPayload) {
	if s.evidence == nil {
		return
	}
	log := s.logger.WithFields(logrus.Fields{
		"service":   "ticket",
		"method":    "storeSnapshot",
		"ticket_id": ticket.TicketID,
	})
	key, err := s.evidence.PutSnapshot(ctx, ticket.TicketID, detectionSnapshot, detection)
	if err != nil {
		metrics.IncExternalFailure("evidence")
		log.WithError(err).Warn("Failed to store detection snapshot")
		return
	}
	_, err = s.mutate(ctx, ticket.ID, "storeSnapshot", func(t *models.Ticket) error {
		t.Evidence.SensorSnapshots = append(t.Evidence.SensorSnapshots, models.SensorSnapshot{
			Kind:       detectionSnapshot,
			ObjectKey:  key,
			CapturedAt: s.opts.now().UTC(),
		})
		t.UpdatedAt = s.opts.now().UTC()
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to reference detection snapshot")
	}
}

func (s *ticketService) sync(ctx context.Context, ticket *models.Ticket) {
	if s.syncer == nil {
		return
	}
	log := s.logger.WithFields(logrus.Fields{
		"service":   "ticket",
		"method":    "sync",
		"ticket_id": ticket.TicketID,
		"system":    s.syncer.System(),
	})

	record := models.ExternalSync{System: s.syncer.System()}
	externalID, status, err := s.syncer.Sync(ctx, ticket)
	record.SyncedAt = s.opts.now().UTC()
	if err != nil {
		metrics.IncExternalFailure("ticket_sync")
		log.WithError(err).Warn("External ticket sync failed")
		record.Status = "failed"
		record.Error = err.Error()
	} else {
		record.ExternalID = externalID
		record.Status = status
	}
	if err := s.repo.RecordSync(ctx, ticket.ID, record); err != nil {
		log.WithError(err).Warn("Failed to record ticket sync result")
		return
	}
	log.WithField("status", record.Status).Info("Ticket sync recorded")
}

func (s *ticketService) GetTicket(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	ticket, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"method": "GetTicket", "id": id}).Warn("Failed to get ticket")
		return nil, fmt.Errorf("service: could not get ticket: %w", err)
	}
	return ticket, nil
}

func (s *ticketService) ListTickets(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)
	log := s.logger.WithFields(logrus.Fields{
		"service":   "ticket",
		"method":    "ListTickets",
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
	log.Info("Listing tickets")

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &models.ValidationError{Field: "status", Reason: "unknown ticket status " + string(filter.Status)}
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		return nil, &models.ValidationError{Field: "severity", Reason: "unknown severity " + string(filter.Severity)}
	}
	if filter.IssueType != "" && !filter.IssueType.Valid() {
		return nil, &models.ValidationError{Field: "issue_type", Reason: "unknown hazard type " + string(filter.IssueType)}
	}

	tickets, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list tickets from repository")
		return nil, fmt.Errorf("service: could not list tickets: %w", err)
	}
	log.WithField("count", len(tickets)).Info("Tickets listed successfully")
	return tickets, nil
}

// mutate загружает заявку, применяет изменение и сохраняет с проверкой версии
func (s *ticketService) mutate(ctx context.Context, id uuid.UUID, method string, apply func(*models.Ticket) error) (*models.Ticket, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "ticket",
		"method":  method,
		"id":      id,
	})

	var result *models.Ticket
	err := retryOnConflict(ctx, func() error {
		ticket, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(ticket); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, ticket); err != nil {
			return err
		}
		result = ticket
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Ticket update rejected")
		return nil, fmt.Errorf("service: could not update ticket: %w", err)
	}
	return result, nil
}

// UpdateStatus продвигает заявку по жизненному циклу
func (s *ticketService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TicketStatus, by, comment string) (*models.Ticket, error) {
	ticket, err := s.mutate(ctx, id, "UpdateStatus", func(t *models.Ticket) error {
		return t.Transition(status, by, comment, s.opts.now())
	})
	if err != nil {
		return nil, err
	}
	metrics.IncTicketTransition(string(status))
	s.logger.WithFields(logrus.Fields{"ticket_id": ticket.TicketID, "status": status}).Info("Ticket status updated")
	return ticket, nil
}

// Assign назначает исполнителя и переводит заявку в assigned
func (s *ticketService) Assign(ctx context.Context, id uuid.UUID, assignment models.Assignment, by string) (*models.Ticket, error) {
	ticket, err := s.mutate(ctx, id, "Assign", func(t *models.Ticket) error {
		return t.Assign(assignment, by, s.opts.now())
	})
	if err != nil {
		return nil, err
	}
	metrics.IncTicketTransition(string(models.TicketAssigned))
	s.logger.WithField("ticket_id", ticket.TicketID).Info("Ticket assigned")
	return ticket, nil
}

func (s *ticketService) SubmitFeedback(ctx context.Context, id uuid.UUID, rating int, comment string) (*models.Ticket, error) {
	return s.mutate(ctx, id, "SubmitFeedback", func(t *models.Ticket) error {
		return t.SetFeedback(rating, comment, s.opts.now())
	})
}

// Overdue перечисляет открытые заявки с нарушенным SLA на текущий момент
func (s *ticketService) Overdue(ctx context.Context) ([]models.OverdueTicket, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "ticket",
		"method":  "Overdue",
	})

	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list open tickets")
		return nil, fmt.Errorf("service: could not list open tickets: %w", err)
	}

	now := s.opts.now()
	overdue := make([]models.OverdueTicket, 0)
	counts := map[string]int{
		string(models.SLAOverdueResponse):   0,
		string(models.SLAOverdueResolution): 0,
	}
	for _, t := range open {
		state := t.SLAState(now)
		if state != models.SLAOverdueResponse && state != models.SLAOverdueResolution {
			continue
		}
		counts[string(state)]++
		overdue = append(overdue, models.OverdueTicket{Ticket: t, State: state})
	}
	metrics.SetOverdue(counts)

	log.WithFields(logrus.Fields{"open": len(open), "overdue": len(overdue)}).Info("Overdue scan completed")
	return overdue, nil
}

// Stats - количество заявок по status, severity, priority или issue_type
func (s *ticketService) Stats(ctx context.Context, dimension string) (map[string]int, error) {
	if err := checkDimension(dimension, "status", "severity", "priority", "issue_type"); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountBy(ctx, dimension, s.opts.now().Add(-s.cfg.StatsWindow))
	if err != nil {
		s.logger.WithError(err).WithField("method", "Stats").Error("Failed to count tickets")
		return nil, fmt.Errorf("service: could not count tickets: %w", err)
	}
	return counts, nil
}
