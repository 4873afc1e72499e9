package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/service"
	"github.com/shenikar/road_hazard_engine/pkg/postgres"
)

const (
	ticketIDConstraint = "tickets_ticket_id_key"

	ticketColumns = `
		id, ticket_id, hazard_id,
		ST_X(location::geometry) AS longitude,
		ST_Y(location::geometry) AS latitude,
		location_details, issue_type, severity, description, evidence,
		status, assignment, timeline, external_systems, priority,
		sla, feedback, cost, submitted_by, submitted_at, updated_at, version`

	openTicket = "status NOT IN ('completed', 'rejected', 'duplicate')"
)

var ticketStatsColumns = map[string]string{
	"status":     "status",
	"severity":   "severity",
	"priority":   "priority",
	"issue_type": "issue_type",
}

type TicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *pgxpool.Pool) service.TicketRepository {
	return &TicketRepository{db: db}
}

// locationDetails - адресная часть локации без координат
type locationDetails struct {
	Address  string `json:"address,omitempty"`
	Landmark string `json:"landmark,omitempty"`
	Pincode  string `json:"pincode,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
}

func detailsOf(l models.TicketLocation) locationDetails {
	return locationDetails{
		Address:  l.Address,
		Landmark: l.Landmark,
		Pincode:  l.Pincode,
		City:     l.City,
		State:    l.State,
	}
}

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	t := &models.Ticket{}
	var details locationDetails
	err := row.Scan(
		&t.ID,
		&t.TicketID,
		&t.HazardID,
		&t.Location.Longitude,
		&t.Location.Latitude,
		&details,
		&t.IssueType,
		&t.Severity,
		&t.Description,
		&t.Evidence,
		&t.Status,
		&t.Assignment,
		&t.Timeline,
		&t.ExternalSystems,
		&t.Priority,
		&t.SLA,
		&t.Feedback,
		&t.Cost,
		&t.SubmittedBy,
		&t.SubmittedAt,
		&t.UpdatedAt,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}
	t.Location.Address = details.Address
	t.Location.Landmark = details.Landmark
	t.Location.Pincode = details.Pincode
	t.Location.City = details.City
	t.Location.State = details.State
	if t.Timeline == nil {
		t.Timeline = []models.TimelineEntry{}
	}
	if t.ExternalSystems == nil {
		t.ExternalSystems = []models.ExternalSync{}
	}
	return t, nil
}

func collectTickets(rows pgx.Rows, op string) ([]*models.Ticket, error) {
	defer rows.Close()
	tickets := make([]*models.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket row in %s: %w", op, err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error ticket iteration in %s: %w", op, err)
	}
	return tickets, nil
}

func externalOf(t *models.Ticket) []models.ExternalSync {
	if t.ExternalSystems == nil {
		return []models.ExternalSync{}
	}
	return t.ExternalSystems
}

// Create сохраняет заявку. Коллизия ticket_id возвращает models.ErrConflict.
func (r *TicketRepository) Create(ctx context.Context, t *models.Ticket) error {
	query := `
		INSERT INTO tickets (
			id, ticket_id, hazard_id, location, location_details,
			issue_type, severity, description, evidence, status,
			assignment, timeline, external_systems, priority, sla,
			feedback, cost, submitted_by, submitted_at, updated_at, version
		)
		VALUES (
			$1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22
		);
	`
	_, err := r.db.Exec(ctx, query,
		t.ID,
		t.TicketID,
		t.HazardID,
		t.Location.Longitude,
		t.Location.Latitude,
		detailsOf(t.Location),
		t.IssueType,
		t.Severity,
		t.Description,
		t.Evidence,
		t.Status,
		t.Assignment,
		t.Timeline,
		externalOf(t),
		t.Priority,
		t.SLA,
		t.Feedback,
		t.Cost,
		t.SubmittedBy,
		t.SubmittedAt,
		t.UpdatedAt,
		t.Version,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == ticketIDConstraint {
			return fmt.Errorf("ticket id %s already exists: %w", t.TicketID, models.ErrConflict)
		}
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1;`
	t, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticket with id %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get ticket by id: %w", err)
	}
	return t, nil
}

// Update сохраняет состояние заявки при совпадении version. external_systems
// пишет только RecordSync, ticket_id и сроки SLA неизменны.
func (r *TicketRepository) Update(ctx context.Context, t *models.Ticket) error {
	query := `
		UPDATE tickets SET
			hazard_id = $3,
			location_details = $4,
			description = $5,
			evidence = $6,
			status = $7,
			assignment = $8,
			timeline = $9,
			sla = $10,
			feedback = $11,
			cost = $12,
			updated_at = $13,
			version = version + 1
		WHERE id = $1 AND version = $2;
	`
	cmdTag, err := r.db.Exec(ctx, query,
		t.ID,
		t.Version,
		t.HazardID,
		detailsOf(t.Location),
		t.Description,
		t.Evidence,
		t.Status,
		t.Assignment,
		t.Timeline,
		t.SLA,
		t.Feedback,
		t.Cost,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1);`, t.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check ticket existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("ticket with id %s not found for update: %w", t.ID, models.ErrNotFound)
		}
		return fmt.Errorf("ticket %s: %w", t.ID, models.ErrVersionMismatch)
	}
	t.Version++
	return nil
}

func (r *TicketRepository) List(ctx context.Context, filter models.TicketFilter) ([]*models.Ticket, error) {
	c := &conditions{}
	if filter.Status != "" {
		c.add("status = $%d", filter.Status)
	}
	if filter.Severity != "" {
		c.add("severity = $%d", filter.Severity)
	}
	if filter.Priority != "" {
		c.add("priority = $%d", filter.Priority)
	}
	if filter.IssueType != "" {
		c.add("issue_type = $%d", filter.IssueType)
	}
	if filter.HazardID != nil {
		c.add("hazard_id = $%d", *filter.HazardID)
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets` + c.where() +
		` ORDER BY submitted_at DESC, id` + c.paginate(filter.Page, filter.PageSize)

	rows, err := r.db.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return collectTickets(rows, "List")
}

// ListOpen - все нетерминальные заявки, старые первыми
func (r *TicketRepository) ListOpen(ctx context.Context) ([]*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + openTicket + ` ORDER BY submitted_at ASC;`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open tickets: %w", err)
	}
	return collectTickets(rows, "ListOpen")
}

// RecordSync добавляет или заменяет запись синхронизации под блокировкой строки
func (r *TicketRepository) RecordSync(ctx context.Context, id uuid.UUID, sync models.ExternalSync) error {
	return postgres.RunInTx(ctx, r.db, func(tx pgx.Tx) error {
		t := &models.Ticket{ID: id}
		err := tx.QueryRow(ctx, `SELECT external_systems FROM tickets WHERE id = $1 FOR UPDATE;`, id).Scan(&t.ExternalSystems)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("ticket with id %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("failed to lock ticket for sync: %w", err)
		}
		t.RecordSync(sync)
		if _, err := tx.Exec(ctx, `UPDATE tickets SET external_systems = $2 WHERE id = $1;`, id, externalOf(t)); err != nil {
			return fmt.Errorf("failed to record ticket sync: %w", err)
		}
		return nil
	})
}

func (r *TicketRepository) CountBy(ctx context.Context, dimension string, since time.Time) (map[string]int, error) {
	c := &conditions{}
	c.add("submitted_at >= $%d", since)
	return countBy(ctx, r.db, "tickets", ticketStatsColumns, dimension, c)
}
