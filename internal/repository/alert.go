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
)

const alertColumns = `
	id, user_id, type, priority, title, message, voice,
	ST_X(location::geometry) AS longitude,
	ST_Y(location::geometry) AS latitude,
	radius_meters, hazard_id, delivery, interaction, metadata,
	scheduled_for, expires_at, created_at, updated_at, version`

var alertStatsColumns = map[string]string{
	"type":     "type",
	"priority": "priority",
	"status":   "delivery_status",
}

type AlertRepository struct {
	db *pgxpool.Pool
}

func NewAlertRepository(db *pgxpool.Pool) service.AlertRepository {
	return &AlertRepository{db: db}
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	a := &models.Alert{}
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Type,
		&a.Priority,
		&a.Title,
		&a.Message,
		&a.Voice,
		&a.Longitude,
		&a.Latitude,
		&a.RadiusMeters,
		&a.HazardID,
		&a.Delivery,
		&a.Interaction,
		&a.Metadata,
		&a.ScheduledFor,
		&a.ExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Version,
	)
	if err != nil {
		return nil, err
	}
	if a.Delivery.Channels == nil {
		a.Delivery.Channels = []string{}
	}
	return a, nil
}

// Create сохраняет новое уведомление
func (r *AlertRepository) Create(ctx context.Context, a *models.Alert) error {
	query := `
		INSERT INTO alerts (
			id, user_id, type, priority, title, message, voice, location,
			radius_meters, hazard_id, delivery_status, delivery, dismissed,
			interaction, metadata, scheduled_for, expires_at, created_at, updated_at, version
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, ST_SetSRID(ST_MakePoint($8, $9), 4326)::geography,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21
		);
	`
	_, err := r.db.Exec(ctx, query,
		a.ID,
		a.UserID,
		a.Type,
		a.Priority,
		a.Title,
		a.Message,
		a.Voice,
		a.Longitude,
		a.Latitude,
		a.RadiusMeters,
		a.HazardID,
		a.Delivery.Status,
		a.Delivery,
		a.Interaction.Dismissed,
		a.Interaction,
		a.Metadata,
		a.ScheduledFor,
		a.ExpiresAt,
		a.CreatedAt,
		a.UpdatedAt,
		a.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetByID возвращает уведомление по UUID
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1;`
	a, err := scanAlert(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("alert with id %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert by id: %w", err)
	}
	return a, nil
}

// Update сохраняет состояние доставки и взаимодействия при совпадении version.
// При успехе version увеличивается и у переданной структуры.
func (r *AlertRepository) Update(ctx context.Context, a *models.Alert) error {
	query := `
		UPDATE alerts SET
			delivery_status = $3,
			delivery = $4,
			dismissed = $5,
			interaction = $6,
			hazard_id = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $2;
	`
	cmdTag, err := r.db.Exec(ctx, query,
		a.ID,
		a.Version,
		a.Delivery.Status,
		a.Delivery,
		a.Interaction.Dismissed,
		a.Interaction,
		a.HazardID,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.missing(ctx, a.ID)
	}
	a.Version++
	return nil
}

// missing различает отсутствующую запись и устаревшую версию
func (r *AlertRepository) missing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1);`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check alert existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("alert with id %s not found for update: %w", id, models.ErrNotFound)
	}
	return fmt.Errorf("alert %s: %w", id, models.ErrVersionMismatch)
}

// List возвращает уведомления по фильтру. RelevantOnly применяет
// предикат актуальности на момент filter.Now.
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	c := &conditions{}
	if filter.UserID != "" {
		c.add("user_id = $%d", filter.UserID)
	}
	if filter.Type != "" {
		c.add("type = $%d", filter.Type)
	}
	if filter.Priority != "" {
		c.add("priority = $%d", filter.Priority)
	}
	if filter.Status != "" {
		c.add("delivery_status = $%d", filter.Status)
	}
	if filter.RelevantOnly {
		now := filter.Now
		if now.IsZero() {
			now = time.Now()
		}
		c.add("expires_at > $%d", now)
		c.raw("NOT dismissed")
		c.raw("delivery_status <> 'failed'")
	}
	query := `SELECT ` + alertColumns + ` FROM alerts` + c.where() +
		` ORDER BY created_at DESC, id` + c.paginate(filter.Page, filter.PageSize)

	rows, err := r.db.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*models.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error alert list iteration: %w", err)
	}
	return alerts, nil
}

func (r *AlertRepository) CountBy(ctx context.Context, dimension string, since time.Time) (map[string]int, error) {
	c := &conditions{}
	c.add("created_at >= $%d", since)
	return countBy(ctx, r.db, "alerts", alertStatsColumns, dimension, c)
}
