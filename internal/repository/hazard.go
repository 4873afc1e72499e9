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
	fingerprintConstraint = "hazards_fingerprint_active_key"

	hazardColumns = `
		id,
		ST_X(location::geometry) AS longitude,
		ST_Y(location::geometry) AS latitude,
		address, city, state, country,
		type, severity, confidence,
		detection, vehicle, status,
		reports, upvotes, downvotes,
		fingerprint, metadata, merge, merged_into,
		reported_by, ticket_ids, detected_at, updated_at`

	// открытые опасности: не поглощены и не закрыты
	openHazard = "merged_into IS NULL AND status NOT IN ('fixed', 'false_positive')"
)

var hazardStatsColumns = map[string]string{
	"type":     "type",
	"severity": "severity",
	"status":   "status",
}

type HazardRepository struct {
	db *pgxpool.Pool
}

func NewHazardRepository(db *pgxpool.Pool) service.HazardRepository {
	return &HazardRepository{db: db}
}

func scanHazard(row pgx.Row) (*models.Hazard, error) {
	h := &models.Hazard{}
	err := row.Scan(
		&h.ID,
		&h.Longitude,
		&h.Latitude,
		&h.Address,
		&h.City,
		&h.State,
		&h.Country,
		&h.Type,
		&h.Severity,
		&h.Confidence,
		&h.Detection,
		&h.Vehicle,
		&h.Status,
		&h.Feedback.Reports,
		&h.Feedback.Upvotes,
		&h.Feedback.Downvotes,
		&h.Fingerprint,
		&h.Metadata,
		&h.Merge,
		&h.MergedInto,
		&h.ReportedBy,
		&h.TicketIDs,
		&h.DetectedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if h.Feedback.Reports == nil {
		h.Feedback.Reports = []models.FeedbackReport{}
	}
	if h.TicketIDs == nil {
		h.TicketIDs = []uuid.UUID{}
	}
	return h, nil
}

func collectHazards(rows pgx.Rows, op string) ([]*models.Hazard, error) {
	defer rows.Close()
	hazards := make([]*models.Hazard, 0)
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hazard row in %s: %w", op, err)
		}
		hazards = append(hazards, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error hazard iteration in %s: %w", op, err)
	}
	return hazards, nil
}

func reportsOf(h *models.Hazard) []models.FeedbackReport {
	if h.Feedback.Reports == nil {
		return []models.FeedbackReport{}
	}
	return h.Feedback.Reports
}

func ticketIDsOf(h *models.Hazard) []uuid.UUID {
	if h.TicketIDs == nil {
		return []uuid.UUID{}
	}
	return h.TicketIDs
}

// Create вставляет опасность. Уникальность отпечатка обеспечивает частичный
// уникальный индекс: при коллизии возвращается *models.ConflictError.
func (r *HazardRepository) Create(ctx context.Context, h *models.Hazard) error {
	query := `
		INSERT INTO hazards (
			id, location, address, city, state, country,
			type, severity, confidence, detection, vehicle, status,
			reports, upvotes, downvotes, fingerprint, metadata,
			reported_by, ticket_ids, detected_at, updated_at
		)
		VALUES (
			$1, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22
		);
	`
	_, err := r.db.Exec(ctx, query,
		h.ID,
		h.Longitude,
		h.Latitude,
		h.Address,
		h.City,
		h.State,
		h.Country,
		h.Type,
		h.Severity,
		h.Confidence,
		h.Detection,
		h.Vehicle,
		h.Status,
		reportsOf(h),
		h.Feedback.Upvotes,
		h.Feedback.Downvotes,
		h.Fingerprint,
		h.Metadata,
		h.ReportedBy,
		ticketIDsOf(h),
		h.DetectedAt,
		h.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	if constraint, ok := uniqueViolation(err); ok && constraint == fingerprintConstraint {
		var existing uuid.UUID
		lookup := `SELECT id FROM hazards WHERE fingerprint = $1 AND merged_into IS NULL;`
		if lerr := r.db.QueryRow(ctx, lookup, h.Fingerprint).Scan(&existing); lerr != nil {
			return fmt.Errorf("fingerprint %s is taken: %w", h.Fingerprint, models.ErrConflict)
		}
		return &models.ConflictError{ExistingID: existing, Fingerprint: h.Fingerprint}
	}
	return fmt.Errorf("failed to create hazard: %w", err)
}

// GetByID возвращает опасность по UUID, включая поглощенные записи
func (r *HazardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Hazard, error) {
	query := `SELECT ` + hazardColumns + ` FROM hazards WHERE id = $1;`
	h, err := scanHazard(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("hazard with id %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get hazard by id: %w", err)
	}
	return h, nil
}

// Update перезаписывает изменяемые поля. Отпечаток, ticket_ids и merged_into
// здесь не меняются: у них отдельные атомарные операции.
func (r *HazardRepository) Update(ctx context.Context, h *models.Hazard) error {
	return updateHazard(ctx, r.db, h)
}

func updateHazard(ctx context.Context, q querier, h *models.Hazard) error {
	query := `
		UPDATE hazards SET
			address = $2,
			city = $3,
			state = $4,
			country = $5,
			severity = $6,
			confidence = $7,
			detection = $8,
			vehicle = $9,
			status = $10,
			reports = $11,
			upvotes = $12,
			downvotes = $13,
			metadata = $14,
			merge = $15,
			updated_at = $16
		WHERE id = $1;
	`
	cmdTag, err := q.Exec(ctx, query,
		h.ID,
		h.Address,
		h.City,
		h.State,
		h.Country,
		h.Severity,
		h.Confidence,
		h.Detection,
		h.Vehicle,
		h.Status,
		reportsOf(h),
		h.Feedback.Upvotes,
		h.Feedback.Downvotes,
		h.Metadata,
		h.Merge,
		h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update hazard: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("hazard with id %s not found for update: %w", h.ID, models.ErrNotFound)
	}
	return nil
}

// Delete - административное удаление записи
func (r *HazardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM hazards WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete hazard: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("hazard with id %s not found for delete: %w", id, models.ErrNotFound)
	}
	return nil
}

// List возвращает не поглощенные опасности с фильтрами и пагинацией
func (r *HazardRepository) List(ctx context.Context, filter models.HazardFilter) ([]*models.Hazard, error) {
	c := &conditions{}
	c.raw("merged_into IS NULL")
	if filter.Type != "" {
		c.add("type = $%d", filter.Type)
	}
	if filter.Severity != "" {
		c.add("severity = $%d", filter.Severity)
	}
	if filter.Status != "" {
		c.add("status = $%d", filter.Status)
	}
	query := `SELECT ` + hazardColumns + ` FROM hazards` + c.where() +
		` ORDER BY detected_at DESC, id` + c.paginate(filter.Page, filter.PageSize)

	rows, err := r.db.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hazards: %w", err)
	}
	return collectHazards(rows, "List")
}

// FindNearest - ближайшие N открытых опасностей в радиусе от точки
func (r *HazardRepository) FindNearest(ctx context.Context, q models.NearbyQuery) ([]*models.Hazard, error) {
	c := &conditions{args: []any{q.Longitude, q.Latitude, q.RadiusMeters}}
	c.raw(openHazard)
	c.raw("ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)")
	if q.Type != "" {
		c.add("type = $%d", q.Type)
	}
	c.args = append(c.args, q.Limit)
	query := fmt.Sprintf(`SELECT %s FROM hazards%s
		ORDER BY location <-> ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		LIMIT $%d;`, hazardColumns, c.where(), len(c.args))

	rows, err := r.db.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearest hazards: %w", err)
	}
	return collectHazards(rows, "FindNearest")
}

// FindInBounds - открытые опасности внутри прямоугольника (для тепловой карты)
func (r *HazardRepository) FindInBounds(ctx context.Context, box models.BoundingBox) ([]*models.Hazard, error) {
	query := `SELECT ` + hazardColumns + ` FROM hazards
		WHERE ` + openHazard + `
			AND location::geometry && ST_MakeEnvelope($1, $2, $3, $4, 4326);`
	rows, err := r.db.Query(ctx, query, box.MinLongitude, box.MinLatitude, box.MaxLongitude, box.MaxLatitude)
	if err != nil {
		return nil, fmt.Errorf("failed to find hazards in bounds: %w", err)
	}
	return collectHazards(rows, "FindInBounds")
}

// ListForDedup - кандидаты на слияние в окне [since, until) в порядке обнаружения
func (r *HazardRepository) ListForDedup(ctx context.Context, since, until time.Time) ([]*models.Hazard, error) {
	query := `SELECT ` + hazardColumns + ` FROM hazards
		WHERE ` + openHazard + `
			AND detected_at >= $1 AND detected_at < $2
		ORDER BY detected_at ASC, id;`
	rows, err := r.db.Query(ctx, query, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list hazards for dedup: %w", err)
	}
	return collectHazards(rows, "ListForDedup")
}

// mergeTicketsQuery объединяет заявки выжившей с уже сохраненными,
// сохраняя порядок первого появления. Заявки, привязанные после чтения
// группы, не теряются.
const mergeTicketsQuery = `
	UPDATE hazards SET ticket_ids = ARRAY(
		SELECT t.id FROM unnest(ticket_ids || $2::uuid[]) WITH ORDINALITY AS t(id, n)
		GROUP BY t.id
		ORDER BY min(t.n)
	)
	WHERE id = $1;`

// ApplyMerge в одной транзакции помечает поглощенные записи, сохраняет
// выжившую и переносит на нее ссылки уведомлений и заявок.
// Если кто-то из группы уже поглощен, транзакция откатывается.
func (r *HazardRepository) ApplyMerge(ctx context.Context, survivor *models.Hazard, absorbed []uuid.UUID) error {
	if len(absorbed) == 0 {
		return nil
	}
	err := postgres.RunInTx(ctx, r.db, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `
			UPDATE hazards SET merged_into = $1, updated_at = $2
			WHERE id = ANY($3) AND id <> $1 AND merged_into IS NULL;`,
			survivor.ID, survivor.UpdatedAt, absorbed,
		)
		if err != nil {
			return fmt.Errorf("failed to mark absorbed hazards: %w", err)
		}
		if cmdTag.RowsAffected() != int64(len(absorbed)) {
			return fmt.Errorf("merge group changed concurrently: %w", models.ErrVersionMismatch)
		}

		if err := updateHazard(ctx, tx, survivor); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, mergeTicketsQuery, survivor.ID, ticketIDsOf(survivor)); err != nil {
			return fmt.Errorf("failed to update survivor tickets: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE alerts SET hazard_id = $1 WHERE hazard_id = ANY($2);`, survivor.ID, absorbed); err != nil {
			return fmt.Errorf("failed to repoint alerts: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE tickets SET hazard_id = $1 WHERE hazard_id = ANY($2);`, survivor.ID, absorbed); err != nil {
			return fmt.Errorf("failed to repoint tickets: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply merge into %s: %w", survivor.ID, err)
	}
	return nil
}

// AttachTicket атомарно добавляет заявку в ticket_ids без дублей
func (r *HazardRepository) AttachTicket(ctx context.Context, hazardID, ticketID uuid.UUID) error {
	query := `
		UPDATE hazards SET
			ticket_ids = CASE WHEN $2::uuid = ANY(ticket_ids) THEN ticket_ids ELSE array_append(ticket_ids, $2::uuid) END,
			updated_at = NOW()
		WHERE id = $1;
	`
	cmdTag, err := r.db.Exec(ctx, query, hazardID, ticketID)
	if err != nil {
		return fmt.Errorf("failed to attach ticket to hazard: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("hazard with id %s: %w", hazardID, models.ErrNotFound)
	}
	return nil
}

// CountBy группирует не поглощенные опасности по dimension с момента since
func (r *HazardRepository) CountBy(ctx context.Context, dimension string, since time.Time) (map[string]int, error) {
	c := &conditions{}
	c.raw("merged_into IS NULL")
	c.add("detected_at >= $%d", since)
	return countBy(ctx, r.db, "hazards", hazardStatsColumns, dimension, c)
}
