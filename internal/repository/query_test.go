package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditions_Where(t *testing.T) {
	var c conditions
	assert.Empty(t, c.where())

	c.add("type = $%d", "pothole")
	c.raw("merged_into IS NULL")
	c.add("severity = $%d", "high")

	assert.Equal(t, " WHERE type = $1 AND merged_into IS NULL AND severity = $2", c.where())
	assert.Equal(t, []any{"pothole", "high"}, c.args)
}

func TestConditions_Paginate(t *testing.T) {
	var c conditions
	c.add("status = $%d", "active")

	limit := c.paginate(3, 10)

	assert.Equal(t, " LIMIT $2 OFFSET $3", limit)
	assert.Equal(t, []any{"active", 10, 20}, c.args)

	var d conditions
	assert.Equal(t, " LIMIT $1 OFFSET $2", d.paginate(0, 0))
	assert.Equal(t, []any{20, 0}, d.args)
}

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "hazards_fingerprint_active_key"})

	name, ok := uniqueViolation(err)
	assert.True(t, ok)
	assert.Equal(t, "hazards_fingerprint_active_key", name)

	_, ok = uniqueViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})
	assert.False(t, ok)
	_, ok = uniqueViolation(errors.New("boom"))
	assert.False(t, ok)
}

func TestCountBy_UnknownDimension(t *testing.T) {
	_, err := countBy(context.Background(), nil, "hazards", map[string]string{"type": "type"}, "color", &conditions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported hazards stats dimension "color"`)
}

func TestMergeTicketsQuery_UnionsStoredTickets(t *testing.T) {
	// Заявки выжившей объединяются с сохраненными, а не перезаписывают их
	assert.Contains(t, mergeTicketsQuery, "unnest(ticket_ids || $2::uuid[])")
	assert.Contains(t, mergeTicketsQuery, "GROUP BY t.id")
	assert.NotContains(t, mergeTicketsQuery, "ticket_ids = $2")
}
