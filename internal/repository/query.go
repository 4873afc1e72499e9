package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier - общее подмножество pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conditions собирает WHERE с нумерованными плейсхолдерами
type conditions struct {
	clauses []string
	args    []any
}

// add добавляет условие; %d в expr заменяется номером аргумента
func (c *conditions) add(expr string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(expr, len(c.args)))
}

// raw добавляет условие без аргументов
func (c *conditions) raw(expr string) {
	c.clauses = append(c.clauses, expr)
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// paginate добавляет LIMIT/OFFSET и возвращает их текст
func (c *conditions) paginate(page, pageSize int) string {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	c.args = append(c.args, pageSize, (page-1)*pageSize)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(c.args)-1, len(c.args))
}

// uniqueViolation возвращает имя нарушенного ограничения уникальности
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// countBy выполняет GROUP BY по колонке из белого списка
func countBy(ctx context.Context, q querier, table string, columns map[string]string, dimension string, c *conditions) (map[string]int, error) {
	column, ok := columns[dimension]
	if !ok {
		return nil, fmt.Errorf("unsupported %s stats dimension %q", table, dimension)
	}
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s", column, table, c.where(), column)
	rows, err := q.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s by %s: %w", table, dimension, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan %s count row: %w", table, err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error %s count iteration: %w", table, err)
	}
	return counts, nil
}
