package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shenikar/road_hazard_engine/internal/models"
)

const (
	maxUpdateAttempts = 3
	backgroundTimeout = 30 * time.Second

	defaultPageSize = 20
	maxPageSize     = 100
)

type options struct {
	now   func() time.Time
	spawn func(task func())
}

// Option настраивает сервис (часы, запуск фоновых задач)
type Option func(*options)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithSpawner подменяет запуск фоновых задач. По умолчанию - горутина.
func WithSpawner(spawn func(task func())) Option {
	return func(o *options) {
		o.spawn = spawn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:   time.Now,
		spawn: func(task func()) { go task() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// background отвязывает фоновую задачу от отмены запроса
func background(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
}

// retryOnConflict повторяет attempt при конкурентном изменении записи
func retryOnConflict(ctx context.Context, attempt func() error) error {
	var err error
	for i := 0; i < maxUpdateAttempts; i++ {
		err = attempt()
		if !errors.Is(err, models.ErrVersionMismatch) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

func checkDimension(dimension string, allowed ...string) error {
	for _, d := range allowed {
		if d == dimension {
			return nil
		}
	}
	return &models.ValidationError{
		Field:  "by",
		Reason: "must be one of " + strings.Join(allowed, ", "),
	}
}
