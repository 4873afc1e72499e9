package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/service"
)

// HazardCache - cache-aside для опасностей в Redis
type HazardCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewHazardCache(redisClient *redis.Client, ttl time.Duration) service.HazardCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &HazardCache{redisClient: redisClient, ttl: ttl}
}

func hazardKey(id uuid.UUID) string {
	return fmt.Sprintf("hazard:%s", id.String())
}

// Get пытается получить опасность из Redis. Промах - (nil, nil).
func (c *HazardCache) Get(ctx context.Context, id uuid.UUID) (*models.Hazard, error) {
	val, err := c.redisClient.Get(ctx, hazardKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get hazard from cache: %w", err)
	}

	hazard := &models.Hazard{}
	if err := json.Unmarshal(val, hazard); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hazard from cache: %w", err)
	}
	return hazard, nil
}

// Set сохраняет опасность в Redis
func (c *HazardCache) Set(ctx context.Context, hazard *models.Hazard) error {
	val, err := json.Marshal(hazard)
	if err != nil {
		return fmt.Errorf("failed to marshal hazard for cache: %w", err)
	}
	if err := c.redisClient.Set(ctx, hazardKey(hazard.ID), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set hazard in cache: %w", err)
	}
	return nil
}

// Invalidate удаляет опасность из кэша
func (c *HazardCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.redisClient.Del(ctx, hazardKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate hazard cache: %w", err)
	}
	return nil
}
