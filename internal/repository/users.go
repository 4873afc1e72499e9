package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/road_hazard_engine/internal/service"
)

const userLocationsKey = "user_locations"

// UserDirectory хранит последние координаты пользователей в Redis GEO
type UserDirectory struct {
	redisClient *redis.Client
}

func NewUserDirectory(redisClient *redis.Client) service.UserDirectory {
	return &UserDirectory{redisClient: redisClient}
}

// UpdateLocation запоминает последнюю позицию пользователя
func (d *UserDirectory) UpdateLocation(ctx context.Context, userID string, longitude, latitude float64) error {
	err := d.redisClient.GeoAdd(ctx, userLocationsKey, &redis.GeoLocation{
		Name:      userID,
		Longitude: longitude,
		Latitude:  latitude,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to update user location: %w", err)
	}
	return nil
}

// NearbyUsers - пользователи в радиусе от точки, ближайшие первыми
func (d *UserDirectory) NearbyUsers(ctx context.Context, longitude, latitude, radiusMeters float64) ([]string, error) {
	users, err := d.redisClient.GeoSearch(ctx, userLocationsKey, &redis.GeoSearchQuery{
		Longitude:  longitude,
		Latitude:   latitude,
		Radius:     radiusMeters,
		RadiusUnit: "m",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to search nearby users: %w", err)
	}
	return users, nil
}
