// Package dedup группирует и сливает почти-дубликаты опасностей,
// которые не совпали по отпечатку (соседние ячейки округления или окна).
package dedup

import (
	"math"
	"time"

	"github.com/shenikar/road_hazard_engine/internal/models"
)

const (
	earthRadiusKm = 6371.0

	// MaxDistanceKm - максимальное расстояние между дубликатами
	MaxDistanceKm = 0.1
	// MaxTimeDelta - максимальная разница во времени обнаружения
	MaxTimeDelta = time.Hour
)

// HaversineKm - расстояние по большой окружности в километрах
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Similar: тот же тип, не дальше 100 м и не дальше часа друг от друга
func Similar(a, b *models.Hazard) bool {
	if a.Type != b.Type {
		return false
	}
	if HaversineKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude) > MaxDistanceKm {
		return false
	}
	dt := a.DetectedAt.Sub(b.DetectedAt)
	if dt < 0 {
		dt = -dt
	}
	return dt <= MaxTimeDelta
}
