package models

import (
	"time"
)

// LocationCheck - запрос пользователя "что опасного рядом со мной"
type LocationCheck struct {
	UserID       string    `json:"user_id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	RadiusMeters float64   `json:"radius_meters"`
	CheckedAt    time.Time `json:"checked_at"`
}

// LocationReport - ответ на проверку: открытые опасности рядом, по убыванию риска
type LocationReport struct {
	Hazards     []*Hazard `json:"hazards"`
	IsDangerous bool      `json:"is_dangerous"`
	CheckedAt   time.Time `json:"checked_at"`
}
