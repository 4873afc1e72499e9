package risk

import "github.com/shenikar/road_hazard_engine/internal/models"

// Thresholds - минимальная confidence для каждого уровня
type Thresholds struct {
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// SeverityTable - пороги по типу опасности
type SeverityTable map[models.HazardType]Thresholds

func DefaultSeverityTable() SeverityTable {
	return SeverityTable{
		models.HazardPothole:        {Medium: 0.6, High: 0.8, Critical: 0.95},
		models.HazardDebris:         {Medium: 0.7, High: 0.9, Critical: 0.98},
		models.HazardSpeedBreaker:   {Medium: 0.5, High: 0.8, Critical: 0.95},
		models.HazardStalledVehicle: {Medium: 0.6, High: 0.85, Critical: 0.95},
		models.HazardConstruction:   {Medium: 0.5, High: 0.8, Critical: 0.9},
		models.HazardFlooding:       {Medium: 0.7, High: 0.9, Critical: 0.98},
	}
}

// Classify выводит severity из типа и confidence, когда классификатор
// ее не прислал. Для неизвестных типов - low.
func (t SeverityTable) Classify(hazardType models.HazardType, confidence float64) models.Severity {
	th, ok := t[hazardType]
	if !ok {
		return models.SeverityLow
	}
	switch {
	case confidence >= th.Critical:
		return models.SeverityCritical
	case confidence >= th.High:
		return models.SeverityHigh
	case confidence >= th.Medium:
		return models.SeverityMedium
	}
	return models.SeverityLow
}
