package risk

import (
	"sort"

	"github.com/shenikar/road_hazard_engine/internal/models"
)

var severityWeight = map[models.Severity]float64{
	models.SeverityLow:      1,
	models.SeverityMedium:   2,
	models.SeverityHigh:     3,
	models.SeverityCritical: 4,
}

// Score = вес(severity) * confidence + (upvotes - downvotes) / 10
func Score(h *models.Hazard) float64 {
	return severityWeight[h.Severity]*h.Confidence + float64(h.NetVotes())/10
}

// Rank сортирует по убыванию риска, при равенстве - сначала более свежие
func Rank(hazards []*models.Hazard) {
	sort.SliceStable(hazards, func(i, j int) bool {
		si, sj := Score(hazards[i]), Score(hazards[j])
		if si != sj {
			return si > sj
		}
		return hazards[i].DetectedAt.After(hazards[j].DetectedAt)
	})
}

// AlertWorthy - опасность требует уведомления (high и выше)
func AlertWorthy(s models.Severity) bool {
	return s.Rank() >= models.SeverityHigh.Rank()
}

// TicketWorthy - опасность требует заявки на ремонт
func TicketWorthy(s models.Severity) bool {
	return s == models.SeverityCritical
}
