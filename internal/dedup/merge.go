package dedup

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/models"
)

// ErrEmptyGroup - слияние пустой группы
var ErrEmptyGroup = errors.New("dedup: empty merge group")

const (
	boostPerMember = 0.02
	maxBoost       = 0.1
)

// MergeResult - выжившая запись и идентификаторы поглощенных
type MergeResult struct {
	Survivor *models.Hazard
	Absorbed []uuid.UUID
}

// Merge сворачивает группу дубликатов в одну запись.
// Основная запись - с наибольшей confidence, при равенстве более ранняя;
// ее тип, координаты и данные детекции сохраняются как есть.
// Результат не сохраняется: это задача вызывающего кода.
func Merge(group []*models.Hazard, now time.Time) (*MergeResult, error) {
	if len(group) == 0 {
		return nil, ErrEmptyGroup
	}
	if len(group) == 1 {
		return &MergeResult{Survivor: group[0], Absorbed: []uuid.UUID{}}, nil
	}

	sorted := make([]*models.Hazard, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].DetectedAt.Before(sorted[j].DetectedAt)
	})

	primary := sorted[0]
	merged := *primary
	merged.Feedback = models.Feedback{Reports: []models.FeedbackReport{}}
	merged.Metadata = primary.Metadata.Clone()
	merged.TicketIDs = []uuid.UUID{}

	var confidenceSum float64
	seenTickets := make(map[uuid.UUID]struct{})
	mergedFrom := make([]uuid.UUID, 0, len(group)-1)
	absorbed := make([]uuid.UUID, 0, len(group)-1)

	// порядок отзывов и тикетов - как во входной группе
	for _, h := range group {
		merged.Feedback.Upvotes += h.Feedback.Upvotes
		merged.Feedback.Downvotes += h.Feedback.Downvotes
		merged.Feedback.Reports = append(merged.Feedback.Reports, h.Feedback.Reports...)
		merged.Severity = models.MaxSeverity(merged.Severity, h.Severity)
		confidenceSum += h.Confidence
		for _, tid := range h.TicketIDs {
			if _, ok := seenTickets[tid]; !ok {
				seenTickets[tid] = struct{}{}
				merged.TicketIDs = append(merged.TicketIDs, tid)
			}
		}
		if h.Merge != nil {
			mergedFrom = append(mergedFrom, h.Merge.MergedFrom...)
		}
		if h.ID != primary.ID {
			absorbed = append(absorbed, h.ID)
			mergedFrom = append(mergedFrom, h.ID)
		}
	}

	n := float64(len(group))
	boost := math.Min(maxBoost, boostPerMember*n)
	merged.Confidence = math.Min(1, confidenceSum/n+boost)

	merged.Merge = &models.MergeInfo{
		MergedFrom: mergedFrom,
		MergeCount: len(mergedFrom) + 1,
		MergedAt:   now.UTC(),
	}
	merged.UpdatedAt = now.UTC()

	return &MergeResult{Survivor: &merged, Absorbed: absorbed}, nil
}
