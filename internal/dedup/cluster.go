package dedup

import "github.com/shenikar/road_hazard_engine/internal/models"

// Cluster разбивает список на группы дубликатов (размер >= 2).
// Каждая запись сравнивается только с якорем группы, а не со всеми ее
// членами: если A~B и B~C, но не A~C, то C не попадет в группу A.
func Cluster(hazards []*models.Hazard) [][]*models.Hazard {
	used := make([]bool, len(hazards))
	groups := make([][]*models.Hazard, 0)

	for i, anchor := range hazards {
		if used[i] {
			continue
		}
		group := []*models.Hazard{anchor}
		for j := i + 1; j < len(hazards); j++ {
			if used[j] {
				continue
			}
			if Similar(anchor, hazards[j]) {
				group = append(group, hazards[j])
				used[j] = true
			}
		}
		if len(group) > 1 {
			used[i] = true
			groups = append(groups, group)
		}
	}
	return groups
}
