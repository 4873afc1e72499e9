package dedup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ~0.000898 градуса широты = 100 м
const metersToLat = 0.1 / 111.195

func hazardAt(hazardType models.HazardType, northMeters float64, at time.Time, confidence float64, severity models.Severity) *models.Hazard {
	return &models.Hazard{
		ID:         uuid.New(),
		Type:       hazardType,
		Severity:   severity,
		Confidence: confidence,
		Longitude:  77.2,
		Latitude:   28.6 + northMeters/100*metersToLat,
		Status:     models.HazardActive,
		Feedback:   models.Feedback{Reports: []models.FeedbackReport{}},
		TicketIDs:  []uuid.UUID{},
		DetectedAt: at,
	}
}

func TestHaversineKm(t *testing.T) {
	assert.InDelta(t, 0, HaversineKm(28.6, 77.2, 28.6, 77.2), 1e-9)
	// один градус широты ~ 111.19 км
	assert.InDelta(t, 111.19, HaversineKm(0, 0, 1, 0), 0.01)
}

func TestSimilar(t *testing.T) {
	a := hazardAt(models.HazardPothole, 0, testNow, 0.8, models.SeverityMedium)

	tests := []struct {
		name string
		b    *models.Hazard
		want bool
	}{
		{"close and recent", hazardAt(models.HazardPothole, 50, testNow.Add(30*time.Minute), 0.7, models.SeverityLow), true},
		{"exactly one hour apart", hazardAt(models.HazardPothole, 10, testNow.Add(time.Hour), 0.7, models.SeverityLow), true},
		{"other type", hazardAt(models.HazardDebris, 10, testNow, 0.7, models.SeverityLow), false},
		{"too far", hazardAt(models.HazardPothole, 150, testNow, 0.7, models.SeverityLow), false},
		{"too late", hazardAt(models.HazardPothole, 10, testNow.Add(61*time.Minute), 0.7, models.SeverityLow), false},
		{"earlier is symmetric", hazardAt(models.HazardPothole, 10, testNow.Add(-30*time.Minute), 0.7, models.SeverityLow), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Similar(a, tt.b))
			assert.Equal(t, tt.want, Similar(tt.b, a))
		})
	}
}

func TestCluster_AnchorBased(t *testing.T) {
	a := hazardAt(models.HazardPothole, 0, testNow, 0.8, models.SeverityMedium)
	b := hazardAt(models.HazardPothole, 80, testNow, 0.8, models.SeverityMedium)
	// c похожа на b, но не на якорь a
	c := hazardAt(models.HazardPothole, 160, testNow, 0.8, models.SeverityMedium)
	lone := hazardAt(models.HazardDebris, 0, testNow, 0.8, models.SeverityMedium)

	groups := Cluster([]*models.Hazard{a, b, c, lone})

	require.Len(t, groups, 1)
	assert.Equal(t, []*models.Hazard{a, b}, groups[0])
}

func TestCluster_NoGroups(t *testing.T) {
	assert.Empty(t, Cluster(nil))
	assert.Empty(t, Cluster([]*models.Hazard{hazardAt(models.HazardPothole, 0, testNow, 0.8, models.SeverityMedium)}))
}

func TestMerge_ConfidenceAndSeverity(t *testing.T) {
	low := hazardAt(models.HazardPothole, 0, testNow, 0.6, models.SeverityHigh)
	high := hazardAt(models.HazardPothole, 30, testNow.Add(time.Minute), 0.9, models.SeverityMedium)
	low.Feedback.Upvotes = 2
	high.Feedback.Upvotes = 1
	high.Feedback.Downvotes = 1
	shared := uuid.New()
	low.TicketIDs = []uuid.UUID{shared}
	high.TicketIDs = []uuid.UUID{shared, uuid.New()}

	result, err := Merge([]*models.Hazard{low, high}, testNow.Add(time.Hour))
	require.NoError(t, err)

	s := result.Survivor
	assert.Equal(t, high.ID, s.ID)
	assert.Equal(t, high.Latitude, s.Latitude)
	assert.InDelta(t, 0.79, s.Confidence, 1e-9)
	assert.Equal(t, models.SeverityHigh, s.Severity)
	assert.Equal(t, 3, s.Feedback.Upvotes)
	assert.Equal(t, 1, s.Feedback.Downvotes)
	assert.Len(t, s.TicketIDs, 2)
	assert.Equal(t, []uuid.UUID{low.ID}, result.Absorbed)
	require.NotNil(t, s.Merge)
	assert.Equal(t, []uuid.UUID{low.ID}, s.Merge.MergedFrom)
	assert.Equal(t, 2, s.Merge.MergeCount)

	// входные записи не изменяются
	assert.InDelta(t, 0.9, high.Confidence, 1e-9)
	assert.Nil(t, high.Merge)
}

func TestMerge_TiePrefersEarlier(t *testing.T) {
	later := hazardAt(models.HazardPothole, 0, testNow.Add(time.Minute), 0.8, models.SeverityLow)
	earlier := hazardAt(models.HazardPothole, 10, testNow, 0.8, models.SeverityLow)

	result, err := Merge([]*models.Hazard{later, earlier}, testNow)
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, result.Survivor.ID)
}

func TestMerge_BoostCappedAtOne(t *testing.T) {
	group := make([]*models.Hazard, 0, 6)
	for i := 0; i < 6; i++ {
		group = append(group, hazardAt(models.HazardPothole, float64(i), testNow, 0.98, models.SeverityCritical))
	}

	result, err := Merge(group, testNow)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.Survivor.Confidence, 1e-9)
	assert.Len(t, result.Absorbed, 5)
}

func TestMerge_CarriesPreviousMerges(t *testing.T) {
	old := uuid.New()
	a := hazardAt(models.HazardPothole, 0, testNow, 0.9, models.SeverityLow)
	a.Merge = &models.MergeInfo{MergedFrom: []uuid.UUID{old}, MergeCount: 2}
	b := hazardAt(models.HazardPothole, 10, testNow, 0.5, models.SeverityLow)

	result, err := Merge([]*models.Hazard{a, b}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{old, b.ID}, result.Survivor.Merge.MergedFrom)
	assert.Equal(t, 3, result.Survivor.Merge.MergeCount)
}

func TestMerge_Degenerate(t *testing.T) {
	_, err := Merge(nil, testNow)
	assert.ErrorIs(t, err, ErrEmptyGroup)

	single := hazardAt(models.HazardPothole, 0, testNow, 0.5, models.SeverityLow)
	result, err := Merge([]*models.Hazard{single}, testNow)
	require.NoError(t, err)
	assert.Same(t, single, result.Survivor)
	assert.Empty(t, result.Absorbed)
}
