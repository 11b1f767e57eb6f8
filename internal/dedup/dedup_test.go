package dedup

import (
	"testing"
	"time"

	"github.com/imcoderdev/emergency-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func draftAt(lat, lon float64) *models.Incident {
	return &models.Incident{
		Type:      models.TypeFire,
		Latitude:  ptr(lat),
		Longitude: ptr(lon),
	}
}

func candidate(lat, lon float64, age time.Duration) *models.Incident {
	return &models.Incident{
		Type:       models.TypeFire,
		Status:     models.StatusReported,
		Latitude:   ptr(lat),
		Longitude:  ptr(lon),
		ReportedAt: testNow.Add(-age),
	}
}

func TestFindDuplicates_EmptyPool(t *testing.T) {
	matches := FindDuplicates(draftAt(12.9716, 77.5946), nil, testNow)
	assert.Empty(t, matches)
}

func TestFindDuplicates_DifferentTypeExcluded(t *testing.T) {
	pool := []*models.Incident{candidate(12.9716, 77.5946, time.Minute)}
	pool[0].Type = models.TypeCrime

	matches := FindDuplicates(draftAt(12.9716, 77.5946), pool, testNow)
	assert.Empty(t, matches)
}

func TestFindDuplicates_TerminalStatusExcluded(t *testing.T) {
	resolved := candidate(12.9716, 77.5946, time.Minute)
	resolved.Status = models.StatusResolved
	closed := candidate(12.9716, 77.5946, time.Minute)
	closed.Status = models.StatusClosed

	matches := FindDuplicates(draftAt(12.9716, 77.5946), []*models.Incident{resolved, closed}, testNow)
	assert.Empty(t, matches)
}

func TestFindDuplicates_OutsideWindowExcluded(t *testing.T) {
	// Та же точка, но 3 часа назад - за пределами 2-часового окна
	pool := []*models.Incident{candidate(12.9716, 77.5946, 3*time.Hour)}

	matches := FindDuplicates(draftAt(12.9716, 77.5946), pool, testNow)
	assert.Empty(t, matches)
}

func TestFindDuplicates_OutsideRadiusExcluded(t *testing.T) {
	// ~600 метров севернее (0.0054 градуса широты)
	pool := []*models.Incident{candidate(12.9770, 77.5946, time.Minute)}

	matches := FindDuplicates(draftAt(12.9716, 77.5946), pool, testNow)
	assert.Empty(t, matches)
}

func TestFindDuplicates_PerfectMatch(t *testing.T) {
	pool := []*models.Incident{candidate(12.9716, 77.5946, 0)}

	matches := FindDuplicates(draftAt(12.9716, 77.5946), pool, testNow)
	require.Len(t, matches, 1)
	assert.Equal(t, 100, matches[0].Confidence)
	assert.Equal(t, 0.0, matches[0].DistanceMeters)
}

func TestFindDuplicates_RadiusBoundary(t *testing.T) {
	// ~499 метров: distanceScore около нуля, timeScore 100 -> уверенность около 50
	pool := []*models.Incident{candidate(12.97609, 77.5946, 0)}

	matches := FindDuplicates(draftAt(12.9716, 77.5946), pool, testNow)
	require.Len(t, matches, 1)
	assert.InDelta(t, 50, matches[0].Confidence, 2)
}

func TestFindDuplicates_NearbyRecentScenario(t *testing.T) {
	// Соседняя точка (~62 м), 10 минут назад:
	// distanceScore ~ 87.5, timeScore ~ 91.7 -> уверенность ~ 90
	pool := []*models.Incident{candidate(12.9720, 77.5950, 10*time.Minute)}

	matches := FindDuplicates(draftAt(12.9716, 77.5946), pool, testNow)
	require.Len(t, matches, 1)
	assert.InDelta(t, 90, matches[0].Confidence, 2)
	assert.InDelta(t, 62, matches[0].DistanceMeters, 10)
}

func TestFindDuplicates_SortedByConfidenceDesc(t *testing.T) {
	far := candidate(12.9745, 77.5946, 90*time.Minute) // дальше и старше
	near := candidate(12.9717, 77.5946, time.Minute)
	pool := []*models.Incident{far, near}

	matches := FindDuplicates(draftAt(12.9716, 77.5946), pool, testNow)
	require.Len(t, matches, 2)
	assert.Equal(t, near, matches[0].Incident)
	assert.Equal(t, far, matches[1].Incident)
	assert.GreaterOrEqual(t, matches[0].Confidence, matches[1].Confidence)
}

func TestFindDuplicates_StableOnEqualConfidence(t *testing.T) {
	first := candidate(12.9716, 77.5946, 0)
	second := candidate(12.9716, 77.5946, 0)
	pool := []*models.Incident{first, second}

	matches := FindDuplicates(draftAt(12.9716, 77.5946), pool, testNow)
	require.Len(t, matches, 2)
	assert.Same(t, first, matches[0].Incident)
	assert.Same(t, second, matches[1].Incident)
}

func TestFindDuplicates_DraftWithoutLocation(t *testing.T) {
	// Отчет без геолокации никогда не блокируется проверкой дубликатов
	draft := &models.Incident{Type: models.TypeFire}
	pool := []*models.Incident{candidate(12.9716, 77.5946, time.Minute)}

	matches := FindDuplicates(draft, pool, testNow)
	assert.Empty(t, matches)
}

func TestFindDuplicates_CandidateWithoutLocationDropped(t *testing.T) {
	noLoc := &models.Incident{
		Type:       models.TypeFire,
		Status:     models.StatusReported,
		ReportedAt: testNow,
	}
	ok := candidate(12.9716, 77.5946, time.Minute)

	matches := FindDuplicates(draftAt(12.9716, 77.5946), []*models.Incident{noLoc, ok}, testNow)
	require.Len(t, matches, 1)
	assert.Same(t, ok, matches[0].Incident)
}

func TestFindDuplicates_CandidateWithoutTimestampDropped(t *testing.T) {
	noTS := candidate(12.9716, 77.5946, 0)
	noTS.ReportedAt = time.Time{}

	matches := FindDuplicates(draftAt(12.9716, 77.5946), []*models.Incident{noTS}, testNow)
	assert.Empty(t, matches)
}

func TestFindDuplicates_FutureCandidateClampedToFreshest(t *testing.T) {
	future := candidate(12.9716, 77.5946, -10*time.Minute)

	matches := FindDuplicates(draftAt(12.9716, 77.5946), []*models.Incident{future}, testNow)
	require.Len(t, matches, 1)
	assert.Equal(t, 100, matches[0].Confidence)
}

func TestFindDuplicates_InvalidCoordinatesDropped(t *testing.T) {
	bad := candidate(200, 500, time.Minute)
	matches := FindDuplicates(draftAt(12.9716, 77.5946), []*models.Incident{bad}, testNow)
	assert.Empty(t, matches)
}

func TestFindDuplicates_PoolNotMutated(t *testing.T) {
	inc := candidate(12.9716, 77.5946, time.Minute)
	before := *inc

	FindDuplicates(draftAt(12.9716, 77.5946), []*models.Incident{inc}, testNow)
	assert.Equal(t, before, *inc)
}
