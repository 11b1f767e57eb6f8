package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineMeters_SamePoint(t *testing.T) {
	d := HaversineMeters(12.9716, 77.5946, 12.9716, 77.5946)
	assert.Equal(t, 0.0, d)
}

func TestHaversineMeters_KnownDistance(t *testing.T) {
	// Бангалор: ~55 метров между двумя соседними точками
	d := HaversineMeters(12.9716, 77.5946, 12.9720, 77.5950)
	assert.InDelta(t, 62.0, d, 10.0)
}

func TestHaversineMeters_Symmetric(t *testing.T) {
	d1 := HaversineMeters(55.75, 37.61, 59.93, 30.33)
	d2 := HaversineMeters(59.93, 30.33, 55.75, 37.61)
	assert.InDelta(t, d1, d2, 1e-6)
}

func TestHaversineMeters_MoscowToSaintPetersburg(t *testing.T) {
	// Примерно 634 км
	d := HaversineMeters(55.7558, 37.6173, 59.9311, 30.3609)
	assert.InDelta(t, 634000, d, 5000)
}
