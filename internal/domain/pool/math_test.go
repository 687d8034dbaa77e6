package pool

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitsOf(t *testing.T) {
	assert.Equal(t, 400.0, UnitsOf(100, 4.0))
	assert.Equal(t, 0.0, UnitsOf(0, 4.0))
	assert.Equal(t, 150.0, UnitsOf(30, 5.0))
}

func TestWeightedAverage(t *testing.T) {
	assert.Equal(t, 4.0, WeightedAverage(400, 100))
	assert.InDelta(t, 3.5714285, WeightedAverage(250, 70), 1e-6)
}

func TestWeightedAverageZeroLiters(t *testing.T) {
	got := WeightedAverage(123.4, 0)
	assert.Equal(t, 0.0, got)
	assert.False(t, math.IsNaN(got))
	assert.False(t, math.IsInf(got, 0))
}

func TestMaxFeasiblePercent(t *testing.T) {
	// 250 fat units left, drawing 10 L: at most 25 units per liter.
	assert.Equal(t, 25.0, MaxFeasiblePercent(250, 10))
	assert.Equal(t, 0.0, MaxFeasiblePercent(250, 0))
}
