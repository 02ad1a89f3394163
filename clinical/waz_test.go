package clinical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateWAZ_ExactAnchors(t *testing.T) {
	for _, anchor := range WAZReference {
		w := anchor.Median + anchor.SD
		assert.InDelta(t, 1.0, EstimateWAZ(w, anchor.AgeMonths), 1e-9, "age %v", anchor.AgeMonths)
		assert.InDelta(t, 0.0, EstimateWAZ(anchor.Median, anchor.AgeMonths), 1e-9, "age %v", anchor.AgeMonths)
	}
}

func TestEstimateWAZ_Interpolates(t *testing.T) {
	// halfway between 6 (7.9, 0.8) and 9 (8.9, 0.9)
	assert.InDelta(t, 0.0, EstimateWAZ(8.4, 7.5), 1e-9)
	assert.InDelta(t, 1.0, EstimateWAZ(8.4+0.85, 7.5), 1e-9)
}

func TestEstimateWAZ_Clamps(t *testing.T) {
	assert.Equal(t, EstimateWAZ(3.0, 0), EstimateWAZ(3.0, -4))
	assert.Equal(t, EstimateWAZ(20, 60), EstimateWAZ(20, 72))
}

func TestEstimateWAZ_MonotonicInWeight(t *testing.T) {
	for _, age := range []float64{0, 1.5, 7, 12, 27, 59} {
		prev := EstimateWAZ(1, age)
		for w := 1.5; w <= 25; w += 0.5 {
			z := EstimateWAZ(w, age)
			assert.Greater(t, z, prev, "age %v weight %v", age, w)
			prev = z
		}
	}
}

func TestCategorizeWAZ(t *testing.T) {
	assert.Equal(t, WAZSevereUnderweight, CategorizeWAZ(-3.01))
	assert.Equal(t, WAZUnderweight, CategorizeWAZ(-3))
	assert.Equal(t, WAZUnderweight, CategorizeWAZ(-2.5))
	assert.Equal(t, WAZNormal, CategorizeWAZ(-2))
	assert.Equal(t, WAZNormal, CategorizeWAZ(1.2))
}

func TestNewWAZ(t *testing.T) {
	w := NewWAZ(7.0, 12)
	assert.InDelta(t, -2.6, w.Score, 1e-9)
	assert.Equal(t, -2.6, w.Rounded)
	assert.Equal(t, WAZUnderweight, w.Category)

	assert.Equal(t, -1.23, RoundWAZ(-1.2345))
}

func TestAgeInMonths(t *testing.T) {
	dob := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 12.0, AgeInMonths(dob, dob.AddDate(0, 0, 365)), 0.01)
	assert.Zero(t, AgeInMonths(dob, dob.AddDate(0, 0, -3)))
}
