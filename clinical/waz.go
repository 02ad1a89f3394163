package clinical

import "math"

// WAZ category labels. They are informational and never gate treatment.
const (
	WAZSevereUnderweight = "Severe Underweight"
	WAZUnderweight       = "Underweight"
	WAZNormal            = "Normal Weight"
)

// WAZAnchor is one row of the weight-for-age reference table.
type WAZAnchor struct {
	AgeMonths float64
	Median    float64 // kg
	SD        float64 // kg
}

// WAZReference is the weight-for-age reference, ordered by age.
var WAZReference = []WAZAnchor{
	{0, 3.3, 0.4},
	{1, 4.5, 0.6},
	{2, 5.6, 0.7},
	{3, 6.4, 0.7},
	{4, 7.0, 0.8},
	{5, 7.5, 0.8},
	{6, 7.9, 0.8},
	{9, 8.9, 0.9},
	{12, 9.6, 1.0},
	{15, 10.3, 1.1},
	{18, 10.9, 1.1},
	{21, 11.5, 1.2},
	{24, 12.2, 1.3},
	{30, 13.3, 1.5},
	{36, 14.3, 1.6},
	{42, 15.3, 1.7},
	{48, 16.3, 1.9},
	{54, 17.3, 2.1},
	{60, 18.3, 2.3},
}

// WAZ is the weight-for-age result attached to a classification.
type WAZ struct {
	Score    float64 `json:"score"`
	Rounded  float64 `json:"rounded"`
	Category string  `json:"category"`
}

// EstimateWAZ returns the weight-for-age z-score at full precision. Ages
// outside the table are clamped to its ends.
func EstimateWAZ(weightKg, ageMonths float64) float64 {
	median, sd := referenceAt(ageMonths)
	return (weightKg - median) / sd
}

func referenceAt(ageMonths float64) (median, sd float64) {
	first, last := WAZReference[0], WAZReference[len(WAZReference)-1]
	if ageMonths <= first.AgeMonths {
		return first.Median, first.SD
	}
	if ageMonths >= last.AgeMonths {
		return last.Median, last.SD
	}

	for i := 1; i < len(WAZReference); i++ {
		upper := WAZReference[i]
		if ageMonths > upper.AgeMonths {
			continue
		}
		if ageMonths == upper.AgeMonths {
			return upper.Median, upper.SD
		}
		lower := WAZReference[i-1]
		t := (ageMonths - lower.AgeMonths) / (upper.AgeMonths - lower.AgeMonths)
		return lerp(lower.Median, upper.Median, t), lerp(lower.SD, upper.SD, t)
	}
	return last.Median, last.SD
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// RoundWAZ rounds a z-score to two decimals for display.
func RoundWAZ(z float64) float64 {
	return math.Round(z*100) / 100
}

// CategorizeWAZ labels a full precision z-score.
func CategorizeWAZ(z float64) string {
	switch {
	case z < -3:
		return WAZSevereUnderweight
	case z < -2:
		return WAZUnderweight
	default:
		return WAZNormal
	}
}

// NewWAZ computes the score, its display rounding and category.
func NewWAZ(weightKg, ageMonths float64) WAZ {
	z := EstimateWAZ(weightKg, ageMonths)
	return WAZ{Score: z, Rounded: RoundWAZ(z), Category: CategorizeWAZ(z)}
}
