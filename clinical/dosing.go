package clinical

// DoseBand is a half-open weight range [MinKg, MaxKg) with its dose text.
type DoseBand struct {
	MinKg float64
	MaxKg float64
	Dose  string
}

// DoseTable lists the bands of one weight-dosed drug.
type DoseTable []DoseBand

// Amoxicillin 250 mg dispersible tablet, twice daily for 5 days.
var AmoxicillinDoses = DoseTable{
	{4, 7, "1 tablet twice daily for 5 days"},
	{7, 10, "2 tablets twice daily for 5 days"},
	{10, 14, "3 tablets twice daily for 5 days"},
	{14, 19, "4 tablets twice daily for 5 days"},
}

// ACT is artemether-lumefantrine 20/120 mg, twice daily for 3 days.
var ACTDoses = DoseTable{
	{5, 15, "1 tablet twice daily for 3 days"},
	{15, 25, "2 tablets twice daily for 3 days"},
}

// DoseFor returns the dose for weightKg, or "" if no band covers it or the
// weight was not entered.
func (t DoseTable) DoseFor(weightKg *float64) string {
	if weightKg == nil {
		return ""
	}
	w := *weightKg
	for _, band := range t {
		if w >= band.MinKg && w < band.MaxKg {
			return band.Dose
		}
	}
	return ""
}
