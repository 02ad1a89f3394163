package clinical

// ClassificationResult is the full outcome of one encounter.
type ClassificationResult struct {
	Module              Module   `json:"module"`
	Classifications     []string `json:"classifications"`
	SuggestedFollowUp   FollowUp `json:"suggested_follow_up"`
	SuggestedTreatments []string `json:"suggested_treatments"`
	WAZ                 *WAZ     `json:"waz,omitempty"`
}

// ClassifyPatient resolves the module, classifies the assessment and derives
// the plan. WAZ is attached only when both weight and age were entered.
func ClassifyPatient(a Assessment) ClassificationResult {
	module := a.ResolveModule()
	classifications := Classify(module, a)
	rec := Recommend(classifications, module, a.Vitals)

	if block := immunizationTreatment(a.ImmunizationsDue); block != "" {
		rec.Treatments = append(rec.Treatments, block)
	}

	result := ClassificationResult{
		Module:              module,
		Classifications:     classifications,
		SuggestedFollowUp:   rec.FollowUp,
		SuggestedTreatments: rec.Treatments,
	}
	if a.Vitals.WeightKg != nil && a.AgeMonths != nil {
		waz := NewWAZ(*a.Vitals.WeightKg, *a.AgeMonths)
		result.WAZ = &waz
	}
	return result
}
