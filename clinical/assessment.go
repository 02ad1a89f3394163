package clinical

import "time"

// Vitals are the numeric measurements of an encounter. A nil field was not
// entered, which is different from an entered zero.
type Vitals struct {
	BreathingRate *float64 `json:"breathing_rate,omitempty"` // breaths per minute
	TemperatureC  *float64 `json:"temperature_c,omitempty"`
	WeightKg      *float64 `json:"weight_kg,omitempty"`
	MUACmm        *float64 `json:"muac_mm,omitempty"` // child only
}

// Durations are day counts reported by the caregiver.
type Durations struct {
	DiarrheaDays     *int `json:"diarrhea_days,omitempty"`
	CoughDays        *int `json:"cough_days,omitempty"`
	FeverDays        *int `json:"fever_days,omitempty"`
	EarDischargeDays *int `json:"ear_discharge_days,omitempty"`
}

// InfantSigns are the checklists of the young infant module.
type InfantSigns struct {
	DangerSigns    FlagSet[InfantDangerSign]   `json:"danger_signs,omitempty"`
	LocalInfection FlagSet[LocalInfectionSign] `json:"local_infection,omitempty"`
	Jaundice       FlagSet[JaundiceSign]       `json:"jaundice,omitempty"`
	Dehydration    FlagSet[DehydrationSign]    `json:"dehydration,omitempty"`
	Feeding        FlagSet[FeedingProblem]     `json:"feeding,omitempty"`
}

// EarSigns keeps pain and discharge tri-state: nil means not asked.
type EarSigns struct {
	Pain            *bool `json:"pain,omitempty"`
	Discharge       *bool `json:"discharge,omitempty"`
	MastoidSwelling bool  `json:"mastoid_swelling,omitempty"`
}

// ChildSigns are the checklists of the 2–59 months module.
type ChildSigns struct {
	DangerSigns    FlagSet[ChildDangerSign] `json:"danger_signs,omitempty"`
	Respiratory    FlagSet[RespiratorySign] `json:"respiratory,omitempty"`
	Dehydration    FlagSet[DehydrationSign] `json:"dehydration,omitempty"`
	Diarrhea       FlagSet[DiarrheaSign]    `json:"diarrhea,omitempty"`
	Fever          FlagSet[FeverSign]       `json:"fever,omitempty"`
	Measles        FlagSet[MeaslesSign]     `json:"measles,omitempty"`
	Ear            EarSigns                 `json:"ear"`
	MalariaRisk    MalariaRisk              `json:"malaria_risk,omitempty"`
	RDT            RDTResult                `json:"rdt,omitempty"`
	OedemaBothFeet bool                     `json:"oedema_both_feet,omitempty"`
	Pallor         Pallor                   `json:"pallor,omitempty"`
}

// Assessment is the raw input of one clinical encounter. The engine reads it
// and never modifies it.
type Assessment struct {
	// Module is the operator's choice. Empty means derive it from AgeMonths.
	Module           Module      `json:"module,omitempty"`
	AgeMonths        *float64    `json:"age_months,omitempty"`
	Vitals           Vitals      `json:"vitals"`
	Durations        Durations   `json:"durations"`
	Infant           InfantSigns `json:"infant"`
	Child            ChildSigns  `json:"child"`
	ImmunizationsDue []Vaccine   `json:"immunizations_due,omitempty"`
}

// ModuleForAge maps an age in months to its decision table.
func ModuleForAge(ageMonths float64) Module {
	if ageMonths <= 2 {
		return ModuleInfant
	}
	return ModuleChild
}

// ResolveModule returns the operator override when set, else the module
// implied by age. Without either it falls back to the child module.
func (a Assessment) ResolveModule() Module {
	if a.Module.Valid() {
		return a.Module
	}
	if a.AgeMonths != nil {
		return ModuleForAge(*a.AgeMonths)
	}
	return ModuleChild
}

// AgeInMonths returns the fractional age in months between dob and at,
// using 30.4375 days per month. Negative spans return 0.
func AgeInMonths(dob, at time.Time) float64 {
	days := at.Sub(dob).Hours() / 24
	if days <= 0 {
		return 0
	}
	return days / 30.4375
}

// Float returns a pointer to v, for building sparse records.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func floatOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// entered reports whether a day count was filled in with a positive value.
func entered(p *int) bool {
	return p != nil && *p > 0
}
