package clinical

import "strings"

// FollowUp is a suggested revisit interval.
type FollowUp string

const (
	FollowUpImmediate FollowUp = "Immediate"
	FollowUp2Days     FollowUp = "2 days"
	FollowUp3Days     FollowUp = "3 days"
	FollowUp5Days     FollowUp = "5 days"
	FollowUp30Days    FollowUp = "30 days"
	FollowUpNone      FollowUp = ""
)

// Recommendation is the follow-up and treatment plan for a set of labels.
type Recommendation struct {
	FollowUp   FollowUp `json:"follow_up"`
	Treatments []string `json:"treatments"`
}

type followUpTier struct {
	interval FollowUp
	labels   []string
}

// Tiers are scanned in order; the first tier holding any label wins.
var childFollowUps = []followUpTier{
	{FollowUpImmediate, []string{VerySevereDisease, VerySevereFebrileDisease, SevereComplicatedMeasles, SeverePersistentDiarrhea}},
	{FollowUp3Days, []string{Pneumonia, Malaria, MeaslesEyeMouthComplicated, Dysentery}},
	{FollowUp2Days, []string{SomeDehydration, SevereDehydration}},
	{FollowUp5Days, []string{AcuteEarInfection, PersistentDiarrhea}},
	{FollowUp30Days, []string{SevereAcuteMalnutrition}},
}

var infantFollowUps = []followUpTier{
	{FollowUpImmediate, []string{PSBI, SevereJaundice, SevereDehydration}},
	{FollowUp2Days, []string{LocalBacterialInfection, SomeDehydration, Jaundice, FeedingProblemLowWeight}},
}

const (
	amoxicillinText = "Give oral Amoxicillin (250 mg dispersible): "
	actText         = "Give oral ACT (artemether-lumefantrine 20/120 mg), first dose in clinic: "
)

// staticTreatments holds the fixed text per label. Weight-dosed labels are
// built in treatmentFor.
var staticTreatments = map[string][]string{
	PSBI: {
		"Give first dose of intramuscular Ampicillin and Gentamicin",
		"Treat to prevent low blood sugar; keep the infant warm on the way",
		"Refer URGENTLY to hospital",
	},
	LocalBacterialInfection: {
		"Give oral Amoxicillin for 5 days",
		"Teach the mother to treat local infections at home",
	},
	SevereJaundice: {
		"Keep the infant warm and refer URGENTLY to hospital",
	},
	Jaundice: {
		"Advise the mother to return immediately if palms and soles turn yellow",
	},
	FeedingProblemLowWeight: {
		"Counsel on exclusive breastfeeding, at least 8 times in 24 hours",
		"Treat thrush with gentian violet if present",
	},
	SevereDehydration: {
		"Plan C: start IV fluids or refer URGENTLY with the mother giving frequent sips of ORS on the way",
	},
	SomeDehydration: {
		"Plan B: give ORS in clinic over 4 hours",
		"Give zinc for 10 days",
	},
	NoDehydration: {
		"Plan A: give extra fluids and continue feeding",
		"Give zinc for 10 days",
	},
	VerySevereDisease: {
		"Give first dose of appropriate antibiotic",
		"Treat to prevent low blood sugar",
		"Refer URGENTLY to hospital",
	},
	NoPneumoniaCoughOrCold: {
		"Soothe the throat and relieve the cough with a safe remedy",
		"Advise when to return immediately",
	},
	SeverePersistentDiarrhea: {
		"Treat dehydration before referral unless the child has another severe classification",
		"Refer to hospital",
	},
	PersistentDiarrhea: {
		"Advise on feeding a child with persistent diarrhea",
		"Give multivitamin and zinc for 14 days",
	},
	Dysentery: {
		"Give oral Ciprofloxacin for 3 days",
	},
	VerySevereFebrileDisease: {
		"Give first dose of appropriate antibiotic",
		"Give one dose of paracetamol for high fever (38.5 °C or above)",
		"Refer URGENTLY to hospital",
	},
	FeverMalariaUnlikely: {
		"Give one dose of paracetamol for high fever (38.5 °C or above)",
		"Advise to return if fever lasts more than 7 days",
	},
	SevereComplicatedMeasles: {
		"Give Vitamin A",
		"Give first dose of appropriate antibiotic",
		"Refer URGENTLY to hospital",
	},
	MeaslesEyeMouthComplicated: {
		"Give Vitamin A",
		"Apply tetracycline eye ointment for pus draining from the eye",
		"Treat mouth ulcers with gentian violet",
	},
	Measles: {
		"Give Vitamin A",
	},
	Mastoiditis: {
		"Give first dose of appropriate antibiotic",
		"Give first dose of paracetamol for pain",
		"Refer URGENTLY to hospital",
	},
	ChronicEarInfection: {
		"Dry the ear by wicking",
		"Instil quinolone ear drops for 14 days",
	},
	NoEarInfection: {
		"No additional treatment",
	},
	SevereAcuteMalnutrition: {
		"Give Vitamin A",
		"Refer to outpatient therapeutic care or a nutrition rehabilitation home",
	},
	ModerateAcuteMalnutrition: {
		"Assess feeding and counsel the mother on feeding recommendations",
	},
	NoMalnutrition: {
		"Praise the mother and counsel on age appropriate feeding",
	},
	SevereAnemia: {
		"Refer URGENTLY to hospital",
	},
	Anemia: {
		"Give iron for 14 days",
		"Give albendazole if the child is 1 year or older and has not had a dose in 6 months",
	},
}

// Recommend derives the follow-up interval and treatment plan for the
// labels produced by Classify, in their emission order.
func Recommend(classifications []string, module Module, vitals Vitals) Recommendation {
	tiers := childFollowUps
	if module == ModuleInfant {
		tiers = infantFollowUps
	}

	rec := Recommendation{
		FollowUp:   resolveFollowUp(classifications, tiers),
		Treatments: []string{},
	}
	for _, label := range classifications {
		rec.Treatments = append(rec.Treatments, treatmentFor(label, vitals)...)
	}
	return rec
}

func resolveFollowUp(classifications []string, tiers []followUpTier) FollowUp {
	present := make(map[string]bool, len(classifications))
	for _, c := range classifications {
		present[c] = true
	}
	for _, tier := range tiers {
		for _, label := range tier.labels {
			if present[label] {
				return tier.interval
			}
		}
	}
	return FollowUpNone
}

func treatmentFor(label string, vitals Vitals) []string {
	switch label {
	case Pneumonia:
		return []string{
			amoxicillinText + AmoxicillinDoses.DoseFor(vitals.WeightKg),
			"Soothe the throat and relieve the cough with a safe remedy",
		}
	case AcuteEarInfection:
		return []string{
			amoxicillinText + AmoxicillinDoses.DoseFor(vitals.WeightKg),
			"Dry the ear by wicking",
			"Give paracetamol for pain",
		}
	case Malaria:
		return []string{
			actText + ACTDoses.DoseFor(vitals.WeightKg),
			"Give one dose of paracetamol for high fever (38.5 °C or above)",
		}
	}
	return staticTreatments[label]
}

// immunizationTreatment lists the due antigens as one action.
func immunizationTreatment(due []Vaccine) string {
	if len(due) == 0 {
		return ""
	}
	names := make([]string, 0, len(due))
	for _, v := range due {
		if v.Valid() {
			names = append(names, strings.ToUpper(string(v)))
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "Give due immunizations: " + strings.Join(names, ", ")
}
