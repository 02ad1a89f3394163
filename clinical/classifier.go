package clinical

// Classification labels. The strings are what consumers persist and print.
const (
	// young infant
	PSBI                    = "Possible Serious Bacterial Infection (PSBI) or Very Severe Disease"
	LocalBacterialInfection = "Local Bacterial Infection"
	SevereJaundice          = "Severe Jaundice"
	Jaundice                = "Jaundice"
	FeedingProblemLowWeight = "Feeding Problem or Low Weight"

	// shared
	SevereDehydration = "Severe Dehydration"
	SomeDehydration   = "Some Dehydration"
	NoDehydration     = "No Dehydration"

	// child
	VerySevereDisease          = "Very Severe Disease"
	Pneumonia                  = "Pneumonia"
	NoPneumoniaCoughOrCold     = "No Pneumonia: Cough or Cold"
	SeverePersistentDiarrhea   = "Severe Persistent Diarrhea"
	PersistentDiarrhea         = "Persistent Diarrhea"
	Dysentery                  = "Dysentery"
	VerySevereFebrileDisease   = "Very Severe Febrile Disease"
	Malaria                    = "Malaria"
	FeverMalariaUnlikely       = "Fever: Malaria Unlikely"
	SevereComplicatedMeasles   = "Severe Complicated Measles"
	MeaslesEyeMouthComplicated = "Measles with Eye/Mouth Complications"
	Measles                    = "Measles"
	Mastoiditis                = "Mastoiditis"
	AcuteEarInfection          = "Acute Ear Infection"
	ChronicEarInfection        = "Chronic Ear Infection"
	NoEarInfection             = "No Ear Infection"
	SevereAcuteMalnutrition    = "Severe Acute Malnutrition"
	ModerateAcuteMalnutrition  = "Moderate Acute Malnutrition"
	NoMalnutrition             = "No Malnutrition"
	SevereAnemia               = "Severe Anemia"
	Anemia                     = "Anemia"
)

// Thresholds of the decision tables.
const (
	infantFastBreathing   = 60.0
	childFastBreathingU12 = 50.0
	childFastBreathing    = 40.0
	feverThresholdC       = 37.5
	hypothermiaC          = 35.5
	chronicDays           = 14
	samMUACmm             = 115.0
	mamMUACmm             = 125.0
)

// labels accumulates classification labels in evaluation order, dropping
// duplicates.
type labels []string

func (l *labels) add(label string) {
	if label == "" {
		return
	}
	for _, existing := range *l {
		if existing == label {
			return
		}
	}
	*l = append(*l, label)
}

// Classify evaluates the decision table of module against a. It never fails:
// absent fields simply do not trigger the rules that read them.
func Classify(module Module, a Assessment) []string {
	var out labels
	if module == ModuleInfant {
		classifyInfant(a, &out)
	} else {
		classifyChild(a, &out)
	}
	if out == nil {
		return []string{}
	}
	return out
}

func classifyInfant(a Assessment, out *labels) {
	s := a.Infant
	rr := floatOr(a.Vitals.BreathingRate, 0)

	psbi := s.DangerSigns.Any() || rr >= infantFastBreathing
	if t := a.Vitals.TemperatureC; t != nil && (*t >= feverThresholdC || *t <= hypothermiaC) {
		psbi = true
	}
	if psbi {
		out.add(PSBI)
	}

	if s.LocalInfection.Any() {
		out.add(LocalBacterialInfection)
	}

	switch {
	case s.Jaundice.Any(YellowPalmsSoles, JaundiceOnsetUnder24h):
		out.add(SevereJaundice)
	case s.Jaundice.Has(JaundicePresent):
		out.add(Jaundice)
	}

	out.add(dehydrationGrade(s.Dehydration, infantDehydrationSigns, a.Durations.DiarrheaDays))

	if s.Feeding.Any() {
		out.add(FeedingProblemLowWeight)
	}
}

// dehydrationGrade returns exactly one grade or "" when diarrhoea was not
// reported. Only flags of the module vocabulary are counted.
func dehydrationGrade(signs FlagSet[DehydrationSign], vocabulary []DehydrationSign, diarrheaDays *int) string {
	switch {
	case signs.Count(severeDehydrationSigns...) >= 2:
		return SevereDehydration
	case signs.Count(vocabulary...) >= 2:
		return SomeDehydration
	case entered(diarrheaDays):
		return NoDehydration
	}
	return ""
}

func classifyChild(a Assessment, out *labels) {
	s := a.Child
	dangerSign := s.DangerSigns.Any()

	if dangerSign || s.Respiratory.Has(StridorInCalmChild) {
		out.add(VerySevereDisease)
	}

	out.add(pneumoniaGrade(a))

	grade := dehydrationGrade(s.Dehydration, childDehydrationSigns, a.Durations.DiarrheaDays)
	out.add(grade)

	if d := a.Durations.DiarrheaDays; d != nil && *d >= chronicDays {
		if grade == SomeDehydration || grade == SevereDehydration {
			out.add(SeverePersistentDiarrhea)
		} else {
			out.add(PersistentDiarrhea)
		}
	}

	if s.Diarrhea.Has(BloodInStool) {
		out.add(Dysentery)
	}

	classifyFever(a, dangerSign, out)
	out.add(measlesGrade(s, dangerSign))
	out.add(earGrade(s.Ear, a.Durations.EarDischargeDays))
	out.add(malnutritionGrade(s.OedemaBothFeet, a.Vitals.MUACmm))

	switch s.Pallor {
	case PallorSevere:
		out.add(SevereAnemia)
	case PallorSome:
		out.add(Anemia)
	}
}

func pneumoniaGrade(a Assessment) string {
	threshold := childFastBreathing
	if a.AgeMonths != nil && *a.AgeMonths < 12 {
		threshold = childFastBreathingU12
	}
	fast := a.Vitals.BreathingRate != nil && *a.Vitals.BreathingRate >= threshold

	switch {
	case fast || a.Child.Respiratory.Has(ChestIndrawing):
		return Pneumonia
	case entered(a.Durations.CoughDays):
		return NoPneumoniaCoughOrCold
	}
	return ""
}

func classifyFever(a Assessment, dangerSign bool, out *labels) {
	s := a.Child
	fever := entered(a.Durations.FeverDays)
	if t := a.Vitals.TemperatureC; t != nil && *t >= feverThresholdC {
		fever = true
	}
	if !fever {
		return
	}

	if s.Fever.Has(StiffNeck) || dangerSign {
		out.add(VerySevereFebrileDisease)
	}

	switch {
	case s.MalariaRisk == MalariaRiskHigh && s.RDT.Positive():
		out.add(Malaria)
	case s.RDT == RDTNegative || s.MalariaRisk == MalariaRiskLow:
		out.add(FeverMalariaUnlikely)
	}
}

func measlesGrade(s ChildSigns, dangerSign bool) string {
	if !s.Measles.Has(MeaslesNow) {
		return ""
	}
	switch {
	case dangerSign || s.Measles.Any(CornealClouding, MouthUlcers):
		return SevereComplicatedMeasles
	case s.Measles.Has(RedEyes):
		return MeaslesEyeMouthComplicated
	}
	return Measles
}

// earGrade applies the ear rules in precedence order. A discharge without a
// day count is treated as acute.
func earGrade(ear EarSigns, dischargeDays *int) string {
	pain := ear.Pain != nil && *ear.Pain
	discharge := ear.Discharge != nil && *ear.Discharge
	days := 0
	if dischargeDays != nil {
		days = *dischargeDays
	}

	switch {
	case ear.MastoidSwelling:
		return Mastoiditis
	case pain || (discharge && days < chronicDays):
		return AcuteEarInfection
	case discharge:
		return ChronicEarInfection
	case ear.Pain != nil && ear.Discharge != nil:
		// both explicitly answered "no"
		return NoEarInfection
	}
	return ""
}

func malnutritionGrade(oedema bool, muac *float64) string {
	switch {
	case oedema:
		return SevereAcuteMalnutrition
	case muac == nil:
		return ""
	case *muac > 0 && *muac < samMUACmm:
		return SevereAcuteMalnutrition
	case *muac >= samMUACmm && *muac < mamMUACmm:
		return ModerateAcuteMalnutrition
	case *muac >= mamMUACmm:
		return NoMalnutrition
	}
	return ""
}
