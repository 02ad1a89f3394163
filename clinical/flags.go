package clinical

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Module selects the decision table for an encounter.
type Module string

const (
	ModuleInfant Module = "infant" // up to and including 2 months
	ModuleChild  Module = "child"  // 2 to 59 months
)

// Valid reports whether m is a known age module.
func (m Module) Valid() bool {
	return m == ModuleInfant || m == ModuleChild
}

// Flag is implemented by every checklist vocabulary.
type Flag interface {
	~string
	Valid() bool
}

// FlagSet is a set of checklist flags from one clinical domain.
// A nil FlagSet is empty and safe to query.
type FlagSet[T Flag] map[T]bool

// NewFlagSet builds a set from the given members.
func NewFlagSet[T Flag](members ...T) FlagSet[T] {
	s := make(FlagSet[T], len(members))
	for _, m := range members {
		s[m] = true
	}
	return s
}

// Has reports whether f is set.
func (s FlagSet[T]) Has(f T) bool {
	return s[f]
}

// Any reports whether at least one flag is set. With arguments, it only
// considers the listed flags.
func (s FlagSet[T]) Any(only ...T) bool {
	if len(only) == 0 {
		for _, v := range s {
			if v {
				return true
			}
		}
		return false
	}
	for _, f := range only {
		if s[f] {
			return true
		}
	}
	return false
}

// Count returns how many of the listed flags are set.
func (s FlagSet[T]) Count(of ...T) int {
	n := 0
	for _, f := range of {
		if s[f] {
			n++
		}
	}
	return n
}

// Invalid returns the members that are not part of the vocabulary.
func (s FlagSet[T]) Invalid() []T {
	var bad []T
	for f := range s {
		if !f.Valid() {
			bad = append(bad, f)
		}
	}
	return bad
}

// MarshalJSON encodes the set as a sorted array of members.
func (s FlagSet[T]) MarshalJSON() ([]byte, error) {
	members := make([]string, 0, len(s))
	for f, on := range s {
		if on {
			members = append(members, string(f))
		}
	}
	sort.Strings(members)
	return json.Marshal(members)
}

// UnmarshalJSON accepts either an array of members or an object of
// member to boolean.
func (s *FlagSet[T]) UnmarshalJSON(b []byte) error {
	var members []T
	if err := json.Unmarshal(b, &members); err == nil {
		*s = NewFlagSet(members...)
		return nil
	}
	var object map[T]bool
	if err := json.Unmarshal(b, &object); err != nil {
		return fmt.Errorf("flag set must be an array or an object: %w", err)
	}
	*s = FlagSet[T](object)
	return nil
}

// InfantDangerSign marks possible serious bacterial infection in a young infant.
type InfantDangerSign string

const (
	InfantNotFeedingWell          InfantDangerSign = "not_feeding_well"
	InfantConvulsions             InfantDangerSign = "convulsions"
	InfantSevereChestIndrawing    InfantDangerSign = "severe_chest_indrawing"
	InfantMovesOnlyWhenStimulated InfantDangerSign = "movement_only_when_stimulated"
	InfantGrunting                InfantDangerSign = "grunting"
	InfantBulgingFontanelle       InfantDangerSign = "bulging_fontanelle"
)

func (f InfantDangerSign) Valid() bool {
	switch f {
	case InfantNotFeedingWell, InfantConvulsions, InfantSevereChestIndrawing,
		InfantMovesOnlyWhenStimulated, InfantGrunting, InfantBulgingFontanelle:
		return true
	}
	return false
}

// LocalInfectionSign marks a local bacterial infection in a young infant.
type LocalInfectionSign string

const (
	UmbilicusRedOrPus LocalInfectionSign = "umbilicus_red_or_pus"
	SkinPustules      LocalInfectionSign = "skin_pustules"
	EyePusDischarge   LocalInfectionSign = "eye_pus_discharge"
)

func (f LocalInfectionSign) Valid() bool {
	switch f {
	case UmbilicusRedOrPus, SkinPustules, EyePusDischarge:
		return true
	}
	return false
}

// JaundiceSign is the young infant jaundice checklist.
type JaundiceSign string

const (
	JaundicePresent       JaundiceSign = "jaundice_present"
	YellowPalmsSoles      JaundiceSign = "yellow_palms_soles"
	JaundiceOnsetUnder24h JaundiceSign = "onset_under_24h"
)

func (f JaundiceSign) Valid() bool {
	switch f {
	case JaundicePresent, YellowPalmsSoles, JaundiceOnsetUnder24h:
		return true
	}
	return false
}

// DehydrationSign is shared by both modules. The child module accepts the
// whole vocabulary, the infant module only the first four members.
type DehydrationSign string

const (
	LethargicUnconscious DehydrationSign = "lethargic_unconscious"
	SunkenEyes           DehydrationSign = "sunken_eyes"
	SkinPinchVerySlow    DehydrationSign = "skin_pinch_very_slow"
	SkinPinchSlow        DehydrationSign = "skin_pinch_slow"
	RestlessIrritable    DehydrationSign = "restless_irritable"
	DrinksEagerly        DehydrationSign = "drinks_eagerly"
	UnableToDrink        DehydrationSign = "unable_to_drink"
)

func (f DehydrationSign) Valid() bool {
	switch f {
	case LethargicUnconscious, SunkenEyes, SkinPinchVerySlow, SkinPinchSlow,
		RestlessIrritable, DrinksEagerly, UnableToDrink:
		return true
	}
	return false
}

var (
	severeDehydrationSigns = []DehydrationSign{LethargicUnconscious, SunkenEyes, SkinPinchVerySlow}
	infantDehydrationSigns = []DehydrationSign{LethargicUnconscious, SunkenEyes, SkinPinchVerySlow, SkinPinchSlow}
	childDehydrationSigns  = []DehydrationSign{
		LethargicUnconscious, SunkenEyes, SkinPinchVerySlow, SkinPinchSlow,
		RestlessIrritable, DrinksEagerly, UnableToDrink,
	}
)

// FeedingProblem is the young infant feeding checklist.
type FeedingProblem string

const (
	NotBreastfeedingWell   FeedingProblem = "not_breastfeeding_well"
	LowWeightForAge        FeedingProblem = "low_weight_for_age"
	OralThrush             FeedingProblem = "thrush"
	BreastfeedsUnder8Times FeedingProblem = "breastfeeds_under_8_times"
)

func (f FeedingProblem) Valid() bool {
	switch f {
	case NotBreastfeedingWell, LowWeightForAge, OralThrush, BreastfeedsUnder8Times:
		return true
	}
	return false
}

// ChildDangerSign is the general danger sign checklist for 2–59 months.
type ChildDangerSign string

const (
	UnableToDrinkOrBreastfeed ChildDangerSign = "unable_to_drink_or_breastfeed"
	VomitsEverything          ChildDangerSign = "vomits_everything"
	ChildConvulsions          ChildDangerSign = "convulsions"
	ChildLethargicUnconscious ChildDangerSign = "lethargic_unconscious"
	ConvulsingNow             ChildDangerSign = "convulsing_now"
)

func (f ChildDangerSign) Valid() bool {
	switch f {
	case UnableToDrinkOrBreastfeed, VomitsEverything, ChildConvulsions,
		ChildLethargicUnconscious, ConvulsingNow:
		return true
	}
	return false
}

// RespiratorySign is the cough / difficult breathing checklist.
type RespiratorySign string

const (
	ChestIndrawing     RespiratorySign = "chest_indrawing"
	StridorInCalmChild RespiratorySign = "stridor_in_calm_child"
	Wheeze             RespiratorySign = "wheeze"
)

func (f RespiratorySign) Valid() bool {
	switch f {
	case ChestIndrawing, StridorInCalmChild, Wheeze:
		return true
	}
	return false
}

// FeverSign is the fever checklist.
type FeverSign string

const StiffNeck FeverSign = "stiff_neck"

func (f FeverSign) Valid() bool { return f == StiffNeck }

// DiarrheaSign is the diarrhoea checklist beyond dehydration.
type DiarrheaSign string

const BloodInStool DiarrheaSign = "blood_in_stool"

func (f DiarrheaSign) Valid() bool { return f == BloodInStool }

// MeaslesSign is the measles checklist.
type MeaslesSign string

const (
	MeaslesNow      MeaslesSign = "measles_now"
	CornealClouding MeaslesSign = "corneal_clouding"
	MouthUlcers     MeaslesSign = "mouth_ulcers"
	RedEyes         MeaslesSign = "red_eyes"
)

func (f MeaslesSign) Valid() bool {
	switch f {
	case MeaslesNow, CornealClouding, MouthUlcers, RedEyes:
		return true
	}
	return false
}

// MalariaRisk is the malaria risk of the child's area. Empty means unknown.
type MalariaRisk string

const (
	MalariaRiskUnknown MalariaRisk = ""
	MalariaRiskLow     MalariaRisk = "low"
	MalariaRiskHigh    MalariaRisk = "high"
)

func (r MalariaRisk) Valid() bool {
	return r == MalariaRiskUnknown || r == MalariaRiskLow || r == MalariaRiskHigh
}

// RDTResult is the malaria rapid diagnostic test outcome. Empty means not done.
type RDTResult string

const (
	RDTNotDone               RDTResult = ""
	RDTNegative              RDTResult = "negative"
	RDTPositiveFalciparum    RDTResult = "positive_falciparum"
	RDTPositiveNonFalciparum RDTResult = "positive_non_falciparum"
	RDTPositiveUnspecified   RDTResult = "positive_unspecified"
)

func (r RDTResult) Valid() bool {
	switch r {
	case RDTNotDone, RDTNegative, RDTPositiveFalciparum, RDTPositiveNonFalciparum, RDTPositiveUnspecified:
		return true
	}
	return false
}

// Positive reports whether any species was detected.
func (r RDTResult) Positive() bool {
	return r == RDTPositiveFalciparum || r == RDTPositiveNonFalciparum || r == RDTPositiveUnspecified
}

// Pallor grades palmar pallor. Empty is treated as none.
type Pallor string

const (
	PallorNone   Pallor = "none"
	PallorSome   Pallor = "some"
	PallorSevere Pallor = "severe"
)

func (p Pallor) Valid() bool {
	return p == "" || p == PallorNone || p == PallorSome || p == PallorSevere
}

// Vaccine is a national immunization schedule antigen.
type Vaccine string

const (
	VaccineBCG         Vaccine = "bcg"
	VaccineOPV         Vaccine = "opv"
	VaccinePCV         Vaccine = "pcv"
	VaccineRota        Vaccine = "rota"
	VaccinePentavalent Vaccine = "pentavalent"
	VaccineFIPV        Vaccine = "fipv"
	VaccineMR          Vaccine = "mr"
	VaccineJE          Vaccine = "je"
	VaccineTCV         Vaccine = "tcv"
)

func (v Vaccine) Valid() bool {
	switch v {
	case VaccineBCG, VaccineOPV, VaccinePCV, VaccineRota, VaccinePentavalent,
		VaccineFIPV, VaccineMR, VaccineJE, VaccineTCV:
		return true
	}
	return false
}
