// Package validation checks HTTP input at the boundary and reports data
// quality issues in stored stock. The clinical and inventory engines never
// validate; they accept sparse records as they are.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/giygas/healthpost-api/clinical"
	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/store"
)

// Pre-compiled regex patterns for performance optimization
// Compiled once at package initialization and reused for all validations
var (
	// Item names: letters and marks of any script (Devanagari included),
	// digits, spaces and the punctuation used on stock labels
	inputRegex = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\s\-\.\+'/(),%]+$`)
	wordRegex  = regexp.MustCompile(`[\p{L}\p{N}]`)

	// Dangerous patterns as strings (faster than regex for simple substring matching)
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "eval(", "expression(", "@import",
		// SQL injection patterns
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"--", "/*", "*/", "exec(",
		// Command injection patterns
		"; ", "| ", "`", "$(", "${",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
	}

	maxTax = decimal.NewFromInt(100)
)

// Plausible ranges of entered vitals. Values outside are typos, not
// patients.
const (
	maxBreathingRate = 200
	minTemperatureC  = 25
	maxTemperatureC  = 45
	maxWeightKg      = 60
	maxMUACmm        = 300
	maxAgeMonths     = 60
	maxDays          = 365
)

// Validator validates boundary input. It holds no state.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateInput validates an item name
func (v *Validator) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if len([]rune(input)) > 100 {
		return fmt.Errorf("input too long: maximum 100 characters")
	}

	if strings.ContainsRune(input, 0) {
		return fmt.Errorf("input contains invalid characters")
	}

	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	if !inputRegex.MatchString(input) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces and - . + ' / ( ) , %% are allowed")
	}

	if !wordRegex.MatchString(input) {
		return fmt.Errorf("input must contain at least one letter or digit")
	}

	if v.hasExcessiveRepetition(input) {
		return fmt.Errorf("input contains excessive character repetition")
	}

	return nil
}

// ValidateSegment validates an identifier used inside a document path
func (v *Validator) ValidateSegment(s string) error {
	if err := store.ValidateSegment(s); err != nil {
		return err
	}
	if len(s) > 64 {
		return fmt.Errorf("identifier too long: maximum 64 characters")
	}
	if strings.TrimSpace(s) != s {
		return fmt.Errorf("identifier %q has surrounding whitespace", s)
	}
	return nil
}

// ValidateIssueRequest validates one issue line. An empty store is allowed
// when the caller supplies it separately.
func (v *Validator) ValidateIssueRequest(req inventory.IssueRequest) error {
	if err := v.ValidateInput(req.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if err := validateQuantity(req.Quantity); err != nil {
		return err
	}
	if !req.ItemType.Valid() {
		return fmt.Errorf("itemType must be %q or %q, got %q", inventory.Expendable, inventory.NonExpendable, req.ItemType)
	}
	if req.StoreID != "" {
		if err := v.ValidateSegment(req.StoreID); err != nil {
			return fmt.Errorf("storeId: %w", err)
		}
	}
	if len(req.CodeNo) > 50 {
		return fmt.Errorf("codeNo too long: maximum 50 characters")
	}
	return nil
}

// ValidateReceiptLine validates one receipt line
func (v *Validator) ValidateReceiptLine(line inventory.ReceiptLine) error {
	if err := v.ValidateInput(line.ItemName); err != nil {
		return fmt.Errorf("itemName: %w", err)
	}
	if err := validateQuantity(line.Quantity); err != nil {
		return err
	}
	if line.Rate.IsNegative() {
		return fmt.Errorf("rate cannot be negative")
	}
	if line.Tax.IsNegative() || line.Tax.GreaterThan(maxTax) {
		return fmt.Errorf("tax must be a percentage between 0 and 100")
	}
	if !line.ItemType.Valid() {
		return fmt.Errorf("itemType must be %q or %q, got %q", inventory.Expendable, inventory.NonExpendable, line.ItemType)
	}
	if err := v.ValidateSegment(line.StoreID); err != nil {
		return fmt.Errorf("storeId: %w", err)
	}
	return nil
}

// ValidateAssessment rejects unknown vocabulary members and implausible
// numbers. Absent fields are always fine.
func (v *Validator) ValidateAssessment(a clinical.Assessment) error {
	if a.Module != "" && !a.Module.Valid() {
		return fmt.Errorf("module must be %q or %q, got %q", clinical.ModuleInfant, clinical.ModuleChild, a.Module)
	}
	if err := inRange("age_months", a.AgeMonths, 0, maxAgeMonths); err != nil {
		return err
	}

	vitals := a.Vitals
	for _, check := range []struct {
		name     string
		value    *float64
		min, max float64
	}{
		{"breathing_rate", vitals.BreathingRate, 0, maxBreathingRate},
		{"temperature_c", vitals.TemperatureC, minTemperatureC, maxTemperatureC},
		{"weight_kg", vitals.WeightKg, 0, maxWeightKg},
		{"muac_mm", vitals.MUACmm, 0, maxMUACmm},
	} {
		if err := inRange(check.name, check.value, check.min, check.max); err != nil {
			return err
		}
	}

	d := a.Durations
	for _, check := range []struct {
		name string
		days *int
	}{
		{"diarrhea_days", d.DiarrheaDays},
		{"cough_days", d.CoughDays},
		{"fever_days", d.FeverDays},
		{"ear_discharge_days", d.EarDischargeDays},
	} {
		if check.days != nil && (*check.days < 0 || *check.days > maxDays) {
			return fmt.Errorf("%s must be between 0 and %d", check.name, maxDays)
		}
	}

	var bad []string
	bad = appendInvalid(bad, "infant.danger_signs", a.Infant.DangerSigns.Invalid())
	bad = appendInvalid(bad, "infant.local_infection", a.Infant.LocalInfection.Invalid())
	bad = appendInvalid(bad, "infant.jaundice", a.Infant.Jaundice.Invalid())
	bad = appendInvalid(bad, "infant.dehydration", a.Infant.Dehydration.Invalid())
	bad = appendInvalid(bad, "infant.feeding", a.Infant.Feeding.Invalid())
	bad = appendInvalid(bad, "child.danger_signs", a.Child.DangerSigns.Invalid())
	bad = appendInvalid(bad, "child.respiratory", a.Child.Respiratory.Invalid())
	bad = appendInvalid(bad, "child.dehydration", a.Child.Dehydration.Invalid())
	bad = appendInvalid(bad, "child.diarrhea", a.Child.Diarrhea.Invalid())
	bad = appendInvalid(bad, "child.fever", a.Child.Fever.Invalid())
	bad = appendInvalid(bad, "child.measles", a.Child.Measles.Invalid())
	if !a.Child.MalariaRisk.Valid() {
		bad = append(bad, fmt.Sprintf("child.malaria_risk=%s", a.Child.MalariaRisk))
	}
	if !a.Child.RDT.Valid() {
		bad = append(bad, fmt.Sprintf("child.rdt=%s", a.Child.RDT))
	}
	if !a.Child.Pallor.Valid() {
		bad = append(bad, fmt.Sprintf("child.pallor=%s", a.Child.Pallor))
	}
	for _, vac := range a.ImmunizationsDue {
		if !vac.Valid() {
			bad = append(bad, fmt.Sprintf("immunizations_due=%s", vac))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("unknown values: %s", strings.Join(bad, ", "))
	}
	return nil
}

// InventoryQualityReport summarizes data quality issues in stored lots.
// ID lists keep the first 10 offenders.
type InventoryQualityReport struct {
	Lots               int      `json:"lots"`
	DuplicateLotIDs    []string `json:"duplicateLotIds"`
	NegativeQuantity   int      `json:"negativeQuantity"`
	NegativeQuantityID []string `json:"negativeQuantityIds"`
	AmountDrift        int      `json:"amountDrift"` // totalAmount differs from quantity × rate
	AmountDriftIDs     []string `json:"amountDriftIds"`
	MissingExpiry      int      `json:"missingExpiry"` // expendables only
	MissingExpiryIDs   []string `json:"missingExpiryIds"`
	InvalidItemType    int      `json:"invalidItemType"`
}

// Clean reports whether nothing was found.
func (r *InventoryQualityReport) Clean() bool {
	return len(r.DuplicateLotIDs) == 0 && r.NegativeQuantity == 0 && r.AmountDrift == 0 &&
		r.MissingExpiry == 0 && r.InvalidItemType == 0
}

var driftTolerance = decimal.RequireFromString("0.01")

// ReportInventoryQuality generates a data quality report for lots
func (v *Validator) ReportInventoryQuality(lots []inventory.Lot) *InventoryQualityReport {
	report := &InventoryQualityReport{
		Lots:               len(lots),
		DuplicateLotIDs:    []string{},
		NegativeQuantityID: []string{},
		AmountDriftIDs:     []string{},
		MissingExpiryIDs:   []string{},
	}

	// Check 1: duplicate lot ids across stores
	seen := make(map[string]bool, len(lots))
	for _, l := range lots {
		if seen[l.ID] && len(report.DuplicateLotIDs) < 10 {
			report.DuplicateLotIDs = append(report.DuplicateLotIDs, l.ID)
		}
		seen[l.ID] = true
	}

	for _, l := range lots {
		// Check 2: negative quantities
		if l.CurrentQuantity < 0 {
			report.NegativeQuantity++
			report.NegativeQuantityID = appendCapped(report.NegativeQuantityID, l.ID)
		}

		// Check 3: amount drift. Lots are priced at their landed rate, so
		// only mixed-price merges or edits outside the engine land here.
		expected := decimal.NewFromFloat(l.CurrentQuantity).Mul(l.Rate)
		if l.TotalAmount.Sub(expected).Abs().GreaterThan(driftTolerance) {
			report.AmountDrift++
			report.AmountDriftIDs = appendCapped(report.AmountDriftIDs, l.ID)
		}

		// Check 4: expendables without expiry
		if l.ItemType == inventory.Expendable && l.ExpiryDateAd == nil {
			report.MissingExpiry++
			report.MissingExpiryIDs = appendCapped(report.MissingExpiryIDs, l.ID)
		}

		// Check 5: unknown item type
		if !l.ItemType.Valid() {
			report.InvalidItemType++
		}
	}

	if len(report.DuplicateLotIDs) > 0 {
		logging.Error("Duplicate lot ids detected",
			"count", len(report.DuplicateLotIDs),
			"duplicates", report.DuplicateLotIDs,
		)
	}

	return report
}

func validateQuantity(q float64) error {
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return fmt.Errorf("quantity must be a finite number")
	}
	if q <= 0 {
		return fmt.Errorf("quantity must be positive, got %g", q)
	}
	return nil
}

func inRange(name string, v *float64, min, max float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < min || *v > max {
		return fmt.Errorf("%s must be between %g and %g", name, min, max)
	}
	return nil
}

func appendInvalid[T ~string](bad []string, field string, members []T) []string {
	for _, m := range members {
		bad = append(bad, fmt.Sprintf("%s=%s", field, m))
	}
	return bad
}

func appendCapped(ids []string, id string) []string {
	if len(ids) < 10 {
		ids = append(ids, id)
	}
	return ids
}

// hasExcessiveRepetition checks for potential DoS patterns with excessive character repetition
func (v *Validator) hasExcessiveRepetition(input string) bool {
	// Check for the same character repeated more than 10 times consecutively
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}
