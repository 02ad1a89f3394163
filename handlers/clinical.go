package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/healthpost-api/clinical"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/metrics"
	"github.com/giygas/healthpost-api/store"
)

// PatientsRoot is the store root of encounter records.
const PatientsRoot = "patients"

const visitDateLayout = "2006-01-02"

// WAZRequest is the body of the weight-for-age endpoint
type WAZRequest struct {
	WeightKg  *float64 `json:"weight_kg"`
	AgeMonths *float64 `json:"age_months"`
}

// WAZResponse reports a weight-for-age score
type WAZResponse struct {
	ZScore   float64 `json:"z_score"`
	Rounded  float64 `json:"rounded"`
	Category string  `json:"category"`
}

// EncounterRequest is one visit to record
type EncounterRequest struct {
	// VisitDate is YYYY-MM-DD; empty means today
	VisitDate  string              `json:"visit_date"`
	Assessment clinical.Assessment `json:"assessment"`
	Notes      string              `json:"notes,omitempty"`
}

// Encounter is the stored record of one visit. One record is kept per
// patient and visit date; recording the same date again replaces it.
type Encounter struct {
	PatientID  string                        `json:"patient_id"`
	VisitDate  string                        `json:"visit_date"`
	Assessment clinical.Assessment           `json:"assessment"`
	Result     clinical.ClassificationResult `json:"result"`
	Notes      string                        `json:"notes,omitempty"`
	RecordedAt time.Time                     `json:"recorded_at"`
}

// EncounterPath is the document path of the encounter of a visit date
func EncounterPath(patientID, visitDate string) string {
	return store.JoinPath(PatientsRoot, patientID, "encounters", visitDate)
}

// ClassifyAssessment runs the classifier on one assessment
func (h *HTTPHandlerImpl) ClassifyAssessment(w http.ResponseWriter, r *http.Request) {
	var a clinical.Assessment
	if !h.decodeJSON(w, r, &a) {
		return
	}
	if err := h.validator.ValidateAssessment(a); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.classify(a)
	h.RespondWithJSON(w, http.StatusOK, result)
}

// EstimateWAZ returns the weight-for-age z-score of a child
func (h *HTTPHandlerImpl) EstimateWAZ(w http.ResponseWriter, r *http.Request) {
	var req WAZRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.WeightKg == nil || req.AgeMonths == nil {
		h.RespondWithError(w, http.StatusBadRequest, "weight_kg and age_months are required")
		return
	}
	if err := h.validator.ValidateAssessment(clinical.Assessment{
		AgeMonths: req.AgeMonths,
		Vitals:    clinical.Vitals{WeightKg: req.WeightKg},
	}); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if *req.WeightKg <= 0 {
		h.RespondWithError(w, http.StatusBadRequest, "weight_kg must be positive")
		return
	}

	waz := clinical.NewWAZ(*req.WeightKg, *req.AgeMonths)
	metrics.WAZEstimatesTotal.WithLabelValues(waz.Category).Inc()
	h.RespondWithJSON(w, http.StatusOK, WAZResponse{
		ZScore:   waz.Score,
		Rounded:  waz.Rounded,
		Category: waz.Category,
	})
}

// RecordEncounter classifies a visit and stores it under the patient
func (h *HTTPHandlerImpl) RecordEncounter(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientId")
	if err := h.validator.ValidateSegment(patientID); err != nil {
		logging.Warn("Unusual user input", "patientId", patientID)
		h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid patient id: %v", err))
		return
	}

	var req EncounterRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateAssessment(req.Assessment); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Notes) > 2000 {
		h.RespondWithError(w, http.StatusBadRequest, "notes too long: maximum 2000 characters")
		return
	}

	now := h.opts.Now()
	visitDate := req.VisitDate
	if visitDate == "" {
		visitDate = now.Format(visitDateLayout)
	}
	if _, err := time.Parse(visitDateLayout, visitDate); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "visit_date must be YYYY-MM-DD")
		return
	}

	enc := Encounter{
		PatientID:  patientID,
		VisitDate:  visitDate,
		Assessment: req.Assessment,
		Result:     h.classify(req.Assessment),
		Notes:      req.Notes,
		RecordedAt: now.UTC(),
	}
	if err := h.store.Write(r.Context(), EncounterPath(patientID, visitDate), enc); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	logging.Info("Encounter recorded", "patient_id", patientID, "visit_date", visitDate, "module", enc.Result.Module, "classifications", len(enc.Result.Classifications))
	h.RespondWithJSON(w, http.StatusCreated, enc)
}

func (h *HTTPHandlerImpl) classify(a clinical.Assessment) clinical.ClassificationResult {
	result := clinical.ClassifyPatient(a)
	for _, label := range result.Classifications {
		metrics.ClassificationsTotal.WithLabelValues(label).Inc()
	}
	return result
}
