package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/healthpost-api/data"
	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/stockfile"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxLines        = 500
	MaxImportSize   = 10 << 20 // largest accepted stock file
)

// IssueBody is a consumption event. Lines without a store use StoreID.
type IssueBody struct {
	StoreID string                   `json:"storeId"`
	Lines   []inventory.IssueRequest `json:"lines"`
	// Policy overrides the configured shortfall policy
	Policy inventory.ShortfallPolicy `json:"policy,omitempty"`
}

// ReceiptBody is an incoming-stock event
type ReceiptBody struct {
	Lines []inventory.ReceiptLine `json:"lines"`
}

// DecisionBody approves or rejects a request
type DecisionBody struct {
	ApprovedBy string `json:"approvedBy"`
	Note       string `json:"note,omitempty"`
}

// LotsResponse is the body of the lot listing
type LotsResponse struct {
	Data       []inventory.Lot `json:"data"`
	Total      int             `json:"total"`
	LastUpdate string          `json:"last_update"`
}

// MutationsResponse reports the lots touched by a receipt or import
type MutationsResponse struct {
	Mutations []inventory.LotMutation `json:"mutations"`
}

// LineError is one rejected line of an import
type LineError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// ImportResponse reports an opening stock import
type ImportResponse struct {
	Report    stockfile.ParseReport   `json:"report"`
	Rejected  []LineError             `json:"rejected"`
	Mutations []inventory.LotMutation `json:"mutations"`
}

// ServeLots lists cached lots, filtered by store, type and name
func (h *HTTPHandlerImpl) ServeLots(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.lotFilter(w, r)
	if !ok {
		return
	}

	lots := h.lots.Lots(filter)
	h.RespondWithJSON(w, http.StatusOK, LotsResponse{
		Data:       lots,
		Total:      len(lots),
		LastUpdate: h.lots.LastUpdated().Format(time.RFC3339),
	})
}

// ServeAlerts lists expired, expiring and low stock lots
func (h *HTTPHandlerImpl) ServeAlerts(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.lotFilter(w, r)
	if !ok {
		return
	}
	alerts := inventory.BuildStockAlerts(h.lots.Lots(filter), h.opts.Now(), h.opts.ExpiryWindow, h.opts.LowStock)
	h.RespondWithJSON(w, http.StatusOK, alerts)
}

// ExportStock writes the cached lots as an XLSX workbook
func (h *HTTPHandlerImpl) ExportStock(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.lotFilter(w, r)
	if !ok {
		return
	}

	b, err := stockfile.ExportXLSX(h.lots.Lots(filter))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	name := fmt.Sprintf("stock-%s.xlsx", h.opts.Now().Format(visitDateLayout))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// IssueStock deducts stock, earliest expiry first
func (h *HTTPHandlerImpl) IssueStock(w http.ResponseWriter, r *http.Request) {
	var body IssueBody
	if !h.decodeJSON(w, r, &body) {
		return
	}
	if body.Policy != "" && !body.Policy.Valid() {
		h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("policy must be %q or %q", inventory.PolicyBlock, inventory.PolicyPartial))
		return
	}
	if err := h.validateIssueLines(body.StoreID, body.Lines); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.inventory.Issue(r.Context(), body.StoreID, body.Lines, body.Policy)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, batch)
}

// ReceiveStock merges incoming stock into the lots
func (h *HTTPHandlerImpl) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	var body ReceiptBody
	if !h.decodeJSON(w, r, &body) {
		return
	}
	if err := h.validateReceiptLines(body.Lines); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	mutations, err := h.inventory.Receive(r.Context(), body.Lines)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusCreated, MutationsResponse{Mutations: mutations})
}

// ImportStock loads opening stock from a TSV or XLSX file, sent as the raw
// body or as the "file" field of a multipart form. Lines that fail
// validation are reported and skipped.
func (h *HTTPHandlerImpl) ImportStock(w http.ResponseWriter, r *http.Request) {
	raw, xlsx, err := readStockFile(r)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		lines  []inventory.ReceiptLine
		report stockfile.ParseReport
	)
	if xlsx {
		lines, report, err = stockfile.ParseXLSX(bytes.NewReader(raw))
	} else {
		lines, report, err = stockfile.ParseTSV(bytes.NewReader(raw))
	}
	if err != nil {
		logging.Warn("Stock file rejected", "xlsx", xlsx, "error", err)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := ImportResponse{Report: report, Rejected: []LineError{}, Mutations: []inventory.LotMutation{}}
	valid := make([]inventory.ReceiptLine, 0, len(lines))
	for i, line := range lines {
		if err := h.validator.ValidateReceiptLine(line); err != nil {
			resp.Rejected = append(resp.Rejected, LineError{Line: i + 1, Error: err.Error()})
			continue
		}
		valid = append(valid, line)
	}
	if len(valid) == 0 {
		h.RespondWithJSON(w, http.StatusBadRequest, resp)
		return
	}

	mutations, err := h.inventory.Import(r.Context(), valid)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	resp.Mutations = mutations
	logging.Info("Opening stock imported", "lines", len(valid), "rejected", len(resp.Rejected), "skipped", report.Skipped())
	h.RespondWithJSON(w, http.StatusCreated, resp)
}

// SubmitRequest stores a receipt or issue awaiting approval
func (h *HTTPHandlerImpl) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req inventory.Request
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.ID != "" {
		if err := h.validator.ValidateSegment(req.ID); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid request id: %v", err))
			return
		}
	}
	var err error
	switch req.Kind {
	case inventory.RequestIssue:
		err = h.validateIssueLines(req.StoreID, req.IssueLines)
	case inventory.RequestReceipt:
		lines := make([]inventory.ReceiptLine, len(req.ReceiptLines))
		for i, l := range req.ReceiptLines {
			if l.StoreID == "" {
				l.StoreID = req.StoreID
			}
			lines[i] = l
		}
		err = h.validateReceiptLines(lines)
	default:
		err = fmt.Errorf("kind must be %q or %q", inventory.RequestReceipt, inventory.RequestIssue)
	}
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.inventory.SubmitRequest(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusCreated, stored)
}

// GetRequest returns one stored request
func (h *HTTPHandlerImpl) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := h.inventory.Request(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, req)
}

// ApproveRequest applies a pending request and returns its ledger entry
func (h *HTTPHandlerImpl) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	body, ok := h.decision(w, r)
	if !ok {
		return
	}

	entry, err := h.inventory.Approve(r.Context(), id, body.ApprovedBy)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, entry)
}

// RejectRequest closes a pending request without touching stock
func (h *HTTPHandlerImpl) RejectRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	body, ok := h.decision(w, r)
	if !ok {
		return
	}

	req, err := h.inventory.Reject(r.Context(), id, body.ApprovedBy, body.Note)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, req)
}

func (h *HTTPHandlerImpl) lotFilter(w http.ResponseWriter, r *http.Request) (data.LotFilter, bool) {
	q := r.URL.Query()
	f := data.LotFilter{
		StoreID: q.Get("store"),
		Name:    q.Get("name"),
	}

	if f.StoreID != "" {
		if err := h.validator.ValidateSegment(f.StoreID); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid store: %v", err))
			return f, false
		}
	}
	if f.Name != "" {
		if err := h.validator.ValidateInput(f.Name); err != nil {
			logging.Warn("Unusual user input", "name", f.Name)
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return f, false
		}
	}
	if t := q.Get("type"); t != "" {
		itemType, err := stockfile.ParseItemType(t)
		if err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return f, false
		}
		f.ItemType = itemType
	}
	return f, true
}

func (h *HTTPHandlerImpl) requestID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ValidateSegment(id); err != nil {
		logging.Warn("Unusual user input", "requestId", id)
		h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid request id: %v", err))
		return "", false
	}
	return id, true
}

// decision reads an optional decision body
func (h *HTTPHandlerImpl) decision(w http.ResponseWriter, r *http.Request) (DecisionBody, bool) {
	var body DecisionBody
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if !h.decodeJSON(w, r, &body) {
			return body, false
		}
	}
	if len(body.ApprovedBy) > 100 || len(body.Note) > 500 {
		h.RespondWithError(w, http.StatusBadRequest, "approvedBy or note too long")
		return body, false
	}
	return body, true
}

func (h *HTTPHandlerImpl) validateIssueLines(storeID string, lines []inventory.IssueRequest) error {
	if len(lines) == 0 {
		return inventory.ErrEmptyRequest
	}
	if len(lines) > maxLines {
		return fmt.Errorf("too many lines: maximum %d", maxLines)
	}
	if storeID != "" {
		if err := h.validator.ValidateSegment(storeID); err != nil {
			return fmt.Errorf("storeId: %w", err)
		}
	}
	for i, line := range lines {
		if line.StoreID == "" && storeID == "" {
			return fmt.Errorf("line %d: storeId is required", i+1)
		}
		if err := h.validator.ValidateIssueRequest(line); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return nil
}

func (h *HTTPHandlerImpl) validateReceiptLines(lines []inventory.ReceiptLine) error {
	if len(lines) == 0 {
		return inventory.ErrEmptyRequest
	}
	if len(lines) > maxLines {
		return fmt.Errorf("too many lines: maximum %d", maxLines)
	}
	for i, line := range lines {
		if err := h.validator.ValidateReceiptLine(line); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return nil
}

// readStockFile returns the uploaded file and whether it is a workbook.
// The format comes from ?format=, then the file name, then the content
// type; anything else is read as TSV.
func readStockFile(r *http.Request) ([]byte, bool, error) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "tsv" && format != "xlsx" {
		return nil, false, fmt.Errorf("format must be tsv or xlsx")
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		src  io.Reader = r.Body
		name string
	)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(MaxImportSize); err != nil {
			return nil, false, fmt.Errorf("invalid multipart form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, false, errors.New(`multipart form needs a "file" field`)
		}
		defer file.Close()
		src, name = file, header.Filename
		mediaType = header.Header.Get("Content-Type")
	}
	if src == nil {
		return nil, false, errors.New("missing request body")
	}

	raw, err := io.ReadAll(io.LimitReader(src, MaxImportSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("read stock file: %w", err)
	}
	if len(raw) > MaxImportSize {
		return nil, false, fmt.Errorf("stock file too large: maximum %d bytes", MaxImportSize)
	}
	if len(raw) == 0 {
		return nil, false, errors.New("empty stock file")
	}

	switch {
	case format != "":
		return raw, format == "xlsx", nil
	case name != "":
		return raw, strings.EqualFold(filepath.Ext(name), ".xlsx"), nil
	}
	return raw, mediaType == xlsxContentType, nil
}
