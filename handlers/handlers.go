// Package handlers provides the HTTP handlers of the health post API:
// clinical classification, encounter recording, stock movements, approval
// requests, stock file import/export, the change feed and health checks.
// Handlers validate input at the boundary and map service errors to JSON
// error responses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/giygas/healthpost-api/data"
	"github.com/giygas/healthpost-api/interfaces"
	"github.com/giygas/healthpost-api/inventory"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/store"
	"github.com/giygas/healthpost-api/validation"
)

// InventoryService is the stock engine bound to a store.
type InventoryService interface {
	Issue(ctx context.Context, storeID string, lines []inventory.IssueRequest, policy inventory.ShortfallPolicy) (inventory.IssueBatch, error)
	Receive(ctx context.Context, lines []inventory.ReceiptLine) ([]inventory.LotMutation, error)
	Import(ctx context.Context, lines []inventory.ReceiptLine) ([]inventory.LotMutation, error)
	SubmitRequest(ctx context.Context, req inventory.Request) (inventory.Request, error)
	Request(ctx context.Context, id string) (inventory.Request, error)
	Approve(ctx context.Context, id, approver string) (inventory.LedgerEntry, error)
	Reject(ctx context.Context, id, approver, note string) (inventory.Request, error)
}

// LotReader serves lots from the in-memory snapshot.
type LotReader interface {
	Lots(f data.LotFilter) []inventory.Lot
	LastUpdated() time.Time
}

// Options tunes the stock alerts and the change feed.
type Options struct {
	ExpiryWindow   time.Duration
	LowStock       float64
	AllowedOrigins []string
	Now            func() time.Time
}

// HTTPHandlerImpl holds the dependencies of every handler
type HTTPHandlerImpl struct {
	store     interfaces.DocumentStore
	inventory InventoryService
	lots      LotReader
	health    interfaces.HealthChecker
	validator *validation.Validator
	opts      Options
	startedAt time.Time
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(ds interfaces.DocumentStore, svc InventoryService, lots LotReader, health interfaces.HealthChecker, opts Options) *HTTPHandlerImpl {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ExpiryWindow <= 0 {
		opts.ExpiryWindow = 90 * 24 * time.Hour
	}
	return &HTTPHandlerImpl{
		store:     ds,
		inventory: svc,
		lots:      lots,
		health:    health,
		validator: validation.NewValidator(),
		opts:      opts,
		startedAt: time.Now(),
	}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	// Shortfalls lists the unmet lines of a blocked issue
	Shortfalls []inventory.LineShortfall `json:"shortfalls,omitempty"`
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err, "payload_type", fmt.Sprintf("%T", payload))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	h.RespondWithJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}

// respondServiceError maps inventory and store errors to HTTP statuses.
// Unknown errors are logged and hidden behind a 500.
func (h *HTTPHandlerImpl) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var shortfall *inventory.ShortfallError
	switch {
	case errors.As(err, &shortfall):
		h.RespondWithJSON(w, http.StatusConflict, ErrorResponse{
			Error:      http.StatusText(http.StatusConflict),
			Message:    err.Error(),
			Code:       http.StatusConflict,
			Shortfalls: shortfall.Shortfalls,
		})
	case errors.Is(err, inventory.ErrRequestNotFound):
		h.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, inventory.ErrRequestClosed):
		h.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, inventory.ErrEmptyRequest), errors.Is(err, store.ErrInvalidPath):
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.RespondWithError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		logging.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads the request body into dst. It writes the 400 itself and
// reports false when the body is not usable.
func (h *HTTPHandlerImpl) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		h.RespondWithError(w, http.StatusBadRequest, "missing request body")
		return false
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			h.RespondWithError(w, http.StatusBadRequest, "missing request body")
			return false
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.RespondWithError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		logging.Warn("Unusual user input", "path", r.URL.Path, "error", err)
		h.RespondWithError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
