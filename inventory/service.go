package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/giygas/healthpost-api/interfaces"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/metrics"
	"github.com/giygas/healthpost-api/store"
)

// ShortfallPolicy decides what happens to an issue that cannot be fully
// served.
type ShortfallPolicy string

const (
	// PolicyBlock rejects the whole issue and writes nothing.
	PolicyBlock ShortfallPolicy = "block"
	// PolicyPartial issues what is available and reports the rest.
	PolicyPartial ShortfallPolicy = "partial"
)

// Valid reports whether p is a known policy.
func (p ShortfallPolicy) Valid() bool {
	return p == PolicyBlock || p == PolicyPartial
}

var (
	ErrShortfall       = errors.New("insufficient stock")
	ErrRequestNotFound = errors.New("stock request not found")
	ErrRequestClosed   = errors.New("stock request already decided")
	ErrEmptyRequest    = errors.New("stock request has no lines")
)

// ShortfallError carries the unmet lines of a blocked issue.
type ShortfallError struct {
	Shortfalls []LineShortfall
}

func (e *ShortfallError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s short by %g", s.Name, s.Shortfall))
	}
	return fmt.Sprintf("%v: %s", ErrShortfall, strings.Join(parts, ", "))
}

func (e *ShortfallError) Unwrap() error { return ErrShortfall }

// Options configures a Service.
type Options struct {
	// Policy is the default shortfall policy. Empty means block.
	Policy ShortfallPolicy
	// NewID generates lot and request identities. Nil means NewID.
	NewID func() string
}

// Service applies allocations to a document store. Every apply is a single
// multi-path update.
type Service struct {
	store   interfaces.DocumentStore
	stamper Stamper
	policy  ShortfallPolicy
	newID   func() string
}

// NewService binds the allocation engine to ds.
func NewService(ds interfaces.DocumentStore, stamper Stamper, opts Options) *Service {
	if stamper == nil {
		stamper = ClockStamper{}
	}
	if !opts.Policy.Valid() {
		opts.Policy = PolicyBlock
	}
	if opts.NewID == nil {
		opts.NewID = NewID
	}
	return &Service{store: ds, stamper: stamper, policy: opts.Policy, newID: opts.NewID}
}

// Policy returns the default shortfall policy.
func (s *Service) Policy() ShortfallPolicy {
	return s.policy
}

// Lots returns the lots of one store, ordered by id.
func (s *Service) Lots(ctx context.Context, storeID string) ([]Lot, error) {
	if err := store.ValidateSegment(storeID); err != nil {
		return nil, fmt.Errorf("%w: store id: %v", store.ErrInvalidPath, err)
	}
	v, ok, err := s.store.Read(ctx, StorePath(storeID))
	if err != nil {
		return nil, fmt.Errorf("read lots of %q: %w", storeID, err)
	}
	if !ok {
		return []Lot{}, nil
	}
	lots, err := decodeLots(v, 1)
	if err != nil {
		return nil, fmt.Errorf("decode lots of %q: %w", storeID, err)
	}
	sortLots(lots)
	return lots, nil
}

// AllLots returns the lots of every store.
func (s *Service) AllLots(ctx context.Context) ([]Lot, error) {
	v, ok, err := s.store.Read(ctx, InventoryRoot)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	if !ok {
		return []Lot{}, nil
	}
	lots, err := DecodeInventory(v)
	if err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	return lots, nil
}

// Issue allocates lines against the stock of storeID. Lines without a store
// get storeID. Under PolicyBlock a shortfall returns a *ShortfallError and
// writes nothing; under PolicyPartial the available stock is issued and the
// batch reports the rest. An empty policy uses the service default.
func (s *Service) Issue(ctx context.Context, storeID string, lines []IssueRequest, policy ShortfallPolicy) (IssueBatch, error) {
	if len(lines) == 0 {
		return IssueBatch{}, ErrEmptyRequest
	}
	if policy == "" {
		policy = s.policy
	}
	lines = withStore(lines, storeID)

	lots, err := s.lotsFor(ctx, issueStores(lines))
	if err != nil {
		return IssueBatch{}, err
	}
	batch := AllocateIssues(lines, lots, s.stamper.Stamp())
	if err := s.checkShortfall(batch, policy); err != nil {
		return batch, err
	}

	if err := s.apply(ctx, batch.Mutations, nil); err != nil {
		return IssueBatch{}, err
	}
	logging.Info("Stock issued", "store", storeID, "lines", len(lines), "lots_touched", len(batch.Mutations), "short_lines", len(batch.Shortfalls))
	return batch, nil
}

// Receive merges receipt lines into the stock without an approval step.
func (s *Service) Receive(ctx context.Context, lines []ReceiptLine) ([]LotMutation, error) {
	return s.receive(ctx, lines, ProvenanceReceived)
}

// Import merges opening stock like a receipt, marking the lots as imported.
func (s *Service) Import(ctx context.Context, lines []ReceiptLine) ([]LotMutation, error) {
	return s.receive(ctx, lines, ProvenanceImported)
}

func (s *Service) receive(ctx context.Context, lines []ReceiptLine, provenance string) ([]LotMutation, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyRequest
	}
	lots, err := s.lotsFor(ctx, receiptStores(lines))
	if err != nil {
		return nil, err
	}
	mutations := AllocateReceipts(lines, lots, s.stamper.Stamp(), s.newID)
	for i := range mutations {
		mutations[i].Lot.Provenance = provenance
	}
	if err := s.apply(ctx, mutations, nil); err != nil {
		return nil, err
	}
	logging.Info("Stock received", "lines", len(lines), "lots_touched", len(mutations), "provenance", provenance)
	return mutations, nil
}

// SubmitRequest stores a pending request and returns it with its identity.
func (s *Service) SubmitRequest(ctx context.Context, req Request) (Request, error) {
	switch {
	case req.Kind == RequestReceipt && len(req.ReceiptLines) == 0,
		req.Kind == RequestIssue && len(req.IssueLines) == 0:
		return Request{}, ErrEmptyRequest
	case req.Kind != RequestReceipt && req.Kind != RequestIssue:
		return Request{}, fmt.Errorf("unknown request kind %q", req.Kind)
	}

	if req.ID == "" {
		req.ID = s.newID()
	}
	req.Status = StatusPending
	req.ApprovedBy = ""
	req.DecidedAt = nil
	req.CreatedAt = s.stamper.Stamp().Ad
	if req.Kind == RequestIssue {
		req.IssueLines = withStore(req.IssueLines, req.StoreID)
	} else {
		req.ReceiptLines = withReceiptStore(req.ReceiptLines, req.StoreID)
	}

	if err := s.store.Write(ctx, RequestPath(req.ID), req); err != nil {
		return Request{}, fmt.Errorf("store request %s: %w", req.ID, err)
	}
	logging.Info("Stock request submitted", "request_id", req.ID, "kind", req.Kind, "store", req.StoreID)
	return req, nil
}

// Request loads a stored request.
func (s *Service) Request(ctx context.Context, id string) (Request, error) {
	v, ok, err := s.store.Read(ctx, RequestPath(id))
	if err != nil {
		return Request{}, fmt.Errorf("read request %s: %w", id, err)
	}
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	var req Request
	if err := store.Decode(v, &req); err != nil {
		return Request{}, fmt.Errorf("decode request %s: %w", id, err)
	}
	return req, nil
}

// Approve applies a pending request, writes its ledger entry and marks it
// approved, all in one update. Issue requests follow the service policy.
func (s *Service) Approve(ctx context.Context, id, approver string) (LedgerEntry, error) {
	req, err := s.pending(ctx, id)
	if err != nil {
		return LedgerEntry{}, err
	}

	stamp := s.stamper.Stamp()
	req.Status = StatusApproved
	req.ApprovedBy = approver
	decided := stamp.Ad
	req.DecidedAt = &decided

	var (
		mutations []LotMutation
		entry     LedgerEntry
	)
	switch req.Kind {
	case RequestReceipt:
		lots, err := s.lotsFor(ctx, receiptStores(req.ReceiptLines))
		if err != nil {
			return LedgerEntry{}, err
		}
		mutations, entry = ApproveReceipt(req, lots, stamp, s.newID)
	case RequestIssue:
		lots, err := s.lotsFor(ctx, issueStores(req.IssueLines))
		if err != nil {
			return LedgerEntry{}, err
		}
		var batch IssueBatch
		batch, entry = ApproveIssue(req, lots, stamp)
		if err := s.checkShortfall(batch, s.policy); err != nil {
			return LedgerEntry{}, err
		}
		mutations = batch.Mutations
	}

	extra := map[string]any{
		RequestPath(req.ID): req,
		LedgerPath(req.ID):  entry,
	}
	if err := s.apply(ctx, mutations, extra); err != nil {
		return LedgerEntry{}, err
	}
	logging.Info("Stock request approved", "request_id", req.ID, "kind", req.Kind, "approved_by", approver, "lines", len(entry.Lines))
	return entry, nil
}

// Reject closes a pending request without touching stock.
func (s *Service) Reject(ctx context.Context, id, approver, note string) (Request, error) {
	req, err := s.pending(ctx, id)
	if err != nil {
		return Request{}, err
	}
	decided := s.stamper.Stamp().Ad
	req.Status = StatusRejected
	req.ApprovedBy = approver
	req.DecidedAt = &decided
	if note != "" {
		req.Note = note
	}
	if err := s.store.Write(ctx, RequestPath(req.ID), req); err != nil {
		return Request{}, fmt.Errorf("store request %s: %w", req.ID, err)
	}
	logging.Info("Stock request rejected", "request_id", req.ID, "by", approver)
	return req, nil
}

func (s *Service) pending(ctx context.Context, id string) (Request, error) {
	req, err := s.Request(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, fmt.Errorf("%w: %s is %s", ErrRequestClosed, id, req.Status)
	}
	return req, nil
}

func (s *Service) checkShortfall(batch IssueBatch, policy ShortfallPolicy) error {
	if !batch.Short() {
		return nil
	}
	for _, sf := range batch.Shortfalls {
		metrics.InventoryShortfallTotal.Add(sf.Shortfall)
	}
	if policy == PolicyPartial {
		return nil
	}
	logging.Warn("Issue blocked by shortfall", "short_lines", len(batch.Shortfalls))
	return &ShortfallError{Shortfalls: batch.Shortfalls}
}

// apply writes mutations and any extra documents in one update.
func (s *Service) apply(ctx context.Context, mutations []LotMutation, extra map[string]any) error {
	values := MutationUpdate(mutations)
	for p, v := range extra {
		values[p] = v
	}
	if len(values) == 0 {
		return nil
	}

	start := time.Now()
	if err := s.store.Update(ctx, values); err != nil {
		return fmt.Errorf("apply %d inventory writes: %w", len(values), err)
	}
	for _, m := range mutations {
		metrics.InventoryMutationsTotal.WithLabelValues(string(m.Kind)).Inc()
	}
	logging.Debug("Inventory update applied", "paths", len(values), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *Service) lotsFor(ctx context.Context, storeIDs []string) ([]Lot, error) {
	var all []Lot
	for _, id := range storeIDs {
		lots, err := s.Lots(ctx, id)
		if err != nil {
			return nil, err
		}
		all = append(all, lots...)
	}
	return all, nil
}

func receiptStores(lines []ReceiptLine) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.StoreID
	}
	return uniqueSorted(ids)
}

func issueStores(lines []IssueRequest) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.StoreID
	}
	return uniqueSorted(ids)
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func withStore(lines []IssueRequest, storeID string) []IssueRequest {
	out := make([]IssueRequest, len(lines))
	for i, l := range lines {
		if l.StoreID == "" {
			l.StoreID = storeID
		}
		out[i] = l
	}
	return out
}

func withReceiptStore(lines []ReceiptLine, storeID string) []ReceiptLine {
	out := make([]ReceiptLine, len(lines))
	for i, l := range lines {
		if l.StoreID == "" {
			l.StoreID = storeID
		}
		out[i] = l
	}
	return out
}

func sortLots(lots []Lot) {
	sort.Slice(lots, func(i, j int) bool {
		if lots[i].StoreID != lots[j].StoreID {
			return lots[i].StoreID < lots[j].StoreID
		}
		return lots[i].ID < lots[j].ID
	})
}
