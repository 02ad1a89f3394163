package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestKind is the direction of a stock request.
type RequestKind string

const (
	RequestReceipt RequestKind = "receipt"
	RequestIssue   RequestKind = "issue"
)

// RequestStatus is the approval state of a request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Request is a stock movement waiting for approval. Only the lines of its
// kind are used.
type Request struct {
	ID           string         `json:"id"`
	Kind         RequestKind    `json:"kind"`
	StoreID      string         `json:"storeId"`
	ReceiptLines []ReceiptLine  `json:"receiptLines,omitempty"`
	IssueLines   []IssueRequest `json:"issueLines,omitempty"`
	Status       RequestStatus  `json:"status"`
	RequestedBy  string         `json:"requestedBy,omitempty"`
	ApprovedBy   string         `json:"approvedBy,omitempty"`
	Note         string         `json:"note,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	DecidedAt    *time.Time     `json:"decidedAt,omitempty"`
}

// LedgerLine summarizes one request line, whatever lots it touched.
type LedgerLine struct {
	ItemName  string          `json:"itemName"`
	ItemType  ItemType        `json:"itemType"`
	Quantity  float64         `json:"quantity"`
	Rate      decimal.Decimal `json:"rate"`
	Tax       decimal.Decimal `json:"tax"`
	Amount    decimal.Decimal `json:"amount"`
	LotIDs    []string        `json:"lotIds"`
	Shortfall float64         `json:"shortfall,omitempty"`
}

// LedgerEntry is the reporting record of one approved request.
type LedgerEntry struct {
	RequestID  string          `json:"requestId"`
	Kind       RequestKind     `json:"kind"`
	StoreID    string          `json:"storeId"`
	DateAd     time.Time       `json:"dateAd"`
	DateBs     string          `json:"dateBs"`
	ApprovedBy string          `json:"approvedBy,omitempty"`
	Lines      []LedgerLine    `json:"lines"`
	Total      decimal.Decimal `json:"total"`
}

// LineShortfall is the unmet quantity of one issue line.
type LineShortfall struct {
	Line      int     `json:"line"`
	Name      string  `json:"name"`
	Requested float64 `json:"requested"`
	Shortfall float64 `json:"shortfall"`
}

// IssueBatch is the result of allocating several issue lines in order.
type IssueBatch struct {
	Mutations  []LotMutation     `json:"mutations"`
	Lines      []IssueAllocation `json:"lines"`
	Shortfalls []LineShortfall   `json:"shortfalls,omitempty"`
}

// Short reports whether any line was not fully served.
func (b IssueBatch) Short() bool {
	return len(b.Shortfalls) > 0
}

// AllocateIssues runs each line through AllocateIssue against a running
// snapshot, so two lines for the same item never spend the same stock.
func AllocateIssues(lines []IssueRequest, lots []Lot, stamp Stamp) IssueBatch {
	snapshot := cloneLots(lots)
	batch := IssueBatch{Mutations: []LotMutation{}, Lines: make([]IssueAllocation, 0, len(lines))}

	for i, line := range lines {
		alloc := AllocateIssue(line, snapshot, stamp)
		for _, m := range alloc.Mutations {
			replaceLot(snapshot, m.Lot)
		}
		batch.Mutations = append(batch.Mutations, alloc.Mutations...)
		batch.Lines = append(batch.Lines, alloc)
		if alloc.Shortfall > 0 {
			batch.Shortfalls = append(batch.Shortfalls, LineShortfall{
				Line:      i,
				Name:      line.Name,
				Requested: line.Quantity,
				Shortfall: alloc.Shortfall,
			})
		}
	}
	return batch
}

// AllocateReceipts runs each line through AllocateReceipt against a running
// snapshot, so a later line can merge into a lot created by an earlier one.
func AllocateReceipts(lines []ReceiptLine, lots []Lot, stamp Stamp, newID func() string) []LotMutation {
	snapshot := cloneLots(lots)
	out := make([]LotMutation, 0, len(lines))
	for _, line := range lines {
		m := AllocateReceipt(line, snapshot, stamp, newID)
		if m.Kind == MutationCreated {
			snapshot = append(snapshot, m.Lot)
		} else {
			replaceLot(snapshot, m.Lot)
		}
		out = append(out, m)
	}
	return out
}

// ApproveReceipt allocates every receipt line of req and builds its ledger
// entry.
func ApproveReceipt(req Request, lots []Lot, stamp Stamp, newID func() string) ([]LotMutation, LedgerEntry) {
	mutations := AllocateReceipts(req.ReceiptLines, lots, stamp, newID)

	entry := newLedgerEntry(req, stamp)
	for i, line := range req.ReceiptLines {
		amount := line.LineTotal()
		entry.Lines = append(entry.Lines, LedgerLine{
			ItemName: line.ItemName,
			ItemType: line.ItemType,
			Quantity: line.Quantity,
			Rate:     line.Rate,
			Tax:      line.Tax,
			Amount:   amount,
			LotIDs:   []string{mutations[i].Lot.ID},
		})
		entry.Total = entry.Total.Add(amount)
	}
	return mutations, entry
}

// ApproveIssue allocates every issue line of req and builds its ledger
// entry. Shortfalls are reported in the batch; the caller decides whether
// to apply it.
func ApproveIssue(req Request, lots []Lot, stamp Stamp) (IssueBatch, LedgerEntry) {
	batch := AllocateIssues(req.IssueLines, lots, stamp)

	entry := newLedgerEntry(req, stamp)
	for i, line := range req.IssueLines {
		alloc := batch.Lines[i]
		ll := LedgerLine{
			ItemName:  line.Name,
			ItemType:  line.ItemType,
			Quantity:  alloc.Issued(),
			Amount:    decimal.Zero,
			LotIDs:    []string{},
			Shortfall: alloc.Shortfall,
		}
		for _, m := range alloc.Mutations {
			ll.Amount = ll.Amount.Add(decimal.NewFromFloat(m.Quantity).Mul(m.Lot.Rate))
			ll.LotIDs = append(ll.LotIDs, m.Lot.ID)
		}
		if len(alloc.Mutations) > 0 {
			ll.Rate = alloc.Mutations[0].Lot.Rate
		}
		entry.Lines = append(entry.Lines, ll)
		entry.Total = entry.Total.Add(ll.Amount)
	}
	return batch, entry
}

func newLedgerEntry(req Request, stamp Stamp) LedgerEntry {
	return LedgerEntry{
		RequestID:  req.ID,
		Kind:       req.Kind,
		StoreID:    req.StoreID,
		DateAd:     stamp.Ad,
		DateBs:     stamp.Bs,
		ApprovedBy: req.ApprovedBy,
		Lines:      []LedgerLine{},
		Total:      decimal.Zero,
	}
}

func replaceLot(lots []Lot, l Lot) {
	for i := range lots {
		if lots[i].ID == l.ID {
			lots[i] = l
			return
		}
	}
}
