package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ReceiptLine is one line of an incoming-stock event. Tax is a percentage.
type ReceiptLine struct {
	ItemName     string          `json:"itemName"`
	Quantity     float64         `json:"quantity"`
	Rate         decimal.Decimal `json:"rate"`
	Tax          decimal.Decimal `json:"tax"`
	ItemType     ItemType        `json:"itemType"`
	StoreID      string          `json:"storeId"`
	UniqueCode   string          `json:"uniqueCode,omitempty"`
	SanketNo     string          `json:"sanketNo,omitempty"`
	ExpiryDateAd *time.Time      `json:"expiryDateAd,omitempty"`
}

// LineTotal is quantity × rate × (1 + tax/100).
func (l ReceiptLine) LineTotal() decimal.Decimal {
	return decimal.NewFromFloat(l.Quantity).Mul(l.LandedRate())
}

// LandedRate is the unit price with tax applied, rate × (1 + tax/100).
func (l ReceiptLine) LandedRate() decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(l.Tax.Div(hundred))
	return l.Rate.Mul(factor)
}

// NewID returns a fresh lot or request identity.
func NewID() string {
	return uuid.NewString()
}

// AllocateReceipt merges line into the first lot with the same item, store
// and type, or seeds a new lot with an identity from newID (NewID when
// nil). Expiry and codes do not take part in the match. A new lot is priced
// at the landed rate so its total stays quantity × rate; a merge keeps the
// lot's rate. The input lots are not modified.
func AllocateReceipt(line ReceiptLine, lots []Lot, stamp Stamp, newID func() string) LotMutation {
	for _, l := range lots {
		if !l.Matches(line.ItemName, line.StoreID, line.ItemType) {
			continue
		}
		l.CurrentQuantity += line.Quantity
		l.TotalAmount = l.TotalAmount.Add(line.LineTotal())
		l.stamp(stamp, ProvenanceReceived)
		return LotMutation{Lot: l, Kind: MutationReceived, Quantity: line.Quantity}
	}

	if newID == nil {
		newID = NewID
	}
	l := Lot{
		ID:              newID(),
		ItemName:        line.ItemName,
		StoreID:         line.StoreID,
		ItemType:        line.ItemType,
		CurrentQuantity: line.Quantity,
		Rate:            line.LandedRate(),
		TotalAmount:     line.LineTotal(),
		ExpiryDateAd:    line.ExpiryDateAd,
		UniqueCode:      line.UniqueCode,
		SanketNo:        line.SanketNo,
	}
	l.stamp(stamp, ProvenanceReceived)
	return LotMutation{Lot: l, Kind: MutationCreated, Quantity: line.Quantity}
}
