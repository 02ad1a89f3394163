// Package inventory allocates stock issues and receipts across inventory
// lots. The allocation functions are pure; Service binds them to a
// document store.
package inventory

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// ItemType separates consumables from durable goods.
type ItemType string

const (
	Expendable    ItemType = "Expendable"
	NonExpendable ItemType = "Non-Expendable"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	return t == Expendable || t == NonExpendable
}

// Provenance markers stamped on mutated lots.
const (
	ProvenanceIssued   = "Issued"
	ProvenanceReceived = "Received"
	ProvenanceImported = "Imported"
)

// Lot is one physical batch of an item in a store.
type Lot struct {
	ID               string          `json:"id"`
	ItemName         string          `json:"itemName"`
	StoreID          string          `json:"storeId"`
	ItemType         ItemType        `json:"itemType"`
	CurrentQuantity  float64         `json:"currentQuantity"`
	Rate             decimal.Decimal `json:"rate"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	ExpiryDateAd     *time.Time      `json:"expiryDateAd,omitempty"`
	UniqueCode       string          `json:"uniqueCode,omitempty"`
	SanketNo         string          `json:"sanketNo,omitempty"`
	LastUpdateDateAd *time.Time      `json:"lastUpdateDateAd,omitempty"`
	LastUpdateDateBs string          `json:"lastUpdateDateBs,omitempty"`
	Provenance       string          `json:"provenance,omitempty"`
}

// Matches reports whether the lot holds the named item of the given store
// and type.
func (l Lot) Matches(name, storeID string, itemType ItemType) bool {
	return l.StoreID == storeID && l.ItemType == itemType && SameItem(l.ItemName, name)
}

// HasCode reports whether code identifies this lot.
func (l Lot) HasCode(code string) bool {
	return code != "" && (l.UniqueCode == code || l.SanketNo == code)
}

func (l *Lot) stamp(s Stamp, provenance string) {
	ad := s.Ad
	l.LastUpdateDateAd = &ad
	l.LastUpdateDateBs = s.Bs
	l.Provenance = provenance
}

// SameItem compares item names after trimming, with Unicode case folding.
func SameItem(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

// NormalizeName is the matching key of an item name.
func NormalizeName(name string) string {
	// a Caser is stateful, so one per call
	return cases.Fold().String(strings.TrimSpace(name))
}

// MutationKind tells how a lot was changed.
type MutationKind string

const (
	MutationIssued   MutationKind = "issued"
	MutationReceived MutationKind = "received"
	MutationCreated  MutationKind = "created"
)

// LotMutation is the state of a lot after one allocation step.
type LotMutation struct {
	Lot      Lot          `json:"lot"`
	Kind     MutationKind `json:"kind"`
	Quantity float64      `json:"quantity"`
}

func cloneLots(lots []Lot) []Lot {
	out := make([]Lot, len(lots))
	copy(out, lots)
	return out
}
