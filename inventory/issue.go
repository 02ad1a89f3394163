package inventory

import (
	"sort"

	"github.com/shopspring/decimal"
)

// IssueRequest is one line of a consumption event.
type IssueRequest struct {
	Name     string   `json:"name"`
	Quantity float64  `json:"quantity"`
	ItemType ItemType `json:"itemType"`
	StoreID  string   `json:"storeId"`
	CodeNo   string   `json:"codeNo,omitempty"`
}

// IssueAllocation is the result of allocating one issue line.
type IssueAllocation struct {
	Mutations []LotMutation `json:"mutations"`
	Shortfall float64       `json:"shortfall"`
}

// Issued is the total quantity deducted.
func (a IssueAllocation) Issued() float64 {
	var n float64
	for _, m := range a.Mutations {
		n += m.Quantity
	}
	return n
}

// eligible reports whether lot can serve req.
func (req IssueRequest) eligible(l Lot) bool {
	if !l.Matches(req.Name, req.StoreID, req.ItemType) {
		return false
	}
	return req.CodeNo == "" || l.HasCode(req.CodeNo)
}

// AllocateIssue deducts req.Quantity from the eligible lots, earliest
// expiry first; lots without expiry go last and ties keep their input
// order. Unmet quantity is reported as Shortfall. The input lots are not
// modified.
func AllocateIssue(req IssueRequest, lots []Lot, stamp Stamp) IssueAllocation {
	var candidates []Lot
	for _, l := range lots {
		if req.eligible(l) {
			candidates = append(candidates, l)
		}
	}
	sortByExpiry(candidates)

	out := IssueAllocation{Mutations: []LotMutation{}}
	remaining := req.Quantity
	for _, l := range candidates {
		if remaining <= 0 {
			break
		}
		if l.CurrentQuantity <= 0 {
			continue
		}

		d := min(remaining, l.CurrentQuantity)
		l.CurrentQuantity = max(l.CurrentQuantity-d, 0)
		l.TotalAmount = decimal.Max(l.TotalAmount.Sub(decimal.NewFromFloat(d).Mul(l.Rate)), decimal.Zero)
		if l.CurrentQuantity == 0 {
			// an empty lot holds no value
			l.TotalAmount = decimal.Zero
		}
		l.stamp(stamp, ProvenanceIssued)

		out.Mutations = append(out.Mutations, LotMutation{Lot: l, Kind: MutationIssued, Quantity: d})
		remaining -= d
	}

	if remaining > 0 {
		out.Shortfall = remaining
	}
	return out
}

func sortByExpiry(lots []Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i].ExpiryDateAd, lots[j].ExpiryDateAd
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
}
