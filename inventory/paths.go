package inventory

import "github.com/giygas/healthpost-api/store"

// Store path roots.
const (
	InventoryRoot = "inventory"
	RequestsRoot  = "requests"
	LedgerRoot    = "ledger"
	ReportsRoot   = "reports/stock"
)

// LotPath is the document path of a lot.
func LotPath(storeID, lotID string) string {
	return store.JoinPath(InventoryRoot, storeID, lotID)
}

// StorePath is the document path holding every lot of a store.
func StorePath(storeID string) string {
	return store.JoinPath(InventoryRoot, storeID)
}

// RequestPath is the document path of a stock request.
func RequestPath(id string) string {
	return store.JoinPath(RequestsRoot, id)
}

// LedgerPath is the document path of the ledger entry of a request.
func LedgerPath(requestID string) string {
	return store.JoinPath(LedgerRoot, requestID)
}

// ReportPath is the document path of the stock report of a day.
func ReportPath(day string) string {
	return store.JoinPath(ReportsRoot, day)
}

// MutationUpdate turns mutations into one multi-path update. When a lot is
// mutated more than once the last state wins.
func MutationUpdate(mutations []LotMutation) map[string]any {
	values := make(map[string]any, len(mutations))
	for _, m := range mutations {
		values[LotPath(m.Lot.StoreID, m.Lot.ID)] = m.Lot
	}
	return values
}

// DecodeInventory decodes the value of InventoryRoot into lots ordered by
// store and id. A nil value has no lots.
func DecodeInventory(v any) ([]Lot, error) {
	lots, err := decodeLots(v, 2)
	if err != nil {
		return nil, err
	}
	if lots == nil {
		lots = []Lot{}
	}
	sortLots(lots)
	return lots, nil
}

// decodeLots reads the lots below an inventory value, which is either one
// store (lotID → lot) or the whole root (storeID → lotID → lot).
func decodeLots(v any, depth int) ([]Lot, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil
	}
	var lots []Lot
	if depth > 1 {
		for _, child := range obj {
			more, err := decodeLots(child, depth-1)
			if err != nil {
				return nil, err
			}
			lots = append(lots, more...)
		}
		return lots, nil
	}
	for _, raw := range obj {
		var l Lot
		if err := store.Decode(raw, &l); err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, nil
}
