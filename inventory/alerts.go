package inventory

import (
	"sort"
	"time"
)

// StockLevel is the summed quantity of one item in one store.
type StockLevel struct {
	ItemName string   `json:"itemName"`
	StoreID  string   `json:"storeId"`
	ItemType ItemType `json:"itemType"`
	Quantity float64  `json:"quantity"`
	Lots     int      `json:"lots"`
}

// ExpiryAlert flags one lot with stock left near or past its expiry.
type ExpiryAlert struct {
	LotID        string    `json:"lotId"`
	ItemName     string    `json:"itemName"`
	StoreID      string    `json:"storeId"`
	Quantity     float64   `json:"quantity"`
	ExpiryDateAd time.Time `json:"expiryDateAd"`
	DaysLeft     int       `json:"daysLeft"`
}

// StockAlerts groups the lots needing attention.
type StockAlerts struct {
	GeneratedAt  time.Time     `json:"generatedAt"`
	Expired      []ExpiryAlert `json:"expired"`
	ExpiringSoon []ExpiryAlert `json:"expiringSoon"`
	LowStock     []StockLevel  `json:"lowStock"`
}

// BuildStockAlerts reports lots expired at now, lots expiring within
// window, and items whose summed quantity per store is at or below
// lowStock. Empty lots never raise expiry alerts.
func BuildStockAlerts(lots []Lot, now time.Time, window time.Duration, lowStock float64) StockAlerts {
	alerts := StockAlerts{
		GeneratedAt:  now,
		Expired:      []ExpiryAlert{},
		ExpiringSoon: []ExpiryAlert{},
		LowStock:     []StockLevel{},
	}

	for _, l := range lots {
		if l.ExpiryDateAd == nil || l.CurrentQuantity <= 0 {
			continue
		}
		left := l.ExpiryDateAd.Sub(now)
		a := ExpiryAlert{
			LotID:        l.ID,
			ItemName:     l.ItemName,
			StoreID:      l.StoreID,
			Quantity:     l.CurrentQuantity,
			ExpiryDateAd: *l.ExpiryDateAd,
			DaysLeft:     int(left.Hours() / 24),
		}
		switch {
		case left <= 0:
			alerts.Expired = append(alerts.Expired, a)
		case left <= window:
			alerts.ExpiringSoon = append(alerts.ExpiringSoon, a)
		}
	}
	sortAlerts(alerts.Expired)
	sortAlerts(alerts.ExpiringSoon)

	for _, level := range StockLevels(lots) {
		if level.Quantity <= lowStock {
			alerts.LowStock = append(alerts.LowStock, level)
		}
	}
	return alerts
}

// StockLevels sums lots per item, store and type, ordered by store then
// item name.
func StockLevels(lots []Lot) []StockLevel {
	type key struct {
		store, name string
		itemType    ItemType
	}
	index := make(map[key]int)
	var levels []StockLevel
	for _, l := range lots {
		k := key{l.StoreID, NormalizeName(l.ItemName), l.ItemType}
		i, ok := index[k]
		if !ok {
			i = len(levels)
			index[k] = i
			levels = append(levels, StockLevel{ItemName: l.ItemName, StoreID: l.StoreID, ItemType: l.ItemType})
		}
		levels[i].Quantity += l.CurrentQuantity
		levels[i].Lots++
	}
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].StoreID != levels[j].StoreID {
			return levels[i].StoreID < levels[j].StoreID
		}
		return NormalizeName(levels[i].ItemName) < NormalizeName(levels[j].ItemName)
	})
	return levels
}

func sortAlerts(a []ExpiryAlert) {
	sort.SliceStable(a, func(i, j int) bool {
		return a[i].ExpiryDateAd.Before(a[j].ExpiryDateAd)
	})
}
