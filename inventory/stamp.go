package inventory

import "time"

// Stamp is the moment recorded on mutated lots, in both calendars.
type Stamp struct {
	Ad time.Time `json:"ad"`
	Bs string    `json:"bs"`
}

// Stamper produces the stamp for a batch of mutations.
type Stamper interface {
	Stamp() Stamp
}

// ClockStamper stamps with the time returned by Now, or time.Now when nil.
type ClockStamper struct {
	Now func() time.Time
}

func (c ClockStamper) Stamp() Stamp {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now()
	return Stamp{Ad: t, Bs: ApproxBS(t)}
}

// ApproxBS formats an approximate Bikram Sambat date for ad, shifting it by
// 56 years, 8 months and 17 days. It can be off by a day or two around BS
// month boundaries; an exact conversion needs the published BS calendar
// tables.
func ApproxBS(ad time.Time) string {
	return ad.AddDate(56, 8, 17).Format("2006-01-02")
}
