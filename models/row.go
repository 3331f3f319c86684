package models

import "time"

// ObservationRow is one resolved fact extracted from a source table. It is the
// common currency between the extractors and the aggregator. Quantity-side
// rows carry a quantity and usually no price; price-side facts are joined in
// by the merger. Combined-source rows carry both from the start.
type ObservationRow struct {
	Unit      string // empty for system-wide prices
	Local     time.Time
	Ref       time.Time // same instant re-expressed at the fixed UTC+1 offset
	Quantity  *float64
	Price     *float64
	Direction string // e.g. "Subir"/"Bajar", empty when not applicable
	Session   int    // 0 when not applicable
	Market    string
}

// AggregatedRecord is the final shape: one row per
// (unit, timestamp, market[, direction][, session]).
//
// Margin is nil only when every contributing row had a nil price; otherwise it
// is the null-preserving sum of quantity*price products. Price is the implied
// weighted average margin/quantity (0 when quantity is 0), so the identity
// margin = quantity * price survives aggregation exactly.
type AggregatedRecord struct {
	Unit      string
	Local     time.Time
	Ref       time.Time
	Direction string
	Quantity  float64
	Price     *float64
	Margin    *float64
	Market    string
}

// Float returns a pointer to v. Convenience for optional quantity and price
// fields.
func Float(v float64) *float64 { return &v }
