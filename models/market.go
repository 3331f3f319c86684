package models

import (
	"fmt"
	"time"
)

// QuantitySourceKind identifies where a market's quantity observations come from.
type QuantitySourceKind string

const (
	// QuantityOperatorSheet reads one or more sheets of the system operator's
	// daily workbook archive.
	QuantityOperatorSheet QuantitySourceKind = "operator_sheet"
	// QuantityExchangeAuction reads the exchange's daily flat file for a series.
	QuantityExchangeAuction QuantitySourceKind = "exchange_auction"
	// QuantityExchangeTrades reads a trade-level file that carries quantity and
	// price together; such markets are processed on the combined path.
	QuantityExchangeTrades QuantitySourceKind = "exchange_trades"
)

// PriceSourceKind identifies where a market's price observations come from.
type PriceSourceKind string

const (
	PriceNone          PriceSourceKind = "none"
	PriceIndicator     PriceSourceKind = "indicator"
	PriceExchange      PriceSourceKind = "exchange"
	PriceOperatorSheet PriceSourceKind = "operator_sheet"
)

// PriceRule is one step of a date-conditional price identifier. The rule
// applies to observation dates up to and including Cutoff. The final rule of a
// list carries a zero Cutoff and acts as the open-ended tail.
type PriceRule struct {
	Cutoff time.Time
	ID     string
}

// PriceID is the price identifier of a market definition. Exactly one of the
// three forms is populated: a literal id, an ordered date-conditional rule
// list, or a session-index map.
type PriceID struct {
	Literal  string
	Rules    []PriceRule
	Sessions map[int]string
}

func (p PriceID) empty() bool {
	return p.Literal == "" && len(p.Rules) == 0 && len(p.Sessions) == 0
}

// MarketDefinition declares how quantity and price are extracted for one
// traded product. Definitions are static configuration, validated once at
// load time.
type MarketDefinition struct {
	Name string

	QuantitySource  QuantitySourceKind
	QuantityIDs     []string // sheet names or flat-file series prefix
	QuantityFilters map[string]string

	PriceSource  PriceSourceKind
	Price        PriceID
	PriceFilters map[string]string

	// Combined marks markets whose single trade-level source yields both
	// quantity and price, requiring no separate join.
	Combined bool
	// Sessioned marks markets published once per intraday session, read as
	// one source file per session index.
	Sessioned bool
}

// Validate rejects definitions whose declared sources cannot be resolved.
func (m MarketDefinition) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("market name is required")
	}
	switch m.QuantitySource {
	case QuantityOperatorSheet, QuantityExchangeAuction, QuantityExchangeTrades:
	default:
		return fmt.Errorf("market %s: unknown quantity source %q", m.Name, m.QuantitySource)
	}
	if len(m.QuantityIDs) == 0 {
		return fmt.Errorf("market %s: at least one quantity identifier is required", m.Name)
	}
	if m.Combined && m.QuantitySource != QuantityExchangeTrades {
		return fmt.Errorf("market %s: combined markets must use an exchange trades source", m.Name)
	}
	if m.QuantitySource == QuantityExchangeTrades && !m.Combined {
		return fmt.Errorf("market %s: exchange trades sources are only usable on the combined path", m.Name)
	}
	switch m.PriceSource {
	case PriceNone, "":
		if !m.Price.empty() {
			return fmt.Errorf("market %s: price identifier declared without a price source", m.Name)
		}
	case PriceIndicator, PriceExchange, PriceOperatorSheet:
		if m.Price.empty() {
			return fmt.Errorf("market %s: price source %q requires a price identifier", m.Name, m.PriceSource)
		}
	default:
		return fmt.Errorf("market %s: unknown price source %q", m.Name, m.PriceSource)
	}
	if m.Sessioned && len(m.Price.Sessions) == 0 {
		return fmt.Errorf("market %s: sessioned markets require a session price map", m.Name)
	}
	if len(m.Price.Sessions) > 0 && !m.Sessioned {
		return fmt.Errorf("market %s: session price map declared on an unsessioned market", m.Name)
	}
	for i, r := range m.Price.Rules {
		if r.ID == "" {
			return fmt.Errorf("market %s: price rule %d has no identifier", m.Name, i)
		}
		if i == len(m.Price.Rules)-1 {
			if !r.Cutoff.IsZero() {
				return fmt.Errorf("market %s: last price rule must be the open-ended tail", m.Name)
			}
		} else if r.Cutoff.IsZero() {
			return fmt.Errorf("market %s: price rule %d is missing its cutoff date", m.Name, i)
		}
	}
	return nil
}

// Series returns the flat-file series prefix for exchange-backed quantity
// sources.
func (m MarketDefinition) Series() string {
	return m.QuantityIDs[0]
}
