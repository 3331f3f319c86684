package processor

import (
	"fmt"
	"time"

	"marginflow/models"
)

// ResolvePriceID picks the indicator identifier to use for a market on a
// given day. Literal identifiers win; dated rules are scanned in order
// and the first whose cutoff has not passed applies (the cutoff day
// itself still uses the earlier identifier); sessioned markets look the
// session number up directly.
func ResolvePriceID(mkt *models.MarketDefinition, day time.Time, session int) (string, error) {
	p := mkt.Price
	switch {
	case mkt.Sessioned:
		id, ok := p.Sessions[session]
		if !ok {
			return "", fmt.Errorf("market %s: no price indicator for session %d", mkt.Name, session)
		}
		return id, nil
	case p.Literal != "":
		return p.Literal, nil
	case len(p.Rules) > 0:
		for _, r := range p.Rules {
			if r.Cutoff.IsZero() || !day.After(r.Cutoff) {
				return r.ID, nil
			}
		}
		return p.Rules[len(p.Rules)-1].ID, nil
	}
	return "", fmt.Errorf("market %s: price source %q has no identifier", mkt.Name, mkt.PriceSource)
}
