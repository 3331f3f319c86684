package processor

import (
	"fmt"
	"time"

	"marginflow/config"
	"marginflow/logger"
	"marginflow/models"
	"marginflow/reader"
)

// MarketProcessor turns one (market, date) pair into aggregated margin
// records. It owns no files itself; all source tables come through the
// per-day cache, so several markets reading the same workbook share one
// parse.
type MarketProcessor struct {
	paths config.PathsConfig
	units map[string]struct{} // empty means every unit
	cache *reader.Cache
	log   *logger.Entry
}

// NewMarketProcessor builds a processor bound to one cache. Target units
// narrow extraction; an empty list keeps every unit the sources mention.
func NewMarketProcessor(paths config.PathsConfig, targetUnits []string, cache *reader.Cache, log *logger.Entry) *MarketProcessor {
	units := make(map[string]struct{}, len(targetUnits))
	for _, u := range targetUnits {
		units[u] = struct{}{}
	}
	return &MarketProcessor{paths: paths, units: units, cache: cache, log: log}
}

func (p *MarketProcessor) wantUnit(unit string) bool {
	if len(p.units) == 0 {
		return unit != ""
	}
	_, ok := p.units[unit]
	return ok
}

// Process runs the full pipeline for one market on one date: extraction,
// price join and duplicate aggregation. Markets with empty sources on the
// date return an empty slice, never an error.
func (p *MarketProcessor) Process(mkt *models.MarketDefinition, date time.Time) ([]models.AggregatedRecord, error) {
	log := p.log.WithMarketDay(mkt.Name, date)

	if mkt.Combined {
		rows, err := p.extractCombined(mkt, date)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", mkt.Name, err)
		}
		return aggregate(rows), nil
	}

	qty, err := p.extractQuantity(mkt, date)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", mkt.Name, err)
	}
	if len(qty) == 0 {
		log.Debug("no quantity observations")
		return nil, nil
	}

	prices, err := p.extractPrices(mkt, date)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", mkt.Name, err)
	}

	joined := joinPrices(qty, prices)
	return aggregate(joined), nil
}
