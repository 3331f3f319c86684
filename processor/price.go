package processor

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"marginflow/config"
	"marginflow/logger"
	"marginflow/models"
)

// priceRow is one price fact ready for joining.
type priceRow struct {
	Unit      string
	Direction string
	Session   int
	Local     time.Time
	Price     float64
}

// priceSet holds a market day's price facts plus the join-key shape: unit
// and direction participate in the join only when the price side actually
// carries them, session only for sessioned markets.
type priceSet struct {
	rows        []priceRow
	byUnit      bool
	byDirection bool
	bySession   bool
}

// indicatorDatetimeLayouts are the timestamp shapes seen in indicator
// files; offsets are explicit, so the same file can mix winter and summer
// stamps safely.
var indicatorDatetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05 -07:00",
}

// extractPrices dispatches on the market's declared price source.
func (p *MarketProcessor) extractPrices(mkt *models.MarketDefinition, date time.Time) (*priceSet, error) {
	switch mkt.PriceSource {
	case models.PriceNone, "":
		return &priceSet{}, nil
	case models.PriceIndicator:
		if mkt.Sessioned {
			return p.sessionIndicatorPrices(mkt, date)
		}
		return p.indicatorPrices(mkt, date, 0)
	case models.PriceExchange:
		return p.exchangePrices(mkt, date)
	case models.PriceOperatorSheet:
		return p.operatorPrices(mkt, date)
	}
	return nil, fmt.Errorf("unhandled price source %q", mkt.PriceSource)
}

// targetGeo maps an indicator id to the geography its values are published
// under: the session indicators 612..618 are national, everything else is
// peninsular.
func targetGeo(id string) string {
	if n, err := strconv.Atoi(id); err == nil && n >= 612 && n <= 618 {
		return "3"
	}
	return "8741"
}

// indicatorPrices reads the monthly file of the indicator the market
// resolves to on this date and keeps the day's rows for the matching
// geography.
func (p *MarketProcessor) indicatorPrices(mkt *models.MarketDefinition, date time.Time, session int) (*priceSet, error) {
	id, err := ResolvePriceID(mkt, date, session)
	if err != nil {
		return nil, err
	}
	f, err := p.cache.Indicator(p.paths.IndicatorFile(id, date))
	if err != nil {
		return nil, err
	}
	set := &priceSet{bySession: session > 0}
	if f.Empty() {
		return set, nil
	}

	dtCol := f.ColFold("datetime")
	valCol := f.ColFold("value")
	if dtCol < 0 || valCol < 0 {
		p.log.WithComponent("extract").WithFields(logger.Fields{"indicator": id}).Warn("indicator file missing datetime or value column")
		return set, nil
	}
	geoCol := f.ColFold("geo_id")
	geo := targetGeo(id)

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, madrid)
	dayEnd := time.Date(date.Year(), date.Month(), date.Day()+1, 0, 0, 0, 0, madrid)

	for r := range f.Rows {
		if geoCol >= 0 && f.Cell(r, geoCol) != geo {
			continue
		}
		ts, ok := parseIndicatorTime(f.Cell(r, dtCol))
		if !ok {
			continue
		}
		ts = ts.In(madrid)
		if ts.Before(dayStart) || !ts.Before(dayEnd) {
			continue
		}
		v, ok := parseNumber(f.Cell(r, valCol))
		if !ok {
			continue
		}
		set.rows = append(set.rows, priceRow{Local: ts, Price: v, Session: session})
	}
	return set, nil
}

// sessionIndicatorPrices resolves one indicator per session and merges
// the per-session facts into a single session-keyed set.
func (p *MarketProcessor) sessionIndicatorPrices(mkt *models.MarketDefinition, date time.Time) (*priceSet, error) {
	sessions := make([]int, 0, len(mkt.Price.Sessions))
	for s := range mkt.Price.Sessions {
		sessions = append(sessions, s)
	}
	sort.Ints(sessions)

	set := &priceSet{bySession: true}
	for _, s := range sessions {
		part, err := p.indicatorPrices(mkt, date, s)
		if err != nil {
			return nil, err
		}
		set.rows = append(set.rows, part.rows...)
	}
	return set, nil
}

// exchangePrices reads the marginal-price series out of its yearly archive.
// The files are hourly: Period 1 is the day's first hour.
func (p *MarketProcessor) exchangePrices(mkt *models.MarketDefinition, date time.Time) (*priceSet, error) {
	series := mkt.Price.Literal
	f, err := p.cache.ExchangeFile(p.paths.ExchangePriceArchive(series, date), config.DailyPrefix(series, date))
	if err != nil {
		return nil, err
	}
	set := &priceSet{}
	if f.Empty() {
		return set, nil
	}

	periodCol := f.ColFold("Period")
	priceCol := f.ColFold("MarginalES")
	if priceCol < 0 {
		priceCol = f.ColFold("Price")
	}
	if periodCol < 0 || priceCol < 0 {
		return nil, fmt.Errorf("series %s: missing period or price column", series)
	}

	day, err := BuildDayContext(date.Format("20060102"), Hourly)
	if err != nil {
		return nil, err
	}
	for r := range f.Rows {
		n, err := strconv.Atoi(f.Cell(r, periodCol))
		if err != nil || n < 1 || n > day.Periods() {
			continue
		}
		v, ok := parseNumber(f.Cell(r, priceCol))
		if !ok {
			continue
		}
		set.rows = append(set.rows, priceRow{Local: day.Times[n-1], Price: v})
	}
	return set, nil
}

// operatorPrices reads a price sheet of the daily operator workbook. The
// sheet keeps its unit and direction columns when it has them, and those
// columns then participate in the join.
func (p *MarketProcessor) operatorPrices(mkt *models.MarketDefinition, date time.Time) (*priceSet, error) {
	f, err := p.cache.OperatorSheet(p.paths.OperatorArchive(date), mkt.Price.Literal)
	if err != nil {
		return nil, err
	}
	f = promoteHeader(f)
	set := &priceSet{}
	if f.Empty() {
		return set, nil
	}

	day, cols, err := detectGrid(f, date)
	if err != nil {
		p.log.WithComponent("extract").WithFields(logger.Fields{"sheet": mkt.Price.Literal, "error": err}).Warn("no grid columns in price sheet")
		return set, nil
	}

	unitCol, hasUnit := findUnitColumn(f)
	dirCol := f.ColFold("Sentido")
	set.byUnit = hasUnit
	set.byDirection = dirCol >= 0

	for r := range f.Rows {
		if !matchesFilters(f, r, mkt.PriceFilters) {
			continue
		}
		row := priceRow{}
		if hasUnit {
			row.Unit = f.Cell(r, unitCol)
		}
		if dirCol >= 0 {
			row.Direction = f.Cell(r, dirCol)
		}
		for i, col := range cols {
			if col < 0 {
				continue
			}
			v, ok := parseNumber(f.Cell(r, col))
			if !ok {
				continue
			}
			pr := row
			pr.Local = day.Times[i]
			pr.Price = v
			set.rows = append(set.rows, pr)
		}
	}
	return set, nil
}

func parseIndicatorTime(s string) (time.Time, bool) {
	for _, layout := range indicatorDatetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
