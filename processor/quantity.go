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

// extractQuantity dispatches on the market's declared quantity source and
// returns one observation per (unit, period) cell that carries a number.
func (p *MarketProcessor) extractQuantity(mkt *models.MarketDefinition, date time.Time) ([]models.ObservationRow, error) {
	switch mkt.QuantitySource {
	case models.QuantityOperatorSheet:
		return p.operatorQuantity(mkt, date)
	case models.QuantityExchangeAuction:
		if mkt.Sessioned {
			return p.sessionQuantity(mkt, date)
		}
		return p.auctionQuantity(mkt, date)
	}
	return nil, fmt.Errorf("unhandled quantity source %q", mkt.QuantitySource)
}

// operatorQuantity reads the market's sheets from the daily operator
// workbook. Sheets are wide: one row per unit, one column per grid period.
func (p *MarketProcessor) operatorQuantity(mkt *models.MarketDefinition, date time.Time) ([]models.ObservationRow, error) {
	archive := p.paths.OperatorArchive(date)
	direction := filterValue(mkt.QuantityFilters, "Sentido")

	var rows []models.ObservationRow
	for _, sheet := range mkt.QuantityIDs {
		f, err := p.cache.OperatorSheet(archive, sheet)
		if err != nil {
			return nil, err
		}
		f = promoteHeader(f)
		if f.Empty() {
			continue
		}

		unitCol, ok := findUnitColumn(f)
		if !ok {
			p.log.WithComponent("extract").WithFields(logger.Fields{"sheet": sheet}).Warn("no unit column, sheet skipped")
			continue
		}
		day, cols, err := detectGrid(f, date)
		if err != nil {
			p.log.WithComponent("extract").WithFields(logger.Fields{"sheet": sheet, "error": err}).Warn("no grid columns, sheet skipped")
			continue
		}

		for r := range f.Rows {
			if !matchesFilters(f, r, mkt.QuantityFilters) {
				continue
			}
			unit := f.Cell(r, unitCol)
			if !p.wantUnit(unit) {
				continue
			}
			for i, col := range cols {
				if col < 0 {
					continue
				}
				v, ok := parseNumber(f.Cell(r, col))
				if !ok || v == 0 {
					continue
				}
				rows = append(rows, models.ObservationRow{
					Unit:      unit,
					Local:     day.Times[i],
					Ref:       RefTimestamp(day.Times[i]),
					Quantity:  models.Float(v),
					Direction: direction,
					Market:    mkt.Name,
				})
			}
		}
	}
	return rows, nil
}

// auctionQuantity reads the exchange's long-format daily file: one row per
// (unit, period), quantity in its own column.
func (p *MarketProcessor) auctionQuantity(mkt *models.MarketDefinition, date time.Time) ([]models.ObservationRow, error) {
	series := mkt.Series()
	f, err := p.cache.ExchangeFile(p.paths.ExchangeArchive(series, date), config.DailyPrefix(series, date))
	if err != nil {
		return nil, err
	}
	return p.longFormatRows(mkt, f, date, 0)
}

// sessionQuantity reads one file per intraday session and tags every
// observation with its session index.
func (p *MarketProcessor) sessionQuantity(mkt *models.MarketDefinition, date time.Time) ([]models.ObservationRow, error) {
	series := mkt.Series()
	archive := p.paths.ExchangeArchive(series, date)

	sessions := make([]int, 0, len(mkt.Price.Sessions))
	for s := range mkt.Price.Sessions {
		sessions = append(sessions, s)
	}
	sort.Ints(sessions)

	var rows []models.ObservationRow
	for _, s := range sessions {
		f, err := p.cache.ExchangeFile(archive, config.SessionPrefix(series, date, s))
		if err != nil {
			return nil, err
		}
		part, err := p.longFormatRows(mkt, f, date, s)
		if err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

// longFormatRows converts a long-format exchange frame (Period, Unit,
// Quantity columns) into observations. Period numbers are 1-based grid
// positions; the grid granularity is inferred from the largest period.
func (p *MarketProcessor) longFormatRows(mkt *models.MarketDefinition, f *models.Frame, date time.Time, session int) ([]models.ObservationRow, error) {
	if f.Empty() {
		return nil, nil
	}
	periodCol := f.ColFold("Period")
	unitCol := f.ColFold("Unit")
	qtyCol := f.ColFold("Quantity")
	if periodCol < 0 || unitCol < 0 || qtyCol < 0 {
		return nil, fmt.Errorf("series %s: missing period, unit or quantity column", mkt.Series())
	}

	maxPeriod := 0
	for r := range f.Rows {
		if n, err := strconv.Atoi(f.Cell(r, periodCol)); err == nil && n > maxPeriod {
			maxPeriod = n
		}
	}
	day, err := gridForPeriods(date, maxPeriod)
	if err != nil {
		return nil, err
	}

	var rows []models.ObservationRow
	for r := range f.Rows {
		if !matchesFilters(f, r, mkt.QuantityFilters) {
			continue
		}
		unit := f.Cell(r, unitCol)
		if !p.wantUnit(unit) {
			continue
		}
		n, err := strconv.Atoi(f.Cell(r, periodCol))
		if err != nil {
			continue
		}
		// Period numbers are positional on both grids: period 1 is the day's
		// first slot, whatever the labels call it.
		slot := n - 1
		if slot < 0 || slot >= day.Periods() {
			continue
		}
		v, ok := parseNumber(f.Cell(r, qtyCol))
		if !ok || v == 0 {
			continue
		}
		rows = append(rows, models.ObservationRow{
			Unit:     unit,
			Local:    day.Times[slot],
			Ref:      RefTimestamp(day.Times[slot]),
			Quantity: models.Float(v),
			Session:  session,
			Market:   mkt.Name,
		})
	}
	return rows, nil
}

// detectGrid matches a wide sheet's header against the day's hourly and
// quarterly label sets and picks whichever the sheet actually uses. The
// returned column slice is parallel to the grid labels; -1 marks a label
// the sheet does not publish.
func detectGrid(f *models.Frame, date time.Time) (*DayContext, []int, error) {
	ds := date.Format("20060102")
	hourly, err := BuildDayContext(ds, Hourly)
	if err != nil {
		return nil, nil, err
	}
	quarterly, err := BuildDayContext(ds, Quarterly)
	if err != nil {
		return nil, nil, err
	}

	hCols, hHits := labelColumns(f, hourly.Labels)
	qCols, qHits := labelColumns(f, quarterly.Labels)
	switch {
	case hHits == 0 && qHits == 0:
		return nil, nil, fmt.Errorf("no period columns in header")
	case qHits > hHits:
		return quarterly, qCols, nil
	default:
		return hourly, hCols, nil
	}
}

func labelColumns(f *models.Frame, labels []string) ([]int, int) {
	cols := make([]int, len(labels))
	hits := 0
	for i, l := range labels {
		cols[i] = f.Col(l)
		if cols[i] >= 0 {
			hits++
		}
	}
	return cols, hits
}

// gridForPeriods picks the grid a long-format file indexes into: hourly
// when the period numbers fit the day's hours, quarterly otherwise.
func gridForPeriods(date time.Time, maxPeriod int) (*DayContext, error) {
	ds := date.Format("20060102")
	hourly, err := BuildDayContext(ds, Hourly)
	if err != nil {
		return nil, err
	}
	if maxPeriod <= hourly.Periods() {
		return hourly, nil
	}
	return BuildDayContext(ds, Quarterly)
}

func filterValue(filters map[string]string, key string) string {
	for k, v := range filters {
		if equalFoldTrim(k, key) {
			return v
		}
	}
	return ""
}
