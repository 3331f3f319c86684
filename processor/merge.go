package processor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"marginflow/config"
	"marginflow/logger"
	"marginflow/models"
)

type joinKey struct {
	unit      string
	direction string
	session   int
	instant   int64
}

// joinPrices left-joins price facts onto quantity observations. Every
// quantity row survives; rows with no matching price keep a nil price.
// The key always contains the timestamp; unit, direction and session join
// only when the price side carries them.
func joinPrices(qty []models.ObservationRow, prices *priceSet) []models.ObservationRow {
	if prices == nil || len(prices.rows) == 0 {
		return qty
	}
	index := make(map[joinKey]float64, len(prices.rows))
	for _, pr := range prices.rows {
		k := joinKey{instant: pr.Local.Unix()}
		if prices.byUnit {
			k.unit = pr.Unit
		}
		if prices.byDirection {
			k.direction = pr.Direction
		}
		if prices.bySession {
			k.session = pr.Session
		}
		index[k] = pr.Price
	}

	out := make([]models.ObservationRow, len(qty))
	for i, row := range qty {
		k := joinKey{instant: row.Local.Unix()}
		if prices.byUnit {
			k.unit = row.Unit
		}
		if prices.byDirection {
			k.direction = row.Direction
		}
		if prices.bySession {
			k.session = row.Session
		}
		if p, ok := index[k]; ok {
			row.Price = models.Float(p)
		}
		out[i] = row
	}
	return out
}

type groupKey struct {
	unit      string
	direction string
	session   int
	market    string
	instant   int64
}

type groupAcc struct {
	local     time.Time
	quantity  float64
	margin    float64
	hasMargin bool
}

// aggregate folds duplicate observations into one record per
// (unit, timestamp, market[, direction][, session]). The margin is the
// null-preserving sum of quantity*price products: it stays nil only when
// no contributing row carried a price. The aggregated price is recomputed
// as margin/quantity so the margin identity survives aggregation exactly;
// it is never an average of the input prices. A session index is folded
// into the market name as " sNN".
func aggregate(rows []models.ObservationRow) []models.AggregatedRecord {
	if len(rows) == 0 {
		return nil
	}
	groups := make(map[groupKey]*groupAcc)
	order := make([]groupKey, 0, len(rows))
	for _, row := range rows {
		k := groupKey{
			unit:      row.Unit,
			direction: row.Direction,
			session:   row.Session,
			market:    row.Market,
			instant:   row.Local.Unix(),
		}
		acc, ok := groups[k]
		if !ok {
			acc = &groupAcc{local: row.Local}
			groups[k] = acc
			order = append(order, k)
		}
		qty := 0.0
		if row.Quantity != nil {
			qty = *row.Quantity
		}
		acc.quantity += qty
		if row.Price != nil {
			acc.margin += qty * *row.Price
			acc.hasMargin = true
		}
	}

	out := make([]models.AggregatedRecord, 0, len(order))
	for _, k := range order {
		acc := groups[k]
		rec := models.AggregatedRecord{
			Unit:      k.unit,
			Local:     acc.local,
			Ref:       RefTimestamp(acc.local),
			Direction: k.direction,
			Quantity:  acc.quantity,
			Market:    marketLabel(k.market, k.session),
		}
		if acc.hasMargin {
			rec.Margin = models.Float(acc.margin)
			price := 0.0
			if acc.quantity != 0 {
				price = acc.margin / acc.quantity
			}
			rec.Price = models.Float(price)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Local.Equal(b.Local) {
			return a.Local.Before(b.Local)
		}
		if a.Unit != b.Unit {
			return a.Unit < b.Unit
		}
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		return a.Direction < b.Direction
	})
	return out
}

func marketLabel(market string, session int) string {
	if session > 0 {
		return fmt.Sprintf("%s s%02d", market, session)
	}
	return market
}

// Trade-file column name variants across report vintages.
var (
	sellUnitColumns = []string{"UNIDADV", "UNIDAD VENTA"}
	buyUnitColumns  = []string{"UNIDADC", "UNIDAD COMPRA"}
)

// extractCombined processes trade-level sources that carry quantity and
// price in one row. Each trade contributes a positive quantity to its
// selling unit and a negative quantity to its buying unit, both at the
// trade price, and the rows then flow through the shared aggregation.
func (p *MarketProcessor) extractCombined(mkt *models.MarketDefinition, date time.Time) ([]models.ObservationRow, error) {
	series := mkt.Series()
	f, err := p.cache.ExchangeFile(p.paths.ExchangeArchive(series, date), config.DailyPrefix(series, date))
	if err != nil {
		return nil, err
	}
	if f.Empty() {
		return nil, nil
	}

	contractCol := f.ColFold("CONTRATO")
	qtyCol := f.ColFold("CANTIDAD")
	priceCol := f.ColFold("PRECIO")
	sellCol := firstColumn(f, sellUnitColumns)
	buyCol := firstColumn(f, buyUnitColumns)
	if contractCol < 0 || qtyCol < 0 || priceCol < 0 || sellCol < 0 || buyCol < 0 {
		return nil, fmt.Errorf("series %s: trade file missing contract, unit, quantity or price column", series)
	}

	badContracts := 0
	var rows []models.ObservationRow
	for r := range f.Rows {
		start, ok := parseDeliveryStart(f.Cell(r, contractCol))
		if !ok {
			badContracts++
			continue
		}
		qty, ok := parseNumber(f.Cell(r, qtyCol))
		if !ok {
			qty = 0
		}
		price, ok := parseNumber(f.Cell(r, priceCol))
		if !ok {
			price = 0
		}
		ref := RefTimestamp(start)

		if sell := f.Cell(r, sellCol); p.wantUnit(sell) {
			rows = append(rows, models.ObservationRow{
				Unit: sell, Local: start, Ref: ref,
				Quantity: models.Float(qty), Price: models.Float(price),
				Market: mkt.Name,
			})
		}
		if buy := f.Cell(r, buyCol); p.wantUnit(buy) {
			rows = append(rows, models.ObservationRow{
				Unit: buy, Local: start, Ref: ref,
				Quantity: models.Float(-qty), Price: models.Float(price),
				Market: mkt.Name,
			})
		}
	}
	if badContracts > 0 {
		p.log.WithComponent("extract").WithFields(logger.Fields{"series": series, "rows": badContracts}).Warn("unparseable delivery periods dropped")
	}
	return rows, nil
}

func firstColumn(f *models.Frame, names []string) int {
	for _, n := range names {
		if i := f.ColFold(n); i >= 0 {
			return i
		}
	}
	return -1
}

// parseDeliveryStart extracts the delivery-period start from a contract
// code of the form "YYYYMMDD HH:MM-YYYYMMDD HH:MM". During the repeated
// autumn hour the start carries an A (summer time) or B (standard time)
// suffix that picks the occurrence.
func parseDeliveryStart(contract string) (time.Time, bool) {
	start := strings.TrimSpace(strings.SplitN(contract, "-", 2)[0])
	wantOffset := 0
	switch {
	case strings.HasSuffix(start, "A"):
		wantOffset = 2 * 3600
		start = strings.TrimSpace(strings.TrimSuffix(start, "A"))
	case strings.HasSuffix(start, "B"):
		wantOffset = 3600
		start = strings.TrimSpace(strings.TrimSuffix(start, "B"))
	}
	naive, err := time.Parse("20060102 15:04", start)
	if err != nil {
		return time.Time{}, false
	}
	return localInMadrid(naive.Year(), naive.Month(), naive.Day(), naive.Hour(), naive.Minute(), wantOffset), true
}
