package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appconfig "marginflow/config"
	"marginflow/logger"
	"marginflow/models"
	"marginflow/reader"
)

// ResultWriter persists one calendar month of aggregated records.
type ResultWriter interface {
	WriteMonth(ctx context.Context, month string, records []models.AggregatedRecord) error
}

// Engine orchestrates a processing run: it walks the configured date range,
// hands every date to a market processor, buffers the results per calendar
// month and flushes each month through the writer.
type Engine struct {
	config  *appconfig.Config
	markets []models.MarketDefinition
	writer  ResultWriter
	log     *logger.Log

	mu      sync.Mutex
	running bool
}

type dayResult struct {
	date    time.Time
	records []models.AggregatedRecord
}

func NewEngine(cfg *appconfig.Config, markets []models.MarketDefinition, writer ResultWriter) *Engine {
	return &Engine{
		config:  cfg,
		markets: markets,
		writer:  writer,
		log:     logger.GetLogger(),
	}
}

// Run processes the full configured date range. Dates are independent units
// of work: one worker owns one date at a time together with its own file
// cache, so no table is shared across goroutines. A failing market day is
// recovered, logged and counted; it never aborts the run.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	log := e.log.WithComponent("engine")

	start, end, err := e.config.DateRange()
	if err != nil {
		return err
	}
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}

	numWorkers := e.config.Processing.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(dates) {
		numWorkers = len(dates)
	}
	log.WithFields(logger.Fields{
		"start":   start.Format("20060102"),
		"end":     end.Format("20060102"),
		"days":    len(dates),
		"markets": len(e.markets),
		"workers": numWorkers,
	}).Info("starting run")

	months := make(map[string][]models.AggregatedRecord)
	if numWorkers <= 1 {
		cache := reader.NewCache()
		defer cache.Clear()
		mp := NewMarketProcessor(e.config.Paths, e.config.Processing.TargetUnits, cache, log.WithComponent("processor"))
		for _, date := range dates {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cache.Clear()
			e.collect(months, e.processDay(mp, date))
		}
	} else {
		dateCh := make(chan time.Time)
		resultCh := make(chan dayResult, numWorkers)

		var wg sync.WaitGroup
		for i := 0; i < numWorkers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				cache := reader.NewCache()
				defer cache.Clear()
				mp := NewMarketProcessor(e.config.Paths, e.config.Processing.TargetUnits, cache,
					log.WithComponent("processor").WithFields(logger.Fields{"worker": id}))
				for date := range dateCh {
					res := e.processDay(mp, date)
					cache.Clear()
					resultCh <- res
				}
			}(i)
		}

		go func() {
			defer close(dateCh)
			for _, date := range dates {
				select {
				case <-ctx.Done():
					return
				case dateCh <- date:
				}
			}
		}()
		go func() {
			wg.Wait()
			close(resultCh)
		}()

		for res := range resultCh {
			e.collect(months, res)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return e.flush(ctx, months)
}

// processDay runs every configured market for one date. A panicking or
// failing market contributes no rows; the rest of the day still runs.
func (e *Engine) processDay(mp *MarketProcessor, date time.Time) dayResult {
	res := dayResult{date: date}
	for i := range e.markets {
		mkt := &e.markets[i]
		records, err := e.processMarketDay(mp, mkt, date)
		if err != nil {
			e.log.WithComponent("engine").WithMarketDay(mkt.Name, date).WithError(err).Error("market day failed")
			logger.IncrementMarketDayError()
			continue
		}
		logger.IncrementMarketDay()
		logger.IncrementRows(len(records))
		res.records = append(res.records, records...)
	}
	logger.IncrementDayProcessed()
	return res
}

func (e *Engine) processMarketDay(mp *MarketProcessor, mkt *models.MarketDefinition, date time.Time) (records []models.AggregatedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return mp.Process(mkt, date)
}

func (e *Engine) collect(months map[string][]models.AggregatedRecord, res dayResult) {
	if len(res.records) == 0 {
		return
	}
	month := res.date.Format("200601")
	months[month] = append(months[month], res.records...)
}

// flush writes every buffered month in chronological order. Within a month
// record order follows the day sequence; records of one day are already
// sorted by the aggregator.
func (e *Engine) flush(ctx context.Context, months map[string][]models.AggregatedRecord) error {
	keys := make([]string, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Strings(keys)

	var firstErr error
	for _, month := range keys {
		records := months[month]
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Local.Before(records[j].Local)
		})
		if err := e.writer.WriteMonth(ctx, month, records); err != nil {
			e.log.WithComponent("engine-writer").WithFields(logger.Fields{"month": month}).WithError(err).Error("month flush failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
